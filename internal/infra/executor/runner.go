package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	scans "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/postprocess"
)

const DefaultToolTimeout = 3600 * time.Second

// tailChars bounds the stdout/stderr excerpts kept in the summary report;
// full streams live in the uploaded capture files.
const tailChars = 2000

const (
	stdoutName = "output.stdout"
	stderrName = "output.stderr"
)

// Runner executes one tool command as a child process, captures its streams
// into the (scanId, tool) output directory and hands the artifacts to exactly
// one post-processor. Every execution path yields a ToolOutput; Execute never
// fails upward.
type Runner struct {
	outputsRoot string
	procs       *postprocess.Registry
	log         *slog.Logger
}

func NewRunner(outputsRoot string, procs *postprocess.Registry, logger *slog.Logger) *Runner {
	return &Runner{outputsRoot: outputsRoot, procs: procs, log: logger}
}

func (r *Runner) Execute(ctx context.Context, command []string, scanID scans.ScanID, tool string, timeout time.Duration) scans.ToolOutput {
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}

	outputDir := filepath.Join(r.outputsRoot, string(scanID), tool)
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return r.unexpected(command, tool, fmt.Errorf("create output dir: %w", err))
	}
	if len(command) == 0 {
		return r.unexpected(command, tool, errors.New("empty command"))
	}

	stdoutFile := filepath.Join(outputDir, stdoutName)
	stderrFile := filepath.Join(outputDir, stderrName)

	r.log.Info("executing command",
		slog.String("tool", tool),
		slog.String("cmd", strings.Join(command, " ")))

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, command[0], command[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		msg := fmt.Sprintf("Command timed out after %d seconds.", int(timeout.Seconds()))
		r.log.Error(msg, slog.String("tool", tool))
		if err := os.WriteFile(stderrFile, []byte(msg), 0o644); err != nil {
			r.log.Error("failed to persist timeout message", slog.Any("err", err))
		}
		r.procs.Default()(ctx, scanID, tool, outputDir, []string{stderrFile})
		return scans.ToolOutput{
			ToolName:        tool,
			Command:         command,
			ReturnCode:      -1,
			Stderr:          msg,
			OutputFilePaths: []string{stderrFile},
			Success:         false,
		}
	}

	var exitErr *exec.ExitError
	if runErr != nil && !errors.As(runErr, &exitErr) {
		// binary not found, permission denied, etc: nothing was produced
		return r.unexpected(command, tool, runErr)
	}

	if err := os.WriteFile(stdoutFile, stdout.Bytes(), 0o644); err != nil {
		r.log.Error("failed to persist stdout", slog.Any("err", err))
	}
	if err := os.WriteFile(stderrFile, stderr.Bytes(), 0o644); err != nil {
		r.log.Error("failed to persist stderr", slog.Any("err", err))
	}

	outputFiles := r.collectFiles(outputDir, stdoutFile, stderrFile)

	exitCode := cmd.ProcessState.ExitCode()
	success := exitCode == 0

	if success {
		r.log.Info("command succeeded, starting post-processing", slog.String("tool", tool))
		r.procs.Processor(tool)(ctx, scanID, tool, outputDir, outputFiles)
	} else {
		r.log.Warn("command failed, uploading raw logs for review",
			slog.String("tool", tool), slog.Int("exit", exitCode))
		r.procs.Default()(ctx, scanID, tool, outputDir, outputFiles)
	}

	return scans.ToolOutput{
		ToolName:        tool,
		Command:         command,
		ReturnCode:      exitCode,
		Stdout:          tail(stdout.String(), tailChars),
		Stderr:          tail(stderr.String(), tailChars),
		OutputFilePaths: outputFiles,
		Success:         success,
	}
}

// collectFiles lists the direct files of the output directory; tools write
// JSON reports and logs next to the two captured streams.
func (r *Runner) collectFiles(outputDir, stdoutFile, stderrFile string) []string {
	files := []string{stdoutFile, stderrFile}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		r.log.Warn("failed to list output dir", slog.String("dir", outputDir), slog.Any("err", err))
		return files
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		full := filepath.Join(outputDir, e.Name())
		if full != stdoutFile && full != stderrFile {
			files = append(files, full)
		}
	}
	return files
}

func (r *Runner) unexpected(command []string, tool string, err error) scans.ToolOutput {
	msg := fmt.Sprintf("An unexpected error occurred: %v", err)
	r.log.Error(msg, slog.String("tool", tool))
	return scans.ToolOutput{
		ToolName:        tool,
		Command:         command,
		ReturnCode:      -1,
		Stderr:          msg,
		OutputFilePaths: []string{},
		Success:         false,
	}
}

// tail returns the last n characters of s.
func tail(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}
