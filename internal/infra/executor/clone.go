package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	scans "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
)

// cloneRepo shallow-clones repoURL into output_dir/source, replacing any
// prior contents. On failure it returns a synthetic failing command instead
// of an error so the execution flow stays uniform downstream.
func (b *toolBuilders) cloneRepo(ctx context.Context, repoURL string, scanID scans.ScanID, tool string) (sourceDir string, errCmd []string) {
	outputDir := b.outputDir(scanID, tool)
	sourceDir = filepath.Join(outputDir, "source")

	if _, err := os.Stat(sourceDir); err == nil {
		os.RemoveAll(sourceDir)
	}
	if err := os.MkdirAll(sourceDir, 0o755); err != nil {
		return "", failingCommand(fmt.Sprintf("Failed to prepare clone directory: %v", err))
	}

	cloneCmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repoURL, sourceDir)
	b.log.Info("cloning repository", slog.String("cmd", strings.Join(cloneCmd.Args, " ")))

	out, err := cloneCmd.CombinedOutput()
	if err != nil {
		msg := fmt.Sprintf("Failed to clone repository: %s", strings.TrimSpace(string(out)))
		b.log.Error(msg, slog.String("repo", repoURL))
		return "", failingCommand(msg)
	}
	return sourceDir, nil
}

// repoURLParam extracts a clone-tool's repository URL parameter. The value
// must be present and a string.
func repoURLParam(params []scans.ToolParameter, tool, flag string) (string, error) {
	p, ok := findParam(params, flag)
	if !ok {
		return "", scans.MissingParameterError(tool, flag)
	}
	url, ok := p.Value.AsString()
	if !ok || url == "" {
		return "", scans.MissingParameterError(tool, flag)
	}
	return url, nil
}
