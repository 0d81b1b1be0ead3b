package postprocess

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	scans "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
)

const (
	stdoutName = "output.stdout"
	stderrName = "output.stderr"
)

// nuclei: stdout plus de-noised stderr are concatenated into one digest for
// the llm path; raw streams go to review.
func (r *Registry) nuclei(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	stdoutFile := filepath.Join(outputDir, stdoutName)
	stderrFile := filepath.Join(outputDir, stderrName)

	var stdoutContent, stderrContent string
	if data, err := os.ReadFile(stdoutFile); err == nil {
		stdoutContent = string(data)
	}
	if data, err := os.ReadFile(stderrFile); err == nil {
		// the first 12 stderr lines are the nuclei banner and stats header
		lines := strings.SplitAfter(string(data), "\n")
		if len(lines) > 12 {
			stderrContent = strings.Join(lines[12:], "")
		}
	}

	digest := fmt.Sprintf("stdout: \"\"\"%s\"\"\"\n\nstderr: \"\"\"%s\"\"\"", stdoutContent, stderrContent)
	digestFile := filepath.Join(outputDir, "compiled_llm_input.txt")
	if err := os.WriteFile(digestFile, []byte(digest), 0o644); err != nil {
		r.log.Error("failed to write nuclei digest", slog.Any("err", err))
		return
	}

	uploads := []bool{
		r.upload(ctx, digestFile, r.llmPath(scanID, tool, "compiled_llm_input.txt")),
		r.upload(ctx, stdoutFile, r.reviewPath(scanID, tool, stdoutName)),
		r.upload(ctx, stderrFile, r.reviewPath(scanID, tool, stderrName)),
	}
	r.finish(tool, outputDir, uploads)
}

// nikto: stdout feeds the llm path; stdout and the JSON report go to review.
// A missing JSON report is skipped (nikto only writes it when it found
// something); missing stdout blocks cleanup.
func (r *Registry) nikto(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	stdoutFile := filepath.Join(outputDir, stdoutName)
	jsonFile := filepath.Join(outputDir, "nikto_results.json")

	var uploads []bool
	if exists(stdoutFile) {
		uploads = append(uploads, r.upload(ctx, stdoutFile, r.llmPath(scanID, tool, "nikto_llm_input.txt")))
		uploads = append(uploads, r.upload(ctx, stdoutFile, r.reviewPath(scanID, tool, stdoutName)))
	} else {
		r.log.Warn("nikto stdout missing, skipping llm upload", slog.String("path", stdoutFile))
		uploads = append(uploads, false)
	}
	if exists(jsonFile) {
		uploads = append(uploads, r.upload(ctx, jsonFile, r.reviewPath(scanID, tool, "nikto_results.json")))
	} else {
		r.log.Warn("nikto json report missing, skipping review upload", slog.String("path", jsonFile))
	}
	r.finish(tool, outputDir, uploads)
}

// sqlmap writes into a subdirectory it names after the target, so the log
// artifact has to be found under the first directory entry. Best-effort: the
// heuristic depends on enumeration order, but sqlmap creates exactly one
// subdirectory per run. When no subdirectory exists the run is treated as
// non-recoverable: raw stdout is uploaded under a _FAILURE suffix and the
// directory is deleted regardless of upload outcome.
func (r *Registry) sqlmap(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	stdoutFile := filepath.Join(outputDir, stdoutName)

	var resultDir string
	entries, _ := os.ReadDir(outputDir)
	for _, e := range entries {
		if e.IsDir() {
			resultDir = filepath.Join(outputDir, e.Name())
			break
		}
	}

	if resultDir == "" {
		r.log.Error("sqlmap output subdirectory not found", slog.String("dir", outputDir))
		if exists(stdoutFile) {
			r.upload(ctx, stdoutFile, r.reviewPath(scanID, tool, stdoutName+"_FAILURE"))
		}
		r.store.DeleteLocalTree(outputDir)
		return
	}

	logFile := filepath.Join(resultDir, "log")

	var uploads []bool
	if exists(logFile) {
		uploads = append(uploads, r.upload(ctx, logFile, r.llmPath(scanID, tool, "sqlmap_log.txt")))
	} else {
		r.log.Warn("sqlmap log file missing", slog.String("path", logFile))
		uploads = append(uploads, false)
	}
	if exists(stdoutFile) {
		uploads = append(uploads, r.upload(ctx, stdoutFile, r.reviewPath(scanID, tool, stdoutName)))
	}
	if exists(logFile) {
		uploads = append(uploads, r.upload(ctx, logFile, r.reviewPath(scanID, tool, "log.txt")))
	}
	r.finish(tool, outputDir, uploads)
}

// trivy: the JSON report goes to review only; there is no llm artifact.
func (r *Registry) trivy(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	jsonFile := filepath.Join(outputDir, "trivy_results.json")

	var uploads []bool
	if exists(jsonFile) {
		uploads = append(uploads, r.upload(ctx, jsonFile, r.reviewPath(scanID, tool, "trivy_results.json")))
	} else {
		r.log.Error("trivy json report missing", slog.String("path", jsonFile))
		uploads = append(uploads, false)
	}
	r.finish(tool, outputDir, uploads)
}

// lynis: only stdout is kept, for review; the .log/.dat files are noise.
func (r *Registry) lynis(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	stdoutFile := filepath.Join(outputDir, stdoutName)

	var uploads []bool
	if exists(stdoutFile) {
		uploads = append(uploads, r.upload(ctx, stdoutFile, r.reviewPath(scanID, tool, "lynis_audit_output.txt")))
	} else {
		r.log.Error("lynis stdout missing", slog.String("path", stdoutFile))
		uploads = append(uploads, false)
	}
	r.finish(tool, outputDir, uploads)
}

// wpscan: the JSON report goes to both destinations; missing JSON blocks
// cleanup.
func (r *Registry) wpscan(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	r.jsonToBoth(ctx, scanID, tool, outputDir, "wpscan_results.json")
}

// gitleaks: same shape as wpscan.
func (r *Registry) gitleaks(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	r.jsonToBoth(ctx, scanID, tool, outputDir, "gitleaks_results.json")
}

func (r *Registry) jsonToBoth(ctx context.Context, scanID scans.ScanID, tool, outputDir, jsonName string) {
	jsonFile := filepath.Join(outputDir, jsonName)

	var uploads []bool
	if exists(jsonFile) {
		uploads = append(uploads, r.upload(ctx, jsonFile, r.llmPath(scanID, tool, jsonName)))
		uploads = append(uploads, r.upload(ctx, jsonFile, r.reviewPath(scanID, tool, jsonName)))
	} else {
		r.log.Error("json report missing", slog.String("tool", tool), slog.String("path", jsonFile))
		uploads = append(uploads, false)
	}
	r.finish(tool, outputDir, uploads)
}

// semgrep prints its summary on stderr; that stream goes to both paths.
func (r *Registry) semgrep(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	r.streamToBoth(ctx, scanID, tool, outputDir, stderrName, "semgrep_scan_output.txt")
}

// yara reports rule matches on stderr.
func (r *Registry) yara(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	r.streamToBoth(ctx, scanID, tool, outputDir, stderrName, "yara_scan_output.txt")
}

// trufflehog prints found secrets on stdout.
func (r *Registry) trufflehog(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	r.streamToBoth(ctx, scanID, tool, outputDir, stdoutName, "trufflehog_scan_output.txt")
}

func (r *Registry) streamToBoth(ctx context.Context, scanID scans.ScanID, tool, outputDir, streamName, llmName string) {
	streamFile := filepath.Join(outputDir, streamName)

	var uploads []bool
	if exists(streamFile) {
		uploads = append(uploads, r.upload(ctx, streamFile, r.llmPath(scanID, tool, llmName)))
		uploads = append(uploads, r.upload(ctx, streamFile, r.reviewPath(scanID, tool, streamName)))
	} else {
		r.log.Error("stream capture missing", slog.String("tool", tool), slog.String("path", streamFile))
		uploads = append(uploads, false)
	}
	r.finish(tool, outputDir, uploads)
}

// httpx: the llm path gets a summary capped at the first 20 lines of stdout
// (the full file when shorter); review gets the full stdout.
func (r *Registry) httpx(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	stdoutFile := filepath.Join(outputDir, stdoutName)

	var uploads []bool
	if !exists(stdoutFile) {
		r.log.Error("httpx stdout missing", slog.String("path", stdoutFile))
		uploads = append(uploads, false)
	} else {
		summary, full, err := headLines(stdoutFile, 20)
		switch {
		case err != nil:
			r.log.Error("failed to build httpx summary", slog.Any("err", err))
			uploads = append(uploads, false)
		case full:
			// fewer than 20 lines: upload the file itself as the summary
			uploads = append(uploads, r.upload(ctx, stdoutFile, r.llmPath(scanID, tool, "httpx_summary.txt")))
		default:
			summaryFile := filepath.Join(outputDir, "httpx_summary.txt")
			if werr := os.WriteFile(summaryFile, []byte(summary), 0o644); werr != nil {
				r.log.Error("failed to write httpx summary", slog.Any("err", werr))
				uploads = append(uploads, false)
			} else {
				uploads = append(uploads, r.upload(ctx, summaryFile, r.llmPath(scanID, tool, "httpx_summary.txt")))
			}
		}
		uploads = append(uploads, r.upload(ctx, stdoutFile, r.reviewPath(scanID, tool, stdoutName)))
	}
	r.finish(tool, outputDir, uploads)
}

// headLines reads up to n lines of a file. full=true means the file ran out
// before n lines.
func headLines(path string, n int) (head string, full bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()

	var sb strings.Builder
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	for sc.Scan() {
		sb.WriteString(sc.Text())
		sb.WriteByte('\n')
		count++
		if count == n {
			return sb.String(), false, sc.Err()
		}
	}
	return sb.String(), true, sc.Err()
}
