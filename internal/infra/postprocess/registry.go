package postprocess

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	scans "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
)

// Func selects, transforms and uploads the artifacts of one tool run, then
// deletes the local output directory only when every upload it attempted
// succeeded. Upload failures gate cleanup; they are never raised.
type Func func(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string)

// Registry maps a tool to its processor, falling back to the shared default
// for unregistered names. Built once at startup, immutable afterwards.
type Registry struct {
	store scans.ArtifactStore
	log   *slog.Logger
	procs map[string]Func
}

func NewRegistry(store scans.ArtifactStore, logger *slog.Logger) *Registry {
	r := &Registry{store: store, log: logger}
	r.procs = map[string]Func{
		"nuclei":     r.nuclei,
		"nikto":      r.nikto,
		"sqlmap":     r.sqlmap,
		"trivy":      r.trivy,
		"lynis":      r.lynis,
		"wpscan":     r.wpscan,
		"semgrep":    r.semgrep,
		"trufflehog": r.trufflehog,
		"gitleaks":   r.gitleaks,
		"yara":       r.yara,
		"httpx":      r.httpx,
	}
	return r
}

// Processor returns the tool's processor or the default one.
func (r *Registry) Processor(tool string) Func {
	if p, ok := r.procs[strings.ToLower(tool)]; ok {
		return p
	}
	return r.defaultProcessor
}

// Default returns the shared default processor, used directly by the runner
// for failed and timed-out executions.
func (r *Registry) Default() Func {
	return r.defaultProcessor
}

// defaultProcessor uploads every candidate file that still exists to the
// review path and cleans up only when all of them made it.
func (r *Registry) defaultProcessor(ctx context.Context, scanID scans.ScanID, tool string, outputDir string, outputFiles []string) {
	r.log.Info("running default post-processor", slog.String("tool", tool))

	allOK := true
	for _, path := range outputFiles {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if !r.upload(ctx, path, r.reviewPath(scanID, tool, filepath.Base(path))) {
			allOK = false
		}
	}

	if allOK {
		r.store.DeleteLocalTree(outputDir)
	} else {
		r.log.Error("skipping cleanup due to upload failures", slog.String("dir", outputDir))
	}
}

// llmPath and reviewPath are the two upload destination categories: one for
// automated downstream consumption, one for human inspection.
func (r *Registry) llmPath(scanID scans.ScanID, tool, name string) string {
	return fmt.Sprintf("data/%s/vulnr/%s/llm/%s", scanID, tool, name)
}

func (r *Registry) reviewPath(scanID scans.ScanID, tool, name string) string {
	return fmt.Sprintf("data/%s/vulnr/%s/review/%s", scanID, tool, name)
}

func (r *Registry) upload(ctx context.Context, localPath, remotePath string) bool {
	return r.store.Upload(ctx, localPath, remotePath) == nil
}

// finish applies the all-or-nothing cleanup invariant for one invocation.
func (r *Registry) finish(tool, outputDir string, uploads []bool) {
	for _, ok := range uploads {
		if !ok {
			r.log.Error("skipping cleanup due to upload failures",
				slog.String("tool", tool), slog.String("dir", outputDir))
			return
		}
	}
	r.log.Info("all artifacts uploaded, cleaning up", slog.String("tool", tool))
	r.store.DeleteLocalTree(outputDir)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
