package executor

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	scans "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
)

// Builder turns structured parameters into the argument vector for one tool.
// Builders are pure apart from filesystem prerequisites (creating the tool's
// output directory, cloning a source repo).
type Builder func(ctx context.Context, target string, params []scans.ToolParameter, scanID scans.ScanID, tool string) ([]string, error)

// BuilderConfig carries the backend-managed paths builders inject into
// commands. User parameters can never override these.
type BuilderConfig struct {
	OutputsDir         string
	NucleiTemplatesDir string
	NiktoScript        string
	YaraRulesIndex     string
}

// Registry is an immutable tool → builder lookup table, built once at startup
// and passed by reference into the orchestrator.
type Registry struct {
	builders map[string]Builder
}

func NewRegistry(cfg BuilderConfig, logger *slog.Logger) *Registry {
	b := &toolBuilders{cfg: cfg, log: logger}
	return &Registry{builders: map[string]Builder{
		"nuclei":     b.nuclei,
		"nikto":      b.nikto,
		"sqlmap":     b.sqlmap,
		"trivy":      b.trivy,
		"lynis":      b.lynis,
		"wpscan":     b.wpscan,
		"semgrep":    b.semgrep,
		"trufflehog": b.trufflehog,
		"gitleaks":   b.gitleaks,
		"yara":       b.yara,
		"httpx":      b.httpx,
	}}
}

// Builder looks a tool up case-insensitively.
func (r *Registry) Builder(name string) (Builder, error) {
	b, ok := r.builders[strings.ToLower(name)]
	if !ok {
		return nil, scans.UnsupportedToolError(name)
	}
	return b, nil
}

// Names returns the supported tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.builders))
	for n := range r.builders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type toolBuilders struct {
	cfg BuilderConfig
	log *slog.Logger
}

func (b *toolBuilders) outputDir(scanID scans.ScanID, tool string) string {
	return filepath.Join(b.cfg.OutputsDir, string(scanID), tool)
}

func (b *toolBuilders) ensureOutputDir(scanID scans.ScanID, tool string) (string, error) {
	dir := b.outputDir(scanID, tool)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// appendParams applies the default emission rule: a value-bearing flag emits
// [flag, stringified(value)] (lists comma-joined), a toggle emits [flag] only
// when its value is truthy. Reserved backend-managed flags are skipped so the
// injected ones always win.
func appendParams(cmd []string, params []scans.ToolParameter, reserved map[string]bool) []string {
	for _, p := range params {
		if p.Flag == "" || reserved[p.Flag] {
			continue
		}
		if p.RequiresValue {
			if !p.Value.IsAbsent() {
				cmd = append(cmd, p.Flag, p.Value.String())
			}
		} else if p.Value.Truthy() {
			cmd = append(cmd, p.Flag)
		}
	}
	return cmd
}

// findParam returns the first parameter whose flag matches.
func findParam(params []scans.ToolParameter, flag string) (scans.ToolParameter, bool) {
	for _, p := range params {
		if p.Flag == flag {
			return p, true
		}
	}
	return scans.ToolParameter{}, false
}

// failingCommand wraps an error message as a command that prints it to stderr
// and exits 1, so the runner still produces a uniform ToolOutput.
func failingCommand(msg string) []string {
	return []string{"sh", "-c", "echo " + shellQuote(msg) + " >&2 && exit 1"}
}

// shellQuote single-quotes s for POSIX sh.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
