package scans

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bryanwahyu/vulnr-dispatch/internal/application"
	domain "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/executor"
	"github.com/bryanwahyu/vulnr-dispatch/internal/netutil"
)

// ReportFileName is the per-scan completion signal; external pollers read it
// by scan id.
const ReportFileName = "final_results.json"

// BuilderResolver resolves a tool name to its command builder.
type BuilderResolver interface {
	Builder(name string) (executor.Builder, error)
}

// ToolRunner executes one command and always yields a ToolOutput.
type ToolRunner interface {
	Execute(ctx context.Context, command []string, scanID domain.ScanID, tool string, timeout time.Duration) domain.ToolOutput
}

// Service is the scan orchestrator: it walks the tool list of one request,
// aggregates per-tool results into the final report and persists it.
// One misbehaving tool never aborts the remaining ones.
type Service struct {
	Builders    BuilderResolver
	Runner      ToolRunner
	Sink        domain.StatusSink
	Repo        domain.ReportRepository // optional; persistence is best-effort
	Clock       application.Clock
	Log         *slog.Logger
	OutputsRoot string
	ToolTimeout time.Duration
	// Parallelism 1 keeps the upstream strictly-sequential behavior; >1 runs
	// tools in a bounded pool. Output dirs are disjoint per (scan, tool), so
	// no extra synchronization is needed and results stay in request order.
	Parallelism int
}

// RunResult is the orchestrator's answer to its caller; the full report lives
// in the per-scan report file.
type RunResult struct {
	Status string        `json:"status"`
	ScanID domain.ScanID `json:"scan_id"`
}

type toolFailure struct {
	tool    string
	phase   string
	message string
}

// Run executes a full scan. It returns an error only for unrecoverable setup
// or persistence failures; partial tool failures are reported in the scan
// status instead.
func (s *Service) Run(ctx context.Context, req domain.ScanRequest) (RunResult, error) {
	if err := req.Validate(); err != nil {
		return RunResult{}, err
	}

	s.Log.Info("starting scan",
		slog.String("scan_id", string(req.ScanID)),
		slog.String("target", req.Target),
		slog.Int("tools", len(req.Tools)))

	results := make([]domain.ToolOutput, len(req.Tools))
	failures := make([][]toolFailure, len(req.Tools))

	if s.Parallelism > 1 {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.Parallelism)
		for i, toolReq := range req.Tools {
			i, toolReq := i, toolReq
			g.Go(func() error {
				results[i], failures[i] = s.runTool(gctx, req, toolReq)
				return nil
			})
		}
		// workers never return errors; Wait is just a barrier
		_ = g.Wait()
	} else {
		for i, toolReq := range req.Tools {
			results[i], failures[i] = s.runTool(ctx, req, toolReq)
		}
	}

	resp := domain.ScanResponse{
		ScanID:       req.ScanID,
		Target:       req.Target,
		TargetDomain: netutil.ReverseLookup(ctx, req.Target),
		Results:      results,
		Message:      "Scan completed by worker.",
		Status:       domain.AggregateStatus(results),
	}

	reportPath, err := s.persistReport(resp)
	if err != nil {
		return RunResult{}, fmt.Errorf("persist final report: %w", err)
	}

	s.saveHistory(ctx, &resp, reportPath, flatten(failures))
	s.Sink.ReportScanStatus(ctx, req.ScanID, resp.Status)

	s.Log.Info("scan completed",
		slog.String("scan_id", string(req.ScanID)),
		slog.String("status", string(resp.Status)),
		slog.String("report", reportPath))

	return RunResult{Status: "complete", ScanID: req.ScanID}, nil
}

// runTool resolves the builder, executes the command and converts any
// builder or executor failure into a synthetic failed ToolOutput.
func (s *Service) runTool(ctx context.Context, req domain.ScanRequest, toolReq domain.ToolExecutionRequest) (domain.ToolOutput, []toolFailure) {
	name := toolReq.Name
	s.Sink.ReportToolStatus(ctx, req.ScanID, name, domain.ToolRunning)

	builder, err := s.Builders.Builder(name)
	if err != nil {
		return s.syntheticFailure(ctx, req.ScanID, name, "build", err)
	}

	command, err := builder(ctx, req.Target, toolReq.Parameters, req.ScanID, name)
	if err != nil {
		return s.syntheticFailure(ctx, req.ScanID, name, "build", err)
	}

	out := s.Runner.Execute(ctx, command, req.ScanID, name, s.ToolTimeout)

	if out.Success {
		s.Sink.ReportToolStatus(ctx, req.ScanID, name, domain.ToolCompleted)
		return out, nil
	}
	s.Sink.ReportToolStatus(ctx, req.ScanID, name, domain.ToolFailed)
	return out, []toolFailure{{tool: name, phase: "execute", message: out.Stderr}}
}

func (s *Service) syntheticFailure(ctx context.Context, scanID domain.ScanID, tool, phase string, err error) (domain.ToolOutput, []toolFailure) {
	msg := fmt.Sprintf("Worker error running '%s': %v", tool, err)
	s.Log.Error(msg, slog.String("scan_id", string(scanID)))
	s.Sink.ReportToolStatus(ctx, scanID, tool, domain.ToolFailed)

	return domain.ToolOutput{
		ToolName:        tool,
		Command:         []string{},
		ReturnCode:      -1,
		Stderr:          msg,
		OutputFilePaths: []string{},
		Success:         false,
	}, []toolFailure{{tool: tool, phase: phase, message: msg}}
}

// persistReport writes the final report exactly once; this is the scan's
// completion signal and the only write allowed to fail the scan.
func (s *Service) persistReport(resp domain.ScanResponse) (string, error) {
	dir := filepath.Join(s.OutputsRoot, string(resp.ScanID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ReportFileName)

	data, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// saveHistory records the summary row and per-tool failures. Best-effort:
// the report file is already on disk, DB trouble must not fail the scan.
func (s *Service) saveHistory(ctx context.Context, resp *domain.ScanResponse, reportPath string, failures []toolFailure) {
	if s.Repo == nil {
		return
	}
	now := s.Clock.Now()

	failed := 0
	for _, r := range resp.Results {
		if !r.Success {
			failed++
		}
	}
	report := &domain.Report{
		ScanID:      resp.ScanID,
		Target:      resp.Target,
		Status:      resp.Status,
		ToolsTotal:  len(resp.Results),
		ToolsFailed: failed,
		ReportPath:  reportPath,
		CreatedAt:   now,
	}
	if err := s.Repo.SaveReport(ctx, report); err != nil {
		s.Log.Error("failed to save scan report row", slog.Any("err", err))
	}
	for _, f := range failures {
		entry := &domain.ToolFailure{
			ScanID:    resp.ScanID,
			Tool:      f.tool,
			Phase:     f.phase,
			Message:   f.message,
			CreatedAt: now,
		}
		if err := s.Repo.SaveToolFailure(ctx, entry); err != nil {
			s.Log.Error("failed to save tool failure row", slog.Any("err", err))
		}
	}
}

func flatten(groups [][]toolFailure) []toolFailure {
	var out []toolFailure
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
