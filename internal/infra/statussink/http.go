package statussink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	domain "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
)

// Sink posts scan progress to an external status endpoint. Every call is
// best-effort: failures are logged and swallowed so the scan never blocks or
// aborts on a reporting hiccup.
type Sink struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func New(baseURL string, timeout time.Duration, logger *slog.Logger) *Sink {
	return &Sink{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     logger,
	}
}

func (s *Sink) ReportToolStatus(ctx context.Context, scanID domain.ScanID, tool string, status domain.ToolStatus) {
	s.post(ctx, fmt.Sprintf("%s/scans/%s/tools/%s/status", s.baseURL, scanID, tool), map[string]string{
		"scan_id": string(scanID),
		"tool":    tool,
		"status":  string(status),
	})
}

func (s *Sink) ReportScanStatus(ctx context.Context, scanID domain.ScanID, status domain.ScanStatus) {
	s.post(ctx, fmt.Sprintf("%s/scans/%s/status", s.baseURL, scanID), map[string]string{
		"scan_id": string(scanID),
		"status":  string(status),
	})
}

func (s *Sink) post(ctx context.Context, url string, body map[string]string) {
	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		s.log.Warn("status report skipped", slog.String("url", url), slog.Any("err", err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.log.Warn("status report failed", slog.String("url", url), slog.Any("err", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		s.log.Warn("status report rejected",
			slog.String("url", url),
			slog.Int("code", resp.StatusCode))
	}
}

// Noop is used when no status endpoint is configured (and in tests).
type Noop struct{}

func (Noop) ReportToolStatus(context.Context, domain.ScanID, string, domain.ToolStatus) {}
func (Noop) ReportScanStatus(context.Context, domain.ScanID, domain.ScanStatus)         {}
