package scans

import (
	"context"
	"time"
)

// ArtifactStore port (interface untuk penyimpanan artefak)
type ArtifactStore interface {
	// Upload copies a local file to the remote key.
	Upload(ctx context.Context, localPath, remotePath string) error
	// DeleteLocalTree removes a local output directory, best-effort.
	// Failures are logged by the implementation, never returned.
	DeleteLocalTree(path string)
	// FetchPayload downloads a remote object (the worker's tool payload).
	FetchPayload(ctx context.Context, remotePath string) ([]byte, error)
}

// StatusSink port: best-effort progress reporting with bounded timeout.
// Implementations log failures and never return them.
type StatusSink interface {
	ReportToolStatus(ctx context.Context, scanID ScanID, tool string, status ToolStatus)
	ReportScanStatus(ctx context.Context, scanID ScanID, status ScanStatus)
}

// ReportRepository port (interface untuk persistence)
type ReportRepository interface {
	SaveReport(ctx context.Context, r *Report) error
	SaveToolFailure(ctx context.Context, f *ToolFailure) error
	GetReport(ctx context.Context, id ScanID) (*Report, error)
	Latest(ctx context.Context, limit int) ([]*Report, error)
	FailuresByScan(ctx context.Context, id ScanID, limit int) ([]*ToolFailure, error)
}

// Clock abstraction supaya gampang ditest
type Clock interface {
	Now() time.Time
}
