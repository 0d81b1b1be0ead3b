package scans

import (
	"strings"
	"time"
)

// ScanID tipe untuk Scan
type ScanID string

// ScanStatus enum (aggregate result of one scan)
type ScanStatus string

const (
	StatusSuccess        ScanStatus = "success"
	StatusPartialFailure ScanStatus = "partial_failure"
	StatusFailed         ScanStatus = "failed"
)

// ToolStatus enum (per-tool lifecycle reported to the status sink)
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolRunning   ToolStatus = "running"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// ToolParameter is one CLI argument for a tool. RequiresValue=false means the
// flag is a toggle emitted when Value is truthy; otherwise Value is emitted
// after the flag.
type ToolParameter struct {
	Flag          string     `json:"flag"`
	Description   string     `json:"description,omitempty"`
	Value         ParamValue `json:"value,omitempty"`
	RequiresValue bool       `json:"requiresValue,omitempty"`
}

// ToolExecutionRequest is one tool invocation within a scan.
type ToolExecutionRequest struct {
	Name       string          `json:"name"`
	Parameters []ToolParameter `json:"parameters"`
}

// ScanRequest is the full scan order: one target, one id, an ordered tool list.
type ScanRequest struct {
	ScanID ScanID                 `json:"scan_id"`
	Target string                 `json:"target"`
	Tools  []ToolExecutionRequest `json:"tools"`
}

// Validate normalizes and checks the request. The intake boundary calls this;
// the orchestrator trusts a validated request.
func (r *ScanRequest) Validate() error {
	r.Target = strings.TrimSpace(r.Target)
	if r.Target == "" {
		return ErrEmptyTarget
	}
	if strings.TrimSpace(string(r.ScanID)) == "" {
		return ErrEmptyScanID
	}
	for _, t := range r.Tools {
		if strings.TrimSpace(t.Name) == "" {
			return ErrEmptyToolName
		}
	}
	return nil
}

// ToolOutput is the immutable record of one tool execution. Stdout/Stderr hold
// only the last 2000 characters; the full streams live in the uploaded files.
type ToolOutput struct {
	ToolName        string   `json:"tool_name"`
	Command         []string `json:"command"`
	ReturnCode      int      `json:"return_code"`
	Stdout          string   `json:"stdout"`
	Stderr          string   `json:"stderr"`
	OutputFilePaths []string `json:"output_file_paths"`
	Success         bool     `json:"success"`
}

// ScanResponse is the terminal artifact of a scan, written exactly once.
type ScanResponse struct {
	ScanID       ScanID       `json:"scan_id"`
	Target       string       `json:"target"`
	TargetDomain string       `json:"target_domain,omitempty"`
	Results      []ToolOutput `json:"results"`
	Message      string       `json:"message"`
	Status       ScanStatus   `json:"status"`
}

// AggregateStatus derives the scan status from per-tool results:
// success iff all succeeded, failed iff none did, partial_failure otherwise.
func AggregateStatus(results []ToolOutput) ScanStatus {
	any, all := false, true
	for _, r := range results {
		if r.Success {
			any = true
		} else {
			all = false
		}
	}
	switch {
	case len(results) == 0 || all:
		return StatusSuccess
	case any:
		return StatusPartialFailure
	default:
		return StatusFailed
	}
}

// Report is the persisted summary row for a completed scan.
type Report struct {
	ScanID      ScanID     `json:"scan_id"`
	Target      string     `json:"target"`
	Status      ScanStatus `json:"status"`
	ToolsTotal  int        `json:"tools_total"`
	ToolsFailed int        `json:"tools_failed"`
	ReportPath  string     `json:"report_path"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToolFailure is a persisted per-tool failure entry (synthetic or real).
type ToolFailure struct {
	ID        int64     `json:"id"`
	ScanID    ScanID    `json:"scan_id"`
	Tool      string    `json:"tool"`
	Phase     string    `json:"phase"` // build | execute
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
