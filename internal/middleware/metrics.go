package middleware

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"
)

// Metrics stores application metrics
type Metrics struct {
	RequestsTotal      uint64
	RequestsInProgress uint64
	ScansAccepted      uint64
	ScansCompleted     uint64
	ScansFailed        uint64
	ToolsExecuted      uint64
	ToolsFailed        uint64
	StartTime          time.Time
}

var globalMetrics = &Metrics{
	StartTime: time.Now(),
}

// IncrementRequests increments total request counter
func IncrementRequests() {
	atomic.AddUint64(&globalMetrics.RequestsTotal, 1)
}

// IncrementInProgress increments in-progress request counter
func IncrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, 1)
}

// DecrementInProgress decrements in-progress request counter
func DecrementInProgress() {
	atomic.AddUint64(&globalMetrics.RequestsInProgress, ^uint64(0))
}

// IncrementScansAccepted counts scan requests taken off the intake
func IncrementScansAccepted() {
	atomic.AddUint64(&globalMetrics.ScansAccepted, 1)
}

// IncrementScansCompleted counts scans that produced a final report
func IncrementScansCompleted() {
	atomic.AddUint64(&globalMetrics.ScansCompleted, 1)
}

// IncrementScansFailed counts scans that could not produce a report
func IncrementScansFailed() {
	atomic.AddUint64(&globalMetrics.ScansFailed, 1)
}

// IncrementToolsExecuted counts individual tool runs
func IncrementToolsExecuted() {
	atomic.AddUint64(&globalMetrics.ToolsExecuted, 1)
}

// IncrementToolsFailed counts tool runs that ended unsuccessfully
func IncrementToolsFailed() {
	atomic.AddUint64(&globalMetrics.ToolsFailed, 1)
}

// MetricsMiddleware tracks request counters around every handler
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		IncrementRequests()
		IncrementInProgress()
		defer DecrementInProgress()
		next.ServeHTTP(w, r)
	})
}

// MetricsHandler exposes the counters as JSON
func MetricsHandler(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snapshot := map[string]any{
		"requests_total":       atomic.LoadUint64(&globalMetrics.RequestsTotal),
		"requests_in_progress": atomic.LoadUint64(&globalMetrics.RequestsInProgress),
		"scans_accepted":       atomic.LoadUint64(&globalMetrics.ScansAccepted),
		"scans_completed":      atomic.LoadUint64(&globalMetrics.ScansCompleted),
		"scans_failed":         atomic.LoadUint64(&globalMetrics.ScansFailed),
		"tools_executed":       atomic.LoadUint64(&globalMetrics.ToolsExecuted),
		"tools_failed":         atomic.LoadUint64(&globalMetrics.ToolsFailed),
		"uptime_seconds":       time.Since(globalMetrics.StartTime).Seconds(),
		"goroutines":           runtime.NumGoroutine(),
		"heap_alloc_bytes":     m.HeapAlloc,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
