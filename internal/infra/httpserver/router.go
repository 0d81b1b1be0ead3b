package httpserver

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	appai "github.com/bryanwahyu/vulnr-dispatch/internal/application/ai"
	appscans "github.com/bryanwahyu/vulnr-dispatch/internal/application/scans"
	domai "github.com/bryanwahyu/vulnr-dispatch/internal/domain/ai"
	domain "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
	"github.com/bryanwahyu/vulnr-dispatch/internal/middleware"
)

type Router struct {
	scansSvc    *appscans.Service
	aiSvc       *appai.Service
	repo        domain.ReportRepository
	outputsRoot string
	tools       []string
}

type Options struct {
	ScansSvc    *appscans.Service
	AISvc       *appai.Service // nil = analysis endpoint disabled
	Repo        domain.ReportRepository
	OutputsRoot string
	Tools       []string
	Health      map[string]middleware.HealthChecker
	Log         *slog.Logger // nil = no request logging
	APIKeys     []string     // empty = no auth
	RateLimit   int          // requests/sec per IP; 0 = unlimited
	RateBurst   int
}

func NewRouter(opts Options) http.Handler {
	r := &Router{
		scansSvc:    opts.ScansSvc,
		aiSvc:       opts.AISvc,
		repo:        opts.Repo,
		outputsRoot: opts.OutputsRoot,
		tools:       opts.Tools,
	}
	mux := chi.NewRouter()

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.MetricsMiddleware)
	if opts.Log != nil {
		mux.Use(middleware.LoggingMiddleware(opts.Log))
	}
	if opts.RateLimit > 0 {
		rl := middleware.NewRateLimiter(opts.RateBurst, opts.RateLimit)
		mux.Use(rl.Middleware)
	}
	if len(opts.APIKeys) > 0 {
		keys := make(map[string]bool, len(opts.APIKeys))
		for _, k := range opts.APIKeys {
			keys[k] = true
		}
		mux.Use(middleware.APIKeyAuth(keys))
	}

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/live", middleware.LivenessHandler)
	mux.Get("/metrics", middleware.MetricsHandler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/scan", r.wrap(r.handleTriggerScan))
		rt.Get("/results/{scanID}", r.wrap(r.handleResults))
		rt.Get("/tools", r.wrap(r.handleTools))
		rt.Get("/scans/latest", r.wrap(r.handleLatest))
		rt.Get("/scans/{id}", r.wrap(r.handleGet))
		rt.Get("/scans/{id}/failures", r.wrap(r.handleFailures))
		rt.Post("/scans/{id}/analyze", r.wrap(r.handleAnalyze))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

// badRequest marks client mistakes so wrap can answer 400 instead of 500.
type badRequest struct{ err error }

func (b badRequest) Error() string { return b.err.Error() }
func (b badRequest) Unwrap() error { return b.err }

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			var br badRequest
			switch {
			case errors.As(err, &br):
				http.Error(w, br.Error(), http.StatusBadRequest)
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "not found", http.StatusNotFound)
			case errors.Is(err, domai.ErrQuotaExceeded):
				http.Error(w, "ai quota exceeded", http.StatusTooManyRequests)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// POST /v1/scan
// Body: {"scan_id": "...", "target": "...", "tools": [{"name": "...", "parameters": [...]}]}
func (r *Router) handleTriggerScan(w http.ResponseWriter, req *http.Request) error {
	var body domain.ScanRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		return badRequest{err}
	}
	if body.ScanID == "" {
		body.ScanID = domain.ScanID(uuid.New().String())
	}

	if err := middleware.ValidateScanID(string(body.ScanID)); err != nil {
		return badRequest{err}
	}
	if err := middleware.ValidateTarget(body.Target); err != nil {
		return badRequest{err}
	}
	for _, t := range body.Tools {
		if err := middleware.ValidateTool(t.Name); err != nil {
			return badRequest{err}
		}
	}
	if err := body.Validate(); err != nil {
		return badRequest{err}
	}

	middleware.IncrementScansAccepted()

	// 🚀 jalanin di background, request context mati begitu respons terkirim
	go func() {
		result, err := r.scansSvc.Run(context.Background(), body)
		if err != nil {
			middleware.IncrementScansFailed()
			fmt.Printf("background scan error scan_id=%s: %v\n", body.ScanID, err)
			return
		}
		middleware.IncrementScansCompleted()
		fmt.Printf("scan finished: scan_id=%s status=%s\n", result.ScanID, result.Status)
	}()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	return json.NewEncoder(w).Encode(map[string]any{
		"status":   "queued",
		"scan_id":  body.ScanID,
		"target":   body.Target,
		"tools":    len(body.Tools),
		"message":  "scan started in background",
		"queuedAt": time.Now(),
	})
}

// GET /v1/results/{scanID}
// 200 with the final report once it exists, 202 while the scan is still running.
func (r *Router) handleResults(w http.ResponseWriter, req *http.Request) error {
	id := chi.URLParam(req, "scanID")
	if err := middleware.ValidateScanID(id); err != nil {
		return badRequest{err}
	}

	path := filepath.Join(r.outputsRoot, id, appscans.ReportFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			return json.NewEncoder(w).Encode(map[string]string{
				"scan_id": id,
				"status":  "pending",
			})
		}
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	return err
}

// GET /v1/tools
func (r *Router) handleTools(w http.ResponseWriter, req *http.Request) error {
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]any{"tools": r.tools})
}

// GET /v1/scans/latest?limit=20
func (r *Router) handleLatest(w http.ResponseWriter, req *http.Request) error {
	if r.repo == nil {
		return fmt.Errorf("scan history is not configured")
	}
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.repo.Latest(req.Context(), limit)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// GET /v1/scans/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	if r.repo == nil {
		return fmt.Errorf("scan history is not configured")
	}
	id := chi.URLParam(req, "id")

	report, err := r.repo.GetReport(req.Context(), domain.ScanID(id))
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(report)
}

// GET /v1/scans/{id}/failures?limit=50
func (r *Router) handleFailures(w http.ResponseWriter, req *http.Request) error {
	if r.repo == nil {
		return fmt.Errorf("scan history is not configured")
	}
	id := chi.URLParam(req, "id")
	limit, _ := strconv.Atoi(req.URL.Query().Get("limit"))

	list, err := r.repo.FailuresByScan(req.Context(), domain.ScanID(id), limit)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(list)
}

// POST /v1/scans/{id}/analyze
// Runs AI analysis over the persisted final report of a completed scan.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) error {
	if r.aiSvc == nil {
		http.Error(w, "ai analysis is not configured", http.StatusServiceUnavailable)
		return nil
	}
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateScanID(id); err != nil {
		return badRequest{err}
	}

	path := filepath.Join(r.outputsRoot, id, appscans.ReportFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return badRequest{fmt.Errorf("no final report for scan_id: %s", id)}
		}
		return err
	}

	summary, err := r.aiSvc.Summarize(req.Context(), string(data))
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(map[string]string{
		"scan_id":  id,
		"analysis": summary,
	})
}
