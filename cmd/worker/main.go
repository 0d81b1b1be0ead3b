package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bryanwahyu/vulnr-dispatch/internal/application"
	appscans "github.com/bryanwahyu/vulnr-dispatch/internal/application/scans"
	"github.com/bryanwahyu/vulnr-dispatch/internal/config"
	domain "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
	mysqlp "github.com/bryanwahyu/vulnr-dispatch/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/vulnr-dispatch/internal/infra/db/postgres"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/executor"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/postprocess"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/statussink"
	minioStore "github.com/bryanwahyu/vulnr-dispatch/internal/infra/storage"
	applog "github.com/bryanwahyu/vulnr-dispatch/internal/log"
)

// The worker runs one scan and exits. It is meant to be launched per scan by
// a workflow engine: the tool list comes from an uploaded payload object, not
// from argv, so huge tool configurations never hit command-line limits.
func main() {
	logger := applog.New(os.Getenv("VERBOSE") != "")

	scanID := os.Getenv("SCAN_ID")
	target := os.Getenv("TARGET")
	if scanID == "" || target == "" {
		logger.Error("SCAN_ID and TARGET are required")
		os.Exit(1)
	}

	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("config load error", slog.Any("err", err))
		os.Exit(1)
	}

	ctx := context.Background()

	store, err := minioStore.New(ctx,
		cfg.Minio.Endpoint,
		cfg.Minio.Region,
		cfg.Minio.BucketName,
		cfg.Minio.AccessKey,
		cfg.Minio.SecretKey,
		cfg.Minio.UseSSL,
		logger,
	)
	if err != nil {
		logger.Error("minio init error", slog.Any("err", err))
		os.Exit(1)
	}

	// ambil payload tools dari object storage
	payloadKey := fmt.Sprintf("data/%s/vulnr-payload.json", scanID)
	raw, err := store.FetchPayload(ctx, payloadKey)
	if err != nil {
		logger.Error("payload fetch error",
			slog.String("key", payloadKey), slog.Any("err", err))
		os.Exit(1)
	}

	var tools []domain.ToolExecutionRequest
	if err := json.Unmarshal(raw, &tools); err != nil {
		logger.Error("payload decode error", slog.Any("err", err))
		os.Exit(1)
	}

	// DB optional untuk worker
	var (
		db   *sql.DB
		repo domain.ReportRepository
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err == nil {
			repo = mysqlp.NewReportRepository(db)
		}
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err == nil {
			repo = postgresp.NewReportRepository(db)
		}
	}
	if err != nil {
		logger.Warn("database unavailable, scan history disabled", slog.Any("err", err))
	}
	if db != nil {
		defer db.Close()
	}

	var sink domain.StatusSink = statussink.Noop{}
	if cfg.StatusSink.BaseURL != "" {
		sink = statussink.New(cfg.StatusSink.BaseURL,
			time.Duration(cfg.StatusSink.TimeoutSeconds)*time.Second, logger)
	}

	builders := executor.NewRegistry(executor.BuilderConfig{
		OutputsDir:         cfg.Scanner.OutputsDir,
		NucleiTemplatesDir: cfg.Scanner.NucleiTemplatesDir,
		NiktoScript:        cfg.Scanner.NiktoScript,
		YaraRulesIndex:     cfg.Scanner.YaraRulesIndex,
	}, logger)
	procs := postprocess.NewRegistry(store, logger)
	runner := executor.NewRunner(cfg.Scanner.OutputsDir, procs, logger)

	svc := &appscans.Service{
		Builders:    builders,
		Runner:      runner,
		Sink:        sink,
		Repo:        repo,
		Clock:       application.SystemClock{},
		Log:         logger,
		OutputsRoot: cfg.Scanner.OutputsDir,
		ToolTimeout: cfg.ToolTimeout(),
		Parallelism: cfg.Scanner.Parallelism,
	}

	result, err := svc.Run(ctx, domain.ScanRequest{
		ScanID: domain.ScanID(scanID),
		Target: target,
		Tools:  tools,
	})
	if err != nil {
		logger.Error("scan failed", slog.String("scan_id", scanID), slog.Any("err", err))
		os.Exit(1)
	}

	logger.Info("scan done",
		slog.String("scan_id", string(result.ScanID)),
		slog.String("status", result.Status))
}
