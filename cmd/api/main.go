package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bryanwahyu/vulnr-dispatch/internal/application"
	appai "github.com/bryanwahyu/vulnr-dispatch/internal/application/ai"
	appscans "github.com/bryanwahyu/vulnr-dispatch/internal/application/scans"
	"github.com/bryanwahyu/vulnr-dispatch/internal/config"
	domain "github.com/bryanwahyu/vulnr-dispatch/internal/domain/scans"
	openaiClient "github.com/bryanwahyu/vulnr-dispatch/internal/infra/ai/openai"
	mysqlp "github.com/bryanwahyu/vulnr-dispatch/internal/infra/db/mysql"
	postgresp "github.com/bryanwahyu/vulnr-dispatch/internal/infra/db/postgres"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/executor"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/httpserver"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/postprocess"
	"github.com/bryanwahyu/vulnr-dispatch/internal/infra/statussink"
	minioStore "github.com/bryanwahyu/vulnr-dispatch/internal/infra/storage"
	applog "github.com/bryanwahyu/vulnr-dispatch/internal/log"
	"github.com/bryanwahyu/vulnr-dispatch/internal/middleware"
)

func main() {
	// path config.yaml
	path := "config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		path = v
	}

	logger := applog.New(os.Getenv("VERBOSE") != "")

	// load config
	cfg, err := config.Load(path)
	if err != nil {
		logger.Error("config load error", slog.Any("err", err))
		os.Exit(1)
	}

	ctx := context.Background()

	// connect DB (optional: no driver = no scan history)
	var (
		db   *sql.DB
		repo domain.ReportRepository
	)
	switch cfg.Database.Driver {
	case "mysql":
		db, err = mysqlp.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			logger.Error("mysql connect error", slog.Any("err", err))
			os.Exit(1)
		}
		repo = mysqlp.NewReportRepository(db)
	case "postgres":
		db, err = postgresp.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			logger.Error("postgres connect error", slog.Any("err", err))
			os.Exit(1)
		}
		repo = postgresp.NewReportRepository(db)
	case "":
		logger.Warn("no database driver configured, scan history disabled")
	default:
		logger.Error("unknown database driver", slog.String("driver", cfg.Database.Driver))
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	}

	// init minio
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

	// status sink (optional)
	var sink domain.StatusSink = statussink.Noop{}
	if cfg.StatusSink.BaseURL != "" {
		sink = statussink.New(cfg.StatusSink.BaseURL,
			time.Duration(cfg.StatusSink.TimeoutSeconds)*time.Second, logger)
	}

	// init registries + runner
	builders := executor.NewRegistry(executor.BuilderConfig{
		OutputsDir:         cfg.Scanner.OutputsDir,
		NucleiTemplatesDir: cfg.Scanner.NucleiTemplatesDir,
		NiktoScript:        cfg.Scanner.NiktoScript,
		YaraRulesIndex:     cfg.Scanner.YaraRulesIndex,
	}, logger)
	procs := postprocess.NewRegistry(store, logger)
	runner := executor.NewRunner(cfg.Scanner.OutputsDir, procs, logger)

	// init service
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

	// AI analysis (optional)
	var aiSvc *appai.Service
	if cfg.OpenAI.APIKey != "" {
		aiSvc = appai.NewService(openaiClient.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model))
	}

	health := map[string]middleware.HealthChecker{}
	if db != nil {
		health["database"] = &middleware.DatabaseHealthChecker{DB: db}
	}

	mux := httpserver.NewRouter(httpserver.Options{
		ScansSvc:    svc,
		AISvc:       aiSvc,
		Repo:        repo,
		OutputsRoot: cfg.Scanner.OutputsDir,
		Tools:       builders.Names(),
		Health:      health,
		Log:         logger,
		APIKeys:     cfg.Server.APIKeys,
		RateLimit:   cfg.Server.RateLimit,
		RateBurst:   cfg.Server.RateLimitBurst,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// run server
	go func() {
		logger.Info("server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	// graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down server...")

	ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx2); err != nil {
		logger.Error("shutdown error", slog.Any("err", err))
	}
}
