package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"

	"github.com/joseph-ayodele/skills-audit/internal/async"
	"github.com/joseph-ayodele/skills-audit/internal/browser"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/core"
	"github.com/joseph-ayodele/skills-audit/internal/core/policy"
	"github.com/joseph-ayodele/skills-audit/internal/core/report"
	"github.com/joseph-ayodele/skills-audit/internal/export"
	repo "github.com/joseph-ayodele/skills-audit/internal/repository"
	"github.com/joseph-ayodele/skills-audit/internal/server"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := common.NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// job store
	var (
		jobs repo.JobRepository
		db   *repo.DB
	)
	if cfg.Database.DSN == "" {
		logger.Warn("DB_URL not set, job snapshots are kept in memory")
		jobs = repo.NewMemoryJobRepository()
	} else {
		db, err = repo.Open(ctx, repo.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
			DialTimeout:     cfg.Database.DialTimeout,
		}, logger)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			os.Exit(1)
		}
		defer db.Close(logger)
		if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
			logger.Error("failed to ping database", "error", err)
			os.Exit(1)
		}
		jobs = repo.NewJobRepository(db, logger)
	}

	namer, err := report.NamerFor(cfg.Report.Naming)
	if err != nil {
		logger.Error("invalid report naming", "error", err)
		os.Exit(1)
	}

	counter := browser.NewPageCounter(browser.DefaultCountRules(cfg.Audit.IncludeVideo), cfg.Browser.UserAgent, logger)
	fetcher := browser.NewFetcher(cfg.Browser, counter, logger)
	writer := export.NewService(cfg.Report.OutputDir, logger)

	processor := core.NewProcessor(logger, fetcher, writer,
		core.WithPolicy(policy.FromConfig(cfg.Levels)),
		core.WithNamer(namer),
		core.WithConcurrency(cfg.Audit.Concurrency),
		core.WithTimeouts(cfg.Audit.SessionTimeout, cfg.Audit.NavigationTimeout, cfg.Audit.BatchTimeout),
	)

	queue := async.NewRunner(processor, jobs, logger,
		async.WithWorkers(cfg.Audit.Workers),
		async.WithQueueSize(cfg.Audit.QueueSize),
		async.WithJobTimeout(cfg.Audit.JobTimeout),
		async.WithProgressThrottle(cfg.Audit.ProgressInterval, cfg.Audit.ProgressMinDelta),
	)

	// gRPC health
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer()
	healthServer := server.RegisterHealth(grpcServer)
	if db != nil {
		go server.WatchDB(ctx, healthServer, db, 30*time.Second, 5*time.Second, logger)
	}
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
		}
	}()

	// HTTP
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           server.NewHandler(queue, writer.Dir(), cfg.Audit.DefaultMinimum, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve error", "error", err)
			stop()
		}
	}()
	logger.Info("skills-audit listening", "http_addr", cfg.Server.HTTPAddr, "grpc_addr", cfg.Server.GRPCAddr)

	<-ctx.Done()
	logger.Info("shutting down")
	healthServer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	grpcServer.GracefulStop()
}
