package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/graderai/worksheets/internal/async"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/export"
	"github.com/graderai/worksheets/internal/grading"
	"github.com/graderai/worksheets/internal/pipeline"
	"github.com/graderai/worksheets/internal/provider"
	"github.com/graderai/worksheets/internal/repository"
	"github.com/graderai/worksheets/internal/server"
	"github.com/graderai/worksheets/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout); err != nil {
		logger.Error("db health failed", "error", err)
		os.Exit(1)
	}
	logger.Info("db health OK")

	uploads := repository.NewUploadRepository(pool, logger)
	assignments := repository.NewAssignmentRepository(pool, logger)

	store := storage.NewSupabaseStore(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, nil, logger)

	ocrClient := provider.NewClient(provider.Config{
		Endpoint:      cfg.Provider.Endpoint,
		APIKey:        cfg.Provider.APIKey,
		FileField:     cfg.Provider.FileField,
		UploadRetries: cfg.Provider.UploadRetries,
		PollInterval:  cfg.Provider.PollInterval,
		PollAttempts:  cfg.Provider.PollAttempts,
	}, nil, logger)

	pipe := pipeline.NewOCRPipeline(uploads, store, ocrClient,
		cfg.Storage.SubmissionsBucket, cfg.Storage.SignedURLTTL, logger)

	queue := async.NewOCRQueue(pipe, logger,
		async.WithWorkers(cfg.Queue.Workers),
		async.WithQueueSize(cfg.Queue.Size),
		async.WithProcessTimeout(cfg.Queue.ProcessTimeout),
	)

	renderer := grading.NewRenderClient(cfg.Provider.RenderBaseURL, nil, logger)
	coordinator := grading.NewCoordinator(uploads, store, renderer, logger)
	exporter := export.NewService(uploads, assignments, logger)

	srv := server.New(server.Deps{
		Uploads:     uploads,
		Assignments: assignments,
		Store:       store,
		Queue:       queue,
		Pipeline:    pipe,
		Grading:     coordinator,
		Export:      exporter,
		Health: func(ctx context.Context) error {
			return repository.HealthCheck(ctx, pool, cfg.Database.DialTimeout)
		},
		SyncOCR: cfg.Queue.Sync,
		Logger:  logger,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		queue.Shutdown(shutdownCtx)
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("stopped")
}
