package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/pipeline"
	"github.com/graderai/worksheets/internal/provider"
	"github.com/graderai/worksheets/internal/repository"
	"github.com/graderai/worksheets/internal/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "runocr <upload-id-uuid>")
		os.Exit(2)
	}
	uploadID, err := uuid.Parse(os.Args[1])
	if err != nil {
		logger.Error("invalid upload id (must be UUID)", "arg", os.Args[1], "error", err)
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	uploads := repository.NewUploadRepository(pool, logger)
	store := storage.NewSupabaseStore(cfg.Storage.BaseURL, cfg.Storage.ServiceKey, nil, logger)
	ocrClient := provider.NewClient(provider.Config{
		Endpoint:      cfg.Provider.Endpoint,
		APIKey:        cfg.Provider.APIKey,
		FileField:     cfg.Provider.FileField,
		UploadRetries: cfg.Provider.UploadRetries,
		PollInterval:  cfg.Provider.PollInterval,
		PollAttempts:  cfg.Provider.PollAttempts,
	}, nil, logger)

	p := pipeline.NewOCRPipeline(uploads, store, ocrClient,
		cfg.Storage.SubmissionsBucket, cfg.Storage.SignedURLTTL, logger)

	start := time.Now()
	res, err := p.Run(ctx, uploadID)
	dur := time.Since(start)

	if err != nil {
		logger.Error("ocr failed",
			"upload_id", uploadID, "error", err, "duration_ms", dur.Milliseconds())
		os.Exit(1)
	}

	logger.Info("ocr OK",
		"upload_id", uploadID,
		"text_len", res.TextLen,
		"duration_ms", dur.Milliseconds(),
	)
}
