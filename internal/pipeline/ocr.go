// Package pipeline runs the server-side OCR flow for one upload: sign the
// scan's download URL, stream it to the provider, await the transcript, and
// persist every lifecycle transition so failures stay diagnosable.
package pipeline

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/provider"
	"github.com/graderai/worksheets/internal/repository"
	"github.com/graderai/worksheets/internal/storage"
)

// OCRClient is the provider surface the pipeline drives.
type OCRClient interface {
	Submit(ctx context.Context, src provider.StreamSource, meta provider.SubmitMetadata) (string, error)
	AwaitResult(ctx context.Context, jobID string) (string, error)
}

// Result summarizes a completed run.
type Result struct {
	Text    string
	TextLen int
}

type OCRPipeline struct {
	uploads    repository.UploadRepository
	store      storage.ObjectStore
	client     OCRClient
	bucket     string
	signTTL    time.Duration
	httpClient *http.Client
	logger     *slog.Logger
}

func NewOCRPipeline(uploads repository.UploadRepository, store storage.ObjectStore, client OCRClient, bucket string, signTTL time.Duration, logger *slog.Logger) *OCRPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if signTTL <= 0 {
		signTTL = 15 * time.Minute
	}
	return &OCRPipeline{
		uploads:    uploads,
		store:      store,
		client:     client,
		bucket:     bucket,
		signTTL:    signTTL,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Run executes OCR for the upload. The row is marked processing up front and
// marked failed before any error returns, so the persisted status always
// reflects what happened.
func (p *OCRPipeline) Run(ctx context.Context, uploadID uuid.UUID) (Result, error) {
	start := time.Now()

	up, err := p.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return Result{}, err
	}
	if up.StoragePath == "" {
		err := common.NewError(common.KindValidation, "upload has no storage_path")
		p.markFailed(ctx, uploadID, err)
		return Result{}, err
	}

	now := time.Now().UTC()
	if err := p.uploads.MarkOCRStatus(ctx, uploadID, constants.OCRStatusProcessing, repository.OCRFields{
		StartedAt: &now,
	}); err != nil {
		return Result{}, err
	}

	signed, err := p.store.CreateSignedDownloadURL(ctx, p.bucket, up.StoragePath, p.signTTL)
	if err != nil {
		p.markFailed(ctx, uploadID, err)
		return Result{}, err
	}

	src := func(ctx context.Context) (io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode/100 != 2 {
			resp.Body.Close()
			return nil, common.UpstreamError(common.KindTransport, resp.StatusCode, "download scan")
		}
		return resp.Body, nil
	}

	ext := filepath.Ext(up.StoragePath)
	jobID, err := p.client.Submit(ctx, src, provider.SubmitMetadata{
		Filename:    filepath.Base(up.StoragePath),
		ContentType: constants.ContentTypeForExt(ext),
	})
	if err != nil {
		p.markFailed(ctx, uploadID, err)
		return Result{}, err
	}
	p.logger.Info("ocr job submitted", "upload_id", uploadID, "job_id", jobID)

	text, err := p.client.AwaitResult(ctx, jobID)
	if err != nil {
		p.markFailed(ctx, uploadID, err)
		return Result{}, err
	}

	textLen := len(text)
	done := time.Now().UTC()
	if err := p.uploads.MarkOCRStatus(ctx, uploadID, constants.OCRStatusDone, repository.OCRFields{
		Text:        &text,
		TextLen:     &textLen,
		CompletedAt: &done,
	}); err != nil {
		return Result{}, err
	}

	p.logger.Info("ocr complete",
		"upload_id", uploadID,
		"text_len", textLen,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return Result{Text: text, TextLen: textLen}, nil
}

// markFailed persists the failure; the write itself is best-effort because the
// original error is what the caller needs to see.
func (p *OCRPipeline) markFailed(ctx context.Context, uploadID uuid.UUID, cause error) {
	msg := common.Message(cause)
	if err := p.uploads.MarkOCRStatus(ctx, uploadID, constants.OCRStatusFailed, repository.OCRFields{
		Error: &msg,
	}); err != nil {
		p.logger.Error("failed to persist ocr failure", "upload_id", uploadID, "error", err)
	}
}
