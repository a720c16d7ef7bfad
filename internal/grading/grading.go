// Package grading owns the teacher-facing grading flow: recording per-question
// verdicts and producing the annotated (graded) PDF artifact.
package grading

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/entity"
	"github.com/graderai/worksheets/internal/repository"
	"github.com/graderai/worksheets/internal/storage"
)

// RenderRequest carries everything the render backend needs to draw verdict
// overlays onto the original scan.
type RenderRequest struct {
	UploadID  uuid.UUID         `json:"upload_id"`
	SourceURL string            `json:"source_url"`
	Verdicts  map[string]string `json:"verdicts"`
	OCRText   string            `json:"ocr_text,omitempty"`
}

// Generator produces the annotated PDF bytes for a graded worksheet.
type Generator interface {
	GeneratePDF(ctx context.Context, req RenderRequest) ([]byte, error)
}

// Artifact is the result of a successful graded-PDF generation.
type Artifact struct {
	Path      string `json:"path"`
	SignedURL string `json:"signed_url"`
}

type Coordinator struct {
	uploads   repository.UploadRepository
	store     storage.ObjectStore
	generator Generator
	schema    *jsonschema.Schema
	bucket    string
	signTTL   time.Duration
	logger    *slog.Logger
}

func NewCoordinator(uploads repository.UploadRepository, store storage.ObjectStore, generator Generator, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		uploads:   uploads,
		store:     store,
		generator: generator,
		schema:    mustVerdictSchema(),
		bucket:    constants.GradedBucket,
		signTTL:   15 * time.Minute,
		logger:    logger,
	}
}

// SetVerdicts validates and stores the full verdict mapping for an upload.
// The mapping replaces whatever was stored before; a single bad key or value
// rejects the whole request.
func (c *Coordinator) SetVerdicts(ctx context.Context, uploadID uuid.UUID, verdicts map[string]string) (*entity.Upload, error) {
	if err := c.validateVerdicts(verdicts); err != nil {
		return nil, err
	}
	if _, err := c.uploads.GetByID(ctx, uploadID); err != nil {
		return nil, err
	}
	if err := c.uploads.SetVerdicts(ctx, uploadID, verdicts); err != nil {
		return nil, err
	}
	c.logger.Info("verdicts saved", "upload_id", uploadID, "count", len(verdicts))
	return c.uploads.GetByID(ctx, uploadID)
}

// CreateArtifact renders the graded PDF for an upload, stores it in the graded
// bucket, and records its path. An upload with no verdicts is rejected before
// any render or storage call is made.
func (c *Coordinator) CreateArtifact(ctx context.Context, uploadID uuid.UUID) (*Artifact, error) {
	u, err := c.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if !u.HasVerdicts() {
		return nil, common.NewError(common.KindPreconditionFailed, "no verdicts recorded for this upload")
	}
	if u.StoragePath == "" {
		return nil, common.NewError(common.KindPreconditionFailed, "upload has no stored scan")
	}

	sourceURL, err := c.store.CreateSignedDownloadURL(ctx, constants.SubmissionsBucket, u.StoragePath, c.signTTL)
	if err != nil {
		return nil, common.WrapError(common.KindUpstreamFailure, "sign source scan", err)
	}

	req := RenderRequest{
		UploadID:  u.ID,
		SourceURL: sourceURL,
		Verdicts:  u.Verdicts,
	}
	if u.OCRText != nil {
		req.OCRText = *u.OCRText
	}

	pdf, err := c.generator.GeneratePDF(ctx, req)
	if err != nil {
		return nil, err
	}

	key := gradedKey(u)
	if _, err := c.store.Upload(ctx, c.bucket, key, pdf, "application/pdf"); err != nil {
		return nil, common.WrapError(common.KindUpstreamFailure, "store graded pdf", err)
	}
	if err := c.uploads.SetGradedPath(ctx, uploadID, key); err != nil {
		return nil, err
	}

	signedURL, err := c.store.CreateSignedDownloadURL(ctx, c.bucket, key, c.signTTL)
	if err != nil {
		return nil, common.WrapError(common.KindUpstreamFailure, "sign graded pdf", err)
	}

	c.logger.Info("graded pdf stored", "upload_id", uploadID, "path", key)
	return &Artifact{Path: key, SignedURL: signedURL}, nil
}

// SignedArtifactURL returns a fresh download URL for an already-generated
// graded PDF.
func (c *Coordinator) SignedArtifactURL(ctx context.Context, uploadID uuid.UUID) (string, error) {
	u, err := c.uploads.GetByID(ctx, uploadID)
	if err != nil {
		return "", err
	}
	if u.GradedPDFPath == nil || *u.GradedPDFPath == "" {
		return "", common.NewError(common.KindNotFound, "no graded pdf for this upload")
	}
	url, err := c.store.CreateSignedDownloadURL(ctx, c.bucket, *u.GradedPDFPath, c.signTTL)
	if err != nil {
		return "", common.WrapError(common.KindUpstreamFailure, "sign graded pdf", err)
	}
	return url, nil
}

func (c *Coordinator) validateVerdicts(verdicts map[string]string) error {
	if len(verdicts) == 0 {
		return common.NewError(common.KindValidation, "verdicts must not be empty")
	}
	b, err := json.Marshal(verdicts)
	if err != nil {
		return common.WrapError(common.KindInternal, "encode verdicts", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return common.WrapError(common.KindInternal, "decode verdicts", err)
	}
	if err := c.schema.Validate(v); err != nil {
		return common.WrapError(common.KindValidation, "verdicts do not match schema", err)
	}
	return nil
}

// gradedKey mirrors the submission layout inside the graded bucket:
// <owner>/<upload-id>_graded.pdf.
func gradedKey(u *entity.Upload) string {
	owner := strings.Trim(u.OwnerID, "/")
	if owner == "" {
		owner = "unassigned"
	}
	return path.Join(owner, u.ID.String()+"_graded.pdf")
}

// mustVerdictSchema compiles the verdict-mapping schema: only known question
// keys, only allowed verdict values, at least one entry.
func mustVerdictSchema() *jsonschema.Schema {
	values := make([]any, 0, len(constants.AllowedVerdicts))
	for v := range constants.AllowedVerdicts {
		values = append(values, v)
	}
	props := map[string]any{}
	for _, q := range constants.QuestionKeys {
		props[q] = map[string]any{"enum": values}
	}
	schemaMap := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
		"minProperties":        1,
	}

	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("encode verdict schema: %v", err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("verdicts.json", bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add verdict schema: %v", err))
	}
	schema, err := compiler.Compile("verdicts.json")
	if err != nil {
		panic(fmt.Sprintf("compile verdict schema: %v", err))
	}
	return schema
}
