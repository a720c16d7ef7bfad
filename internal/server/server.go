// Package server exposes the worksheet service over HTTP: upload intake, OCR
// job control, grading, and exports.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/graderai/worksheets/internal/async"
	"github.com/graderai/worksheets/internal/auth"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/export"
	"github.com/graderai/worksheets/internal/grading"
	"github.com/graderai/worksheets/internal/pipeline"
	"github.com/graderai/worksheets/internal/repository"
	"github.com/graderai/worksheets/internal/storage"
)

type Deps struct {
	Uploads     repository.UploadRepository
	Assignments repository.AssignmentRepository
	Store       storage.ObjectStore
	Queue       async.Queue
	Pipeline    *pipeline.OCRPipeline
	Grading     *grading.Coordinator
	Export      *export.Service
	Health      func(ctx context.Context) error
	// SyncOCR runs OCR inline on the start request instead of enqueueing.
	SyncOCR bool
	Logger  *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
}

func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{deps: deps, logger: logger}
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Post("/api/ocr/start", s.handleOCRStart)
	r.Get("/api/ocr/status/{upload_id}", s.handleOCRStatus)

	r.Post("/api/uploads", s.handleUploadIntake)
	r.Get("/api/uploads/{id}", s.handleGetUpload)
	r.Delete("/api/uploads/{id}", s.handleDeleteUpload)
	// Older clients start OCR through the upload resource.
	r.Post("/api/uploads/{id}/ocr", s.handleLegacyOCRStart)
	r.Get("/api/uploads/{id}/ocr", s.handleLegacyOCRStatus)

	r.Put("/api/uploads/{id}/verdicts", s.handleSetVerdicts)
	r.Post("/api/uploads/{id}/pdf", s.handleCreatePDF)
	r.Get("/api/uploads/{id}/pdf", s.handleGetPDF)

	r.Post("/api/assignments", s.handleCreateAssignment)
	r.Get("/api/assignments", s.handleListAssignments)
	r.Get("/api/assignments/{id}/uploads", s.handleListUploads)
	r.Get("/api/assignments/{id}/export", s.handleExport)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		ctx := common.WithRequestID(r.Context(), requestID)
		if userID := auth.UserIDFromRequest(r); userID != "" {
			ctx = common.WithUserID(ctx, userID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
		s.logger.Info("http.request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", requestID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
	})
}

// requireUser resolves the acting user from the request context or rejects.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := common.UserIDFromContext(r.Context())
	if userID == "" {
		s.writeError(w, r, common.NewError(common.KindAuthRequired, "missing user header"))
		return "", false
	}
	return userID, true
}

func (s *Server) uploadID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		s.writeError(w, r, common.NewError(common.KindValidation, "invalid upload id"))
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("http.encode_response", "error", err)
	}
}

// writeError renders any error as {"detail": ...} with the status mapped from
// its kind.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := common.KindOf(err)
	status := common.HTTPStatusForKind(kind)
	if status >= 500 {
		s.logger.Error("http.error", "path", r.URL.Path, "kind", string(kind), "error", err)
	} else {
		s.logger.Warn("http.error", "path", r.URL.Path, "kind", string(kind), "error", err)
	}
	s.writeJSON(w, status, map[string]string{"detail": common.Message(err)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "detail": err.Error()})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
