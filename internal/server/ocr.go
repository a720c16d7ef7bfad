package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/async"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/entity"
	"github.com/graderai/worksheets/internal/repository"
)

type startOCRRequest struct {
	UploadID string `json:"upload_id"`
}

// statusResponse is the wire shape of the current OCR job state. The extracted
// text rides along only once the job is done.
type statusResponse struct {
	UploadID      string  `json:"upload_id"`
	Status        string  `json:"status"`
	ExtractedText *string `json:"extracted_text,omitempty"`
	TextLen       int     `json:"text_len"`
	Error         *string `json:"error,omitempty"`
}

func statusFromUpload(u *entity.Upload) statusResponse {
	resp := statusResponse{
		UploadID: u.ID.String(),
		Status:   string(u.OCRStatus),
		TextLen:  u.TextLen,
	}
	if u.OCRStatus == constants.OCRStatusDone {
		resp.ExtractedText = u.OCRText
	}
	if u.OCRStatus == constants.OCRStatusFailed {
		resp.Error = u.OCRError
	}
	return resp
}

func (s *Server) handleOCRStart(w http.ResponseWriter, r *http.Request) {
	var req startOCRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.NewError(common.KindValidation, "invalid json body"))
		return
	}
	if err := common.NewValidator().
		Field("upload_id", req.UploadID, common.Required, common.UUID).
		Error(); err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := uuid.Parse(req.UploadID)
	s.startOCR(w, r, id)
}

// handleLegacyOCRStatus serves the older status shape, GET /api/uploads/{id}/ocr.
// Older clients expect the bare ocr_status/ocr_text fields.
func (s *Server) handleLegacyOCRStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireUser(w, r); !ok {
		return
	}
	id, ok := s.uploadID(w, r, "id")
	if !ok {
		return
	}
	u, err := s.deps.Uploads.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	body := map[string]any{"ocr_status": string(u.OCRStatus)}
	if u.OCRStatus == constants.OCRStatusDone && u.OCRText != nil {
		body["ocr_text"] = *u.OCRText
	}
	if u.OCRStatus == constants.OCRStatusFailed && u.OCRError != nil {
		body["ocr_error"] = *u.OCRError
	}
	s.writeJSON(w, http.StatusOK, body)
}

// handleLegacyOCRStart serves the older path form, POST /api/uploads/{id}/ocr.
func (s *Server) handleLegacyOCRStart(w http.ResponseWriter, r *http.Request) {
	id, ok := s.uploadID(w, r, "id")
	if !ok {
		return
	}
	s.startOCR(w, r, id)
}

func (s *Server) startOCR(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	u, err := s.deps.Uploads.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if u.OwnerID != userID {
		s.writeError(w, r, common.NewError(common.KindForbidden, "upload belongs to another user"))
		return
	}

	// Starting a finished or running job is a no-op; report where it stands.
	if u.OCRStatus.Terminal() || u.OCRStatus == constants.OCRStatusProcessing {
		s.writeJSON(w, http.StatusOK, statusFromUpload(u))
		return
	}

	if s.deps.SyncOCR {
		res, err := s.deps.Pipeline.Run(r.Context(), id)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, statusResponse{
			UploadID:      id.String(),
			Status:        string(constants.OCRStatusDone),
			ExtractedText: &res.Text,
			TextLen:       res.TextLen,
		})
		return
	}

	now := time.Now().UTC()
	if err := s.deps.Uploads.MarkOCRStatus(r.Context(), id, constants.OCRStatusProcessing, repository.OCRFields{StartedAt: &now}); err != nil {
		s.writeError(w, r, err)
		return
	}
	job := async.Job{
		UploadID:    id,
		SubmittedAt: now,
		TraceID:     common.RequestIDFromContext(r.Context()),
	}
	if err := s.deps.Queue.Enqueue(r.Context(), job); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("ocr.enqueued", "upload_id", id, "trace_id", job.TraceID)
	s.writeJSON(w, http.StatusAccepted, statusResponse{
		UploadID: id.String(),
		Status:   string(constants.OCRStatusProcessing),
	})
}

func (s *Server) handleOCRStatus(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireUser(w, r); !ok {
		return
	}
	id, ok := s.uploadID(w, r, "upload_id")
	if !ok {
		return
	}
	u, err := s.deps.Uploads.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusFromUpload(u))
}
