package server

import (
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/entity"
	"github.com/graderai/worksheets/internal/rows"
)

// maxUploadBytes caps a single worksheet scan.
const maxUploadBytes = 25 << 20

type uploadResponse struct {
	*entity.Upload
	Row rows.View `json:"row"`
}

func toUploadResponse(u *entity.Upload) uploadResponse {
	return uploadResponse{Upload: u, Row: rows.Build(u)}
}

// handleUploadIntake accepts one multipart scan under the "file" field, stores
// it, and creates the upload row in pending state.
func (s *Server) handleUploadIntake(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, r, common.WrapError(common.KindValidation, "invalid multipart body", err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, common.NewError(common.KindValidation, "missing file field"))
		return
	}
	defer file.Close()

	ext := constants.NormalizeExt(filepath.Ext(header.Filename))
	if _, ok := constants.AllowedExtensions[ext]; !ok {
		s.writeError(w, r, common.NewErrorf(common.KindValidation, "unsupported file type %q", ext))
		return
	}

	var assignmentID *uuid.UUID
	if raw := r.FormValue("assignment_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, r, common.NewError(common.KindValidation, "invalid assignment_id"))
			return
		}
		if _, err := s.deps.Assignments.GetByID(r.Context(), id); err != nil {
			s.writeError(w, r, err)
			return
		}
		assignmentID = &id
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, r, common.WrapError(common.KindValidation, "read uploaded file", err))
		return
	}

	uploadID := uuid.New()
	key := path.Join(userID, fmt.Sprintf("%s.%s", uploadID, ext))
	storedKey, err := s.deps.Store.Upload(r.Context(), constants.SubmissionsBucket, key, data, constants.ContentTypeForExt(ext))
	if err != nil {
		s.writeError(w, r, common.WrapError(common.KindUpstreamFailure, "store scan", err))
		return
	}

	u := &entity.Upload{
		ID:           uploadID,
		OwnerID:      userID,
		AssignmentID: assignmentID,
		StoragePath:  storedKey,
		OriginalName: header.Filename,
		OCRStatus:    constants.OCRStatusPending,
	}
	if err := s.deps.Uploads.Create(r.Context(), u); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.logger.Info("upload.created", "upload_id", u.ID, "owner_id", userID, "bytes", len(data))
	s.writeJSON(w, http.StatusCreated, toUploadResponse(u))
}

func (s *Server) handleGetUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
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
	if u.OwnerID != userID {
		s.writeError(w, r, common.NewError(common.KindForbidden, "upload belongs to another user"))
		return
	}
	s.writeJSON(w, http.StatusOK, toUploadResponse(u))
}

// handleDeleteUpload removes the row and best-effort cleans up stored objects.
func (s *Server) handleDeleteUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
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
	if u.OwnerID != userID {
		s.writeError(w, r, common.NewError(common.KindForbidden, "upload belongs to another user"))
		return
	}

	if err := s.deps.Uploads.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	if u.StoragePath != "" {
		if err := s.deps.Store.Remove(r.Context(), constants.SubmissionsBucket, []string{u.StoragePath}); err != nil {
			s.logger.Warn("upload.cleanup_scan", "upload_id", id, "error", err)
		}
	}
	if u.GradedPDFPath != nil && *u.GradedPDFPath != "" {
		if err := s.deps.Store.Remove(r.Context(), constants.GradedBucket, []string{*u.GradedPDFPath}); err != nil {
			s.logger.Warn("upload.cleanup_pdf", "upload_id", id, "error", err)
		}
	}

	s.logger.Info("upload.deleted", "upload_id", id)
	w.WriteHeader(http.StatusNoContent)
}
