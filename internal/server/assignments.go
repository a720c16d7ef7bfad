package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/graderai/worksheets/internal/common"
)

type createAssignmentRequest struct {
	Title   string     `json:"title"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

func (s *Server) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var req createAssignmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, common.NewError(common.KindValidation, "invalid json body"))
		return
	}
	if err := common.NewValidator().
		Field("title", req.Title, common.Required).
		Error(); err != nil {
		s.writeError(w, r, err)
		return
	}

	a, err := s.deps.Assignments.Create(r.Context(), userID, req.Title, req.DueDate)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	list, err := s.deps.Assignments.ListByOwner(r.Context(), userID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleListUploads(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, common.NewError(common.KindValidation, "invalid assignment id"))
		return
	}
	a, err := s.deps.Assignments.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if a.OwnerID != userID {
		s.writeError(w, r, common.NewError(common.KindForbidden, "assignment belongs to another user"))
		return
	}

	uploads, err := s.deps.Uploads.ListByAssignment(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]uploadResponse, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, toUploadResponse(u))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, common.NewError(common.KindValidation, "invalid assignment id"))
		return
	}
	a, err := s.deps.Assignments.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if a.OwnerID != userID {
		s.writeError(w, r, common.NewError(common.KindForbidden, "assignment belongs to another user"))
		return
	}

	data, err := s.deps.Export.ExportGradesXLSX(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.Title+"_grades.xlsx"))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		s.logger.Error("http.write_export", "error", err)
	}
}
