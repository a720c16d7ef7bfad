package server

import (
	"encoding/json"
	"net/http"

	"github.com/graderai/worksheets/internal/common"
)

func (s *Server) handleSetVerdicts(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	id, ok := s.uploadID(w, r, "id")
	if !ok {
		return
	}

	var verdicts map[string]string
	if err := json.NewDecoder(r.Body).Decode(&verdicts); err != nil {
		s.writeError(w, r, common.NewError(common.KindValidation, "invalid json body"))
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

	updated, err := s.deps.Grading.SetVerdicts(r.Context(), id, verdicts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toUploadResponse(updated))
}

func (s *Server) handleCreatePDF(w http.ResponseWriter, r *http.Request) {
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

	artifact, err := s.deps.Grading.CreateArtifact(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, artifact)
}

func (s *Server) handleGetPDF(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireUser(w, r); !ok {
		return
	}
	id, ok := s.uploadID(w, r, "id")
	if !ok {
		return
	}
	url, err := s.deps.Grading.SignedArtifactURL(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"signed_url": url})
}
