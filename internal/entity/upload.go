package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/constants"
)

// Upload represents one scanned worksheet for data transfer between layers.
type Upload struct {
	ID             uuid.UUID           `json:"id"`
	OwnerID        string              `json:"owner_id"`
	AssignmentID   *uuid.UUID          `json:"assignment_id,omitempty"`
	StoragePath    string              `json:"storage_path"`
	OriginalName   string              `json:"original_name"`
	OCRStatus      constants.OCRStatus `json:"ocr_status"`
	OCRText        *string             `json:"ocr_text,omitempty"`
	TextLen        int                 `json:"text_len"`
	OCRError       *string             `json:"ocr_error,omitempty"`
	OCRStartedAt   *time.Time          `json:"ocr_started_at,omitempty"`
	OCRCompletedAt *time.Time          `json:"ocr_completed_at,omitempty"`
	GradedPDFPath  *string             `json:"graded_pdf_path,omitempty"`
	Verdicts       map[string]string   `json:"verdicts,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// HasVerdicts reports whether a non-empty verdict mapping exists.
func (u *Upload) HasVerdicts() bool {
	return len(u.Verdicts) > 0
}
