// Package rows derives what a worksheet row shows and which actions it offers
// from an upload's current state. It holds no state of its own and makes no
// network or storage calls.
package rows

import (
	"fmt"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/entity"
)

// Chip is the status badge shown on a row.
type Chip string

const (
	ChipIdle       Chip = "idle"
	ChipPending    Chip = "pending"
	ChipProcessing Chip = "processing"
	ChipDone       Chip = "done"
	ChipFailed     Chip = "failed"
	ChipPDFReady   Chip = "pdf_ready"
)

// View is everything a row renderer needs.
type View struct {
	Chip         Chip   `json:"chip"`
	Label        string `json:"label"`
	ErrorText    string `json:"error_text,omitempty"`
	TextPreview  string `json:"text_preview,omitempty"`
	CanRetry     bool   `json:"can_retry"`
	CanGrade     bool   `json:"can_grade"`
	CanMakePDF   bool   `json:"can_make_pdf"`
	CanDownload  bool   `json:"can_download"`
	ShowSpinner  bool   `json:"show_spinner"`
	VerdictCount int    `json:"verdict_count"`
}

const previewLimit = 120

// Build maps an upload onto its row presentation.
func Build(u *entity.Upload) View {
	v := View{VerdictCount: len(u.Verdicts)}

	hasPDF := u.GradedPDFPath != nil && *u.GradedPDFPath != ""

	switch u.OCRStatus {
	case constants.OCRStatusIdle:
		v.Chip = ChipIdle
		v.Label = "Not started"
	case constants.OCRStatusPending:
		v.Chip = ChipPending
		v.Label = "Queued for OCR"
		v.ShowSpinner = true
	case constants.OCRStatusProcessing:
		v.Chip = ChipProcessing
		v.Label = "Reading handwriting…"
		v.ShowSpinner = true
	case constants.OCRStatusDone:
		v.Chip = ChipDone
		v.Label = "Text extracted"
		v.CanGrade = true
		v.CanMakePDF = u.HasVerdicts()
		if hasPDF {
			v.Chip = ChipPDFReady
			v.Label = "Graded PDF ready"
			v.CanDownload = true
		}
		if u.OCRText != nil {
			v.TextPreview = preview(*u.OCRText)
		}
	case constants.OCRStatusFailed:
		v.Chip = ChipFailed
		v.Label = "OCR failed"
		v.CanRetry = true
		if u.OCRError != nil && *u.OCRError != "" {
			v.ErrorText = *u.OCRError
		} else {
			v.ErrorText = "OCR failed"
		}
	default:
		v.Chip = ChipPending
		v.Label = fmt.Sprintf("Unknown state %q", u.OCRStatus)
	}

	return v
}

func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewLimit {
		return text
	}
	return string(runes[:previewLimit]) + "…"
}
