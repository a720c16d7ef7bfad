// Package status maps the heterogeneous OCR status payloads returned by the
// coexisting backend variants onto one canonical enum. Everything above this
// package only ever sees constants.OCRStatus, never raw wire fields.
package status

import (
	"encoding/json"
	"strings"

	"github.com/graderai/worksheets/constants"
)

// Raw mirrors every status payload shape observed in the wild:
//
//	{status, extracted_text?, text_len?, error?}
//	{ocr_status, text_len?}           (legacy field name)
//	{ocr_text, status}                (legacy text field)
//	{state: "ERROR", message}         (alternate shape)
type Raw struct {
	Status        string  `json:"status,omitempty"`
	OCRStatus     string  `json:"ocr_status,omitempty"`
	State         string  `json:"state,omitempty"`
	Message       string  `json:"message,omitempty"`
	ExtractedText *string `json:"extracted_text,omitempty"`
	OCRText       *string `json:"ocr_text,omitempty"`
	TextLen       *int    `json:"text_len,omitempty"`
	Error         string  `json:"error,omitempty"`
	OCRError      string  `json:"ocr_error,omitempty"`
}

// Update is the canonical result of normalizing one wire payload.
type Update struct {
	Status       constants.OCRStatus
	Text         string
	HasText      bool // text field was present in the payload, even if empty
	TextLen      int
	ErrorMessage string
}

// Normalize converts a wire payload into a canonical update. prior is the last
// known canonical status for the same job; when the payload carries no
// recognizable status the prior is preserved (a terminal job is never regressed
// to idle), and an empty prior defaults to pending.
func Normalize(raw Raw, prior constants.OCRStatus) Update {
	u := Update{}

	if text, ok := textField(raw); ok {
		u.Text = text
		u.HasText = true
	}
	if raw.TextLen != nil {
		u.TextLen = *raw.TextLen
	} else if u.HasText {
		u.TextLen = len(u.Text)
	}

	// Alternate shape: {state: "ERROR", message} always wins.
	if strings.EqualFold(strings.TrimSpace(raw.State), "error") {
		u.Status = constants.OCRStatusFailed
		u.ErrorMessage = firstNonEmpty(raw.Message, raw.Error, "ocr failed")
		return u
	}

	wire := firstNonEmpty(raw.Status, raw.OCRStatus)
	st, ok := canonical(wire)
	if !ok {
		// Unknown or missing status: preserve what we knew.
		if prior == "" {
			st = constants.OCRStatusPending
		} else {
			st = prior
		}
	}
	u.Status = st

	if st == constants.OCRStatusFailed {
		u.ErrorMessage = firstNonEmpty(raw.Error, raw.OCRError, raw.Message, "ocr failed")
	}
	return u
}

// NormalizeJSON decodes a raw response body and normalizes it. A body that is
// not a JSON object is treated as an unrecognized shape, not an error.
func NormalizeJSON(body []byte, prior constants.OCRStatus) Update {
	var raw Raw
	if err := json.Unmarshal(body, &raw); err != nil {
		return Normalize(Raw{}, prior)
	}
	return Normalize(raw, prior)
}

// canonical maps a wire status spelling onto the enum, case-insensitively.
func canonical(wire string) (constants.OCRStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(wire)) {
	case "done", "ocr_done", "ocr_ok", "processed", "complete", "completed":
		return constants.OCRStatusDone, true
	case "processing", "running":
		return constants.OCRStatusProcessing, true
	case "pending", "queued":
		return constants.OCRStatusPending, true
	case "failed", "error", "ocr_error":
		return constants.OCRStatusFailed, true
	case "idle":
		return constants.OCRStatusIdle, true
	default:
		return "", false
	}
}

func textField(raw Raw) (string, bool) {
	if raw.ExtractedText != nil {
		return *raw.ExtractedText, true
	}
	if raw.OCRText != nil {
		return *raw.OCRText, true
	}
	return "", false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
