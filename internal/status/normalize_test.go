package status

import (
	"testing"

	"github.com/graderai/worksheets/constants"
)

func strptr(s string) *string { return &s }
func intptr(n int) *int       { return &n }

func TestNormalize_CanonicalShapes(t *testing.T) {
	tests := []struct {
		name  string
		raw   Raw
		prior constants.OCRStatus
		want  constants.OCRStatus
	}{
		{"done", Raw{Status: "done"}, "", constants.OCRStatusDone},
		{"legacy ocr_status", Raw{OCRStatus: "done"}, "", constants.OCRStatusDone},
		{"running maps to processing", Raw{Status: "running"}, "", constants.OCRStatusProcessing},
		{"queued maps to pending", Raw{Status: "queued"}, "", constants.OCRStatusPending},
		{"error maps to failed", Raw{Status: "error"}, "", constants.OCRStatusFailed},
		{"db spelling OCR_DONE", Raw{Status: "OCR_DONE"}, "", constants.OCRStatusDone},
		{"db spelling OCR_ERROR", Raw{Status: "OCR_ERROR"}, "", constants.OCRStatusFailed},
		{"case insensitive", Raw{Status: "Processing"}, "", constants.OCRStatusProcessing},
		{"missing defaults to pending", Raw{}, "", constants.OCRStatusPending},
		{"missing preserves prior", Raw{}, constants.OCRStatusDone, constants.OCRStatusDone},
		{"unknown preserves prior failed", Raw{Status: "wat"}, constants.OCRStatusFailed, constants.OCRStatusFailed},
		{"unknown preserves prior processing", Raw{Status: "wat"}, constants.OCRStatusProcessing, constants.OCRStatusProcessing},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw, tt.prior)
			if got.Status != tt.want {
				t.Errorf("Normalize(%+v, %q).Status = %q, want %q", tt.raw, tt.prior, got.Status, tt.want)
			}
		})
	}
}

func TestNormalize_LegacyErrorField(t *testing.T) {
	got := NormalizeJSON([]byte(`{"ocr_status":"failed","ocr_error":"blurred scan"}`), constants.OCRStatusProcessing)
	if got.Status != constants.OCRStatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if got.ErrorMessage != "blurred scan" {
		t.Errorf("ErrorMessage = %q, want %q", got.ErrorMessage, "blurred scan")
	}
}

func TestNormalize_ErrorShape(t *testing.T) {
	got := Normalize(Raw{State: "ERROR", Message: "timeout"}, constants.OCRStatusProcessing)
	if got.Status != constants.OCRStatusFailed {
		t.Fatalf("Status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == "" || got.ErrorMessage != "timeout" {
		t.Errorf("ErrorMessage = %q, want %q", got.ErrorMessage, "timeout")
	}
}

func TestNormalize_ErrorShapeCaseInsensitive(t *testing.T) {
	got := Normalize(Raw{State: "error", Message: "boom"}, "")
	if got.Status != constants.OCRStatusFailed || got.ErrorMessage != "boom" {
		t.Errorf("got %+v, want failed/boom", got)
	}
}

func TestNormalize_FailedAlwaysHasMessage(t *testing.T) {
	got := Normalize(Raw{Status: "failed"}, "")
	if got.ErrorMessage == "" {
		t.Error("failed status normalized without an error message")
	}
}

func TestNormalize_TextFields(t *testing.T) {
	got := Normalize(Raw{Status: "done", ExtractedText: strptr("Hello OCR")}, "")
	if !got.HasText || got.Text != "Hello OCR" {
		t.Fatalf("extracted_text not carried: %+v", got)
	}
	if got.TextLen != len("Hello OCR") {
		t.Errorf("TextLen = %d, want %d", got.TextLen, len("Hello OCR"))
	}

	got = Normalize(Raw{Status: "done", OCRText: strptr("legacy text")}, "")
	if !got.HasText || got.Text != "legacy text" {
		t.Errorf("ocr_text not carried: %+v", got)
	}

	got = Normalize(Raw{Status: "done"}, "")
	if got.HasText {
		t.Error("HasText = true for payload without text field")
	}
}

func TestNormalize_ExplicitTextLenWins(t *testing.T) {
	got := Normalize(Raw{Status: "done", TextLen: intptr(42)}, "")
	if got.TextLen != 42 {
		t.Errorf("TextLen = %d, want 42", got.TextLen)
	}
}

func TestNormalize_Idempotence(t *testing.T) {
	// Equivalent payloads for the same underlying job normalize identically.
	a := Normalize(Raw{Status: "done", ExtractedText: strptr("X")}, "")
	b := Normalize(Raw{OCRStatus: "done", TextLen: intptr(1), ExtractedText: strptr("X")}, "")
	if a.Status != b.Status {
		t.Errorf("status mismatch: %q vs %q", a.Status, b.Status)
	}
	if a.Text != b.Text || a.TextLen != b.TextLen {
		t.Errorf("text mismatch: %+v vs %+v", a, b)
	}
	// Normalizing an already-canonical result is stable.
	again := Normalize(Raw{Status: string(a.Status), ExtractedText: strptr(a.Text)}, a.Status)
	if again.Status != a.Status || again.Text != a.Text {
		t.Errorf("re-normalization drifted: %+v vs %+v", again, a)
	}
}

func TestNormalizeJSON(t *testing.T) {
	got := NormalizeJSON([]byte(`{"ocr_text":"hi","status":"done"}`), "")
	if got.Status != constants.OCRStatusDone || got.Text != "hi" {
		t.Errorf("got %+v", got)
	}

	// Garbage body behaves like an unrecognized shape.
	got = NormalizeJSON([]byte("not json"), constants.OCRStatusDone)
	if got.Status != constants.OCRStatusDone {
		t.Errorf("garbage body regressed status to %q", got.Status)
	}
}
