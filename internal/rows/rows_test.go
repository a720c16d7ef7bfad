package rows

import (
	"strings"
	"testing"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/entity"
)

func strPtr(s string) *string { return &s }

func TestBuildChipsAndActions(t *testing.T) {
	gradedPath := "teacher-1/x_graded.pdf"
	tests := []struct {
		name       string
		upload     entity.Upload
		wantChip   Chip
		wantRetry  bool
		wantGrade  bool
		wantPDF    bool
		wantDl     bool
		wantSpin   bool
		wantErrSub string
	}{
		{
			name:     "idle",
			upload:   entity.Upload{OCRStatus: constants.OCRStatusIdle},
			wantChip: ChipIdle,
		},
		{
			name:     "pending spins",
			upload:   entity.Upload{OCRStatus: constants.OCRStatusPending},
			wantChip: ChipPending, wantSpin: true,
		},
		{
			name:     "processing spins",
			upload:   entity.Upload{OCRStatus: constants.OCRStatusProcessing},
			wantChip: ChipProcessing, wantSpin: true,
		},
		{
			name:     "done allows grading",
			upload:   entity.Upload{OCRStatus: constants.OCRStatusDone, OCRText: strPtr("Hello OCR")},
			wantChip: ChipDone, wantGrade: true,
		},
		{
			name: "done with verdicts allows pdf",
			upload: entity.Upload{
				OCRStatus: constants.OCRStatusDone,
				Verdicts:  map[string]string{"q5": constants.VerdictCorrect},
			},
			wantChip: ChipDone, wantGrade: true, wantPDF: true,
		},
		{
			name: "graded pdf ready",
			upload: entity.Upload{
				OCRStatus:     constants.OCRStatusDone,
				Verdicts:      map[string]string{"q5": constants.VerdictCorrect},
				GradedPDFPath: &gradedPath,
			},
			wantChip: ChipPDFReady, wantGrade: true, wantPDF: true, wantDl: true,
		},
		{
			name: "failed shows error and retry",
			upload: entity.Upload{
				OCRStatus: constants.OCRStatusFailed,
				OCRError:  strPtr("OCR failed (502): upstream exploded"),
			},
			wantChip: ChipFailed, wantRetry: true, wantErrSub: "upstream exploded",
		},
		{
			name:       "failed without stored error gets fallback",
			upload:     entity.Upload{OCRStatus: constants.OCRStatusFailed},
			wantChip:   ChipFailed,
			wantRetry:  true,
			wantErrSub: "OCR failed",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := Build(&tc.upload)
			if v.Chip != tc.wantChip {
				t.Errorf("chip = %q, want %q", v.Chip, tc.wantChip)
			}
			if v.CanRetry != tc.wantRetry {
				t.Errorf("CanRetry = %v, want %v", v.CanRetry, tc.wantRetry)
			}
			if v.CanGrade != tc.wantGrade {
				t.Errorf("CanGrade = %v, want %v", v.CanGrade, tc.wantGrade)
			}
			if v.CanMakePDF != tc.wantPDF {
				t.Errorf("CanMakePDF = %v, want %v", v.CanMakePDF, tc.wantPDF)
			}
			if v.CanDownload != tc.wantDl {
				t.Errorf("CanDownload = %v, want %v", v.CanDownload, tc.wantDl)
			}
			if v.ShowSpinner != tc.wantSpin {
				t.Errorf("ShowSpinner = %v, want %v", v.ShowSpinner, tc.wantSpin)
			}
			if tc.wantErrSub != "" && !strings.Contains(v.ErrorText, tc.wantErrSub) {
				t.Errorf("ErrorText = %q, want substring %q", v.ErrorText, tc.wantErrSub)
			}
		})
	}
}

func TestTextPreviewTruncation(t *testing.T) {
	long := strings.Repeat("abcde ", 40)
	v := Build(&entity.Upload{OCRStatus: constants.OCRStatusDone, OCRText: &long})
	if len([]rune(v.TextPreview)) > previewLimit+1 {
		t.Errorf("preview length = %d", len([]rune(v.TextPreview)))
	}
	if !strings.HasSuffix(v.TextPreview, "…") {
		t.Errorf("preview = %q, want ellipsis suffix", v.TextPreview)
	}

	short := "Hello OCR"
	v = Build(&entity.Upload{OCRStatus: constants.OCRStatusDone, OCRText: &short})
	if v.TextPreview != short {
		t.Errorf("preview = %q, want untruncated %q", v.TextPreview, short)
	}
}
