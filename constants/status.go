package constants

// OCRStatus is the canonical OCR state for rows in uploads.
type OCRStatus string

// Stable values (store these exact strings in DB).
const (
	OCRStatusIdle       OCRStatus = "idle"       // never started
	OCRStatusPending    OCRStatus = "pending"    // waiting for auto-start
	OCRStatusProcessing OCRStatus = "processing" // job submitted, polling
	OCRStatusDone       OCRStatus = "done"       // terminal success
	OCRStatusFailed     OCRStatus = "failed"     // terminal failure
)

// Terminal reports whether no further automatic transitions occur
// without an explicit retry.
func (s OCRStatus) Terminal() bool {
	return s == OCRStatusDone || s == OCRStatusFailed
}

// Verdict values allowed per question.
const (
	VerdictCorrect   = "correct"
	VerdictIncorrect = "incorrect"
	VerdictPartial   = "partial"
)

// AllowedVerdicts is the closed set of per-question verdict values.
var AllowedVerdicts = map[string]struct{}{
	VerdictCorrect:   {},
	VerdictIncorrect: {},
	VerdictPartial:   {},
}

// QuestionKeys is the graded question set for the current worksheet layout.
var QuestionKeys = []string{"q5", "q6a", "q6b"}
