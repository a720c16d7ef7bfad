package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/entity"
	"github.com/graderai/worksheets/internal/provider"
	"github.com/graderai/worksheets/internal/repository"
)

type memUploads struct {
	mu          sync.Mutex
	rows        map[uuid.UUID]*entity.Upload
	transitions []constants.OCRStatus
}

func newMemUploads(rows ...*entity.Upload) *memUploads {
	m := &memUploads{rows: make(map[uuid.UUID]*entity.Upload)}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memUploads) Create(_ context.Context, u *entity.Upload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[u.ID] = u
	return nil
}

func (m *memUploads) GetByID(_ context.Context, id uuid.UUID) (*entity.Upload, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.rows[id]
	if !ok {
		return nil, common.NewErrorf(common.KindNotFound, "upload %s not found", id)
	}
	cp := *u
	return &cp, nil
}

func (m *memUploads) ListByAssignment(context.Context, uuid.UUID) ([]*entity.Upload, error) {
	return nil, nil
}

func (m *memUploads) MarkOCRStatus(_ context.Context, id uuid.UUID, st constants.OCRStatus, f repository.OCRFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.rows[id]
	u.OCRStatus = st
	if f.Text != nil {
		u.OCRText = f.Text
	}
	if f.TextLen != nil {
		u.TextLen = *f.TextLen
	}
	u.OCRError = f.Error
	m.transitions = append(m.transitions, st)
	return nil
}

func (m *memUploads) SetVerdicts(_ context.Context, id uuid.UUID, v map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Verdicts = v
	return nil
}

func (m *memUploads) SetGradedPath(_ context.Context, id uuid.UUID, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].GradedPDFPath = &path
	return nil
}

func (m *memUploads) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

type fakeStore struct {
	signedURL string
	signErr   error
}

func (f *fakeStore) CreateSignedDownloadURL(context.Context, string, string, time.Duration) (string, error) {
	return f.signedURL, f.signErr
}

func (f *fakeStore) Upload(_ context.Context, _, key string, _ []byte, _ string) (string, error) {
	return key, nil
}

func (f *fakeStore) Remove(context.Context, string, []string) error { return nil }

type fakeOCR struct {
	submitted []string
	text      string
	submitErr error
	awaitErr  error
}

func (f *fakeOCR) Submit(ctx context.Context, src provider.StreamSource, meta provider.SubmitMetadata) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	rc, err := src(ctx)
	if err != nil {
		return "", err
	}
	b, _ := io.ReadAll(rc)
	rc.Close()
	f.submitted = append(f.submitted, string(b))
	return "job-1", nil
}

func (f *fakeOCR) AwaitResult(context.Context, string) (string, error) {
	if f.awaitErr != nil {
		return "", f.awaitErr
	}
	return f.text, nil
}

func TestRun_Success(t *testing.T) {
	blob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("scan-bytes"))
	}))
	defer blob.Close()

	id := uuid.New()
	uploads := newMemUploads(&entity.Upload{
		ID:          id,
		OwnerID:     "owner-1",
		StoragePath: "owner-1/scan.png",
		OCRStatus:   constants.OCRStatusPending,
	})
	ocr := &fakeOCR{text: "Hello OCR"}
	p := NewOCRPipeline(uploads, &fakeStore{signedURL: blob.URL}, ocr, "submissions", time.Minute, nil)

	res, err := p.Run(context.Background(), id)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Text != "Hello OCR" || res.TextLen != len("Hello OCR") {
		t.Errorf("result = %+v", res)
	}
	if len(ocr.submitted) != 1 || ocr.submitted[0] != "scan-bytes" {
		t.Errorf("submitted = %v, want the downloaded scan bytes", ocr.submitted)
	}

	row := uploads.rows[id]
	if row.OCRStatus != constants.OCRStatusDone {
		t.Errorf("status = %q, want done", row.OCRStatus)
	}
	if row.OCRText == nil || *row.OCRText != "Hello OCR" {
		t.Error("ocr_text not persisted")
	}
	want := []constants.OCRStatus{constants.OCRStatusProcessing, constants.OCRStatusDone}
	if len(uploads.transitions) != 2 || uploads.transitions[0] != want[0] || uploads.transitions[1] != want[1] {
		t.Errorf("transitions = %v, want %v", uploads.transitions, want)
	}
}

func TestRun_SignURLFailureIsPersisted(t *testing.T) {
	id := uuid.New()
	uploads := newMemUploads(&entity.Upload{ID: id, StoragePath: "k.png", OCRStatus: constants.OCRStatusPending})
	p := NewOCRPipeline(uploads, &fakeStore{signErr: common.NewError(common.KindNotFound, "object not found for key=k.png")},
		&fakeOCR{}, "submissions", time.Minute, nil)

	if _, err := p.Run(context.Background(), id); err == nil {
		t.Fatal("Run succeeded, want sign failure")
	}
	row := uploads.rows[id]
	if row.OCRStatus != constants.OCRStatusFailed {
		t.Errorf("status = %q, want failed", row.OCRStatus)
	}
	if row.OCRError == nil || *row.OCRError == "" {
		t.Error("ocr_error not persisted")
	}
}

func TestRun_AwaitFailureIsPersisted(t *testing.T) {
	blob := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("x"))
	}))
	defer blob.Close()

	id := uuid.New()
	uploads := newMemUploads(&entity.Upload{ID: id, StoragePath: "k.png", OCRStatus: constants.OCRStatusPending})
	ocr := &fakeOCR{awaitErr: common.NewErrorf(common.KindUpstreamTimeout, "ocr result not ready after 40 polls")}
	p := NewOCRPipeline(uploads, &fakeStore{signedURL: blob.URL}, ocr, "submissions", time.Minute, nil)

	if _, err := p.Run(context.Background(), id); common.KindOf(err) != common.KindUpstreamTimeout {
		t.Fatalf("err = %v, want timeout", err)
	}
	row := uploads.rows[id]
	if row.OCRStatus != constants.OCRStatusFailed {
		t.Errorf("status = %q, want failed", row.OCRStatus)
	}
}

func TestRun_MissingStoragePath(t *testing.T) {
	id := uuid.New()
	uploads := newMemUploads(&entity.Upload{ID: id, OCRStatus: constants.OCRStatusPending})
	p := NewOCRPipeline(uploads, &fakeStore{}, &fakeOCR{}, "submissions", time.Minute, nil)

	_, err := p.Run(context.Background(), id)
	if common.KindOf(err) != common.KindValidation {
		t.Errorf("kind = %q, want validation", common.KindOf(err))
	}
	if uploads.rows[id].OCRStatus != constants.OCRStatusFailed {
		t.Errorf("status = %q, want failed", uploads.rows[id].OCRStatus)
	}
}
