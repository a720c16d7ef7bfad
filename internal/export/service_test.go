package export

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/entity"
	"github.com/graderai/worksheets/internal/repository"
)

type memUploads struct {
	uploads []*entity.Upload
}

func (m *memUploads) Create(_ context.Context, u *entity.Upload) error {
	m.uploads = append(m.uploads, u)
	return nil
}

func (m *memUploads) GetByID(_ context.Context, id uuid.UUID) (*entity.Upload, error) {
	for _, u := range m.uploads {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, common.NewError(common.KindNotFound, "upload not found")
}

func (m *memUploads) ListByAssignment(_ context.Context, assignmentID uuid.UUID) ([]*entity.Upload, error) {
	var out []*entity.Upload
	for _, u := range m.uploads {
		if u.AssignmentID != nil && *u.AssignmentID == assignmentID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memUploads) MarkOCRStatus(context.Context, uuid.UUID, constants.OCRStatus, repository.OCRFields) error {
	return nil
}
func (m *memUploads) SetVerdicts(context.Context, uuid.UUID, map[string]string) error { return nil }
func (m *memUploads) SetGradedPath(context.Context, uuid.UUID, string) error          { return nil }
func (m *memUploads) Delete(context.Context, uuid.UUID) error                         { return nil }

type memAssignments struct {
	assignments map[uuid.UUID]*entity.Assignment
}

func (m *memAssignments) Create(_ context.Context, ownerID, title string, dueDate *time.Time) (*entity.Assignment, error) {
	a := &entity.Assignment{ID: uuid.New(), OwnerID: ownerID, Title: title, DueDate: dueDate}
	m.assignments[a.ID] = a
	return a, nil
}

func (m *memAssignments) GetByID(_ context.Context, id uuid.UUID) (*entity.Assignment, error) {
	a, ok := m.assignments[id]
	if !ok {
		return nil, common.NewError(common.KindNotFound, "assignment not found")
	}
	return a, nil
}

func (m *memAssignments) ListByOwner(context.Context, string) ([]*entity.Assignment, error) {
	return nil, nil
}

func strPtr(s string) *string { return &s }

func TestExportGradesXLSX(t *testing.T) {
	assignmentID := uuid.New()
	assignments := &memAssignments{assignments: map[uuid.UUID]*entity.Assignment{
		assignmentID: {ID: assignmentID, OwnerID: "teacher-1", Title: "Fractions quiz"},
	}}
	uploads := &memUploads{uploads: []*entity.Upload{
		{
			ID:            uuid.New(),
			AssignmentID:  &assignmentID,
			OriginalName:  "alice.pdf",
			OCRStatus:     constants.OCRStatusDone,
			Verdicts:      map[string]string{"q5": constants.VerdictCorrect, "q6a": constants.VerdictPartial},
			GradedPDFPath: strPtr("teacher-1/alice_graded.pdf"),
		},
		{
			ID:           uuid.New(),
			AssignmentID: &assignmentID,
			OriginalName: "bob.jpg",
			OCRStatus:    constants.OCRStatusFailed,
			OCRError:     strPtr("OCR failed (504): not ready"),
		},
	}}

	svc := NewService(uploads, assignments, nil)
	data, err := svc.ExportGradesXLSX(context.Background(), assignmentID)
	if err != nil {
		t.Fatalf("ExportGradesXLSX: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("open workbook: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows("Grades")
	if err != nil {
		t.Fatalf("read sheet: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}

	header := rows[0]
	if header[0] != "Worksheet" || header[1] != "OCR Status" {
		t.Errorf("header = %v", header)
	}
	for i, q := range constants.QuestionKeys {
		if header[2+i] != q {
			t.Errorf("header[%d] = %q, want %q", 2+i, header[2+i], q)
		}
	}

	alice := rows[1]
	if alice[0] != "alice.pdf" || alice[1] != "done" {
		t.Errorf("alice row = %v", alice)
	}
	if alice[2] != constants.VerdictCorrect || alice[3] != constants.VerdictPartial || alice[4] != "—" {
		t.Errorf("alice verdicts = %v", alice[2:5])
	}

	bob := rows[2]
	if bob[1] != "failed" {
		t.Errorf("bob row = %v", bob)
	}
	if bob[len(bob)-1] != "OCR failed (504): not ready" {
		t.Errorf("bob error cell = %q", bob[len(bob)-1])
	}
}

func TestExportUnknownAssignment(t *testing.T) {
	svc := NewService(&memUploads{}, &memAssignments{assignments: map[uuid.UUID]*entity.Assignment{}}, nil)
	_, err := svc.ExportGradesXLSX(context.Background(), uuid.New())
	if common.KindOf(err) != common.KindNotFound {
		t.Errorf("kind = %q, want not_found", common.KindOf(err))
	}
}
