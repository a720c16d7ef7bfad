// Package export produces XLSX grade summaries for an assignment's uploads.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for exports.
type Service struct {
	uploads     repository.UploadRepository
	assignments repository.AssignmentRepository
	logger      *slog.Logger
}

func NewService(uploads repository.UploadRepository, assignments repository.AssignmentRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{uploads: uploads, assignments: assignments, logger: logger}
}

// ExportGradesXLSX returns an XLSX workbook (as bytes) summarizing every upload
// under the assignment: one row per worksheet with its OCR state, per-question
// verdicts, and graded-PDF path.
func (s *Service) ExportGradesXLSX(ctx context.Context, assignmentID uuid.UUID) ([]byte, error) {
	start := time.Now()

	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	uploads, err := s.uploads.ListByAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Grades"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defaultIndex, _ := f.GetSheetIndex("Sheet1"); defaultIndex != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{"Worksheet", "OCR Status"}
	headers = append(headers, constants.QuestionKeys...)
	headers = append(headers, "Graded", "Graded PDF Path", "Error")
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, u := range uploads {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		name := u.OriginalName
		if name == "" {
			name = u.ID.String()
		}
		write(1, name)
		write(2, string(u.OCRStatus))

		col := 3
		for _, q := range constants.QuestionKeys {
			if v, ok := u.Verdicts[q]; ok {
				write(col, v)
			} else {
				write(col, "—")
			}
			col++
		}

		if u.HasVerdicts() {
			write(col, "yes")
		} else {
			write(col, "no")
		}
		col++

		if u.GradedPDFPath != nil {
			write(col, *u.GradedPDFPath)
		} else {
			write(col, "")
		}
		col++

		if u.OCRError != nil {
			write(col, truncate(*u.OCRError, 140))
		} else {
			write(col, "")
		}

		row++
	}

	lastVerdictCol, _ := excelize.ColumnNumberToName(2 + len(constants.QuestionKeys))
	pathCol, _ := excelize.ColumnNumberToName(4 + len(constants.QuestionKeys))
	errCol, _ := excelize.ColumnNumberToName(5 + len(constants.QuestionKeys))
	_ = f.SetColWidth(sheet, "A", "A", 32)            // worksheet name
	_ = f.SetColWidth(sheet, "B", "B", 14)            // ocr status
	_ = f.SetColWidth(sheet, "C", lastVerdictCol, 12) // verdicts
	_ = f.SetColWidth(sheet, pathCol, pathCol, 60)    // graded path
	_ = f.SetColWidth(sheet, errCol, errCol, 48)      // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"assignment_id", assignmentID.String(),
		"title", assignment.Title,
		"rows", len(uploads),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
