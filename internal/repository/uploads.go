package repository

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graderai/worksheets/constants"
	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/entity"
)

// OCRFields carries the optional columns mutated alongside a status change.
// Nil pointers leave the column untouched.
type OCRFields struct {
	Text        *string
	TextLen     *int
	Error       *string
	StartedAt   *time.Time
	CompletedAt *time.Time
}

type UploadRepository interface {
	Create(ctx context.Context, u *entity.Upload) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Upload, error)
	ListByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]*entity.Upload, error)
	MarkOCRStatus(ctx context.Context, id uuid.UUID, st constants.OCRStatus, fields OCRFields) error
	SetVerdicts(ctx context.Context, id uuid.UUID, verdicts map[string]string) error
	SetGradedPath(ctx context.Context, id uuid.UUID, path string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type uploadRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewUploadRepository(pool *pgxpool.Pool, logger *slog.Logger) UploadRepository {
	return &uploadRepo{pool: pool, logger: logger}
}

const uploadColumns = `id, owner_id, assignment_id, storage_path, original_name,
	ocr_status, ocr_text, text_len, ocr_error, ocr_started_at, ocr_completed_at,
	graded_pdf_path, verdicts, created_at`

func (r *uploadRepo) Create(ctx context.Context, u *entity.Upload) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if u.OCRStatus == "" {
		u.OCRStatus = constants.OCRStatusPending
	}
	u.CreatedAt = time.Now().UTC()

	_, err := r.pool.Exec(ctx, `
		INSERT INTO uploads (id, owner_id, assignment_id, storage_path, original_name, ocr_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.OwnerID, u.AssignmentID, u.StoragePath, u.OriginalName, string(u.OCRStatus), u.CreatedAt)
	if err != nil {
		r.logger.Error("upload insert failed", "upload_id", u.ID, "error", err)
		return err
	}
	r.logger.Info("upload created", "upload_id", u.ID, "owner_id", u.OwnerID, "path", u.StoragePath)
	return nil
}

func (r *uploadRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Upload, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+uploadColumns+` FROM uploads WHERE id = $1`, id)
	u, err := scanUpload(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewErrorf(common.KindNotFound, "upload %s not found", id)
	}
	if err != nil {
		r.logger.Error("upload fetch failed", "upload_id", id, "error", err)
		return nil, err
	}
	return u, nil
}

func (r *uploadRepo) ListByAssignment(ctx context.Context, assignmentID uuid.UUID) ([]*entity.Upload, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+uploadColumns+` FROM uploads WHERE assignment_id = $1 ORDER BY created_at`, assignmentID)
	if err != nil {
		r.logger.Error("upload list failed", "assignment_id", assignmentID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *uploadRepo) MarkOCRStatus(ctx context.Context, id uuid.UUID, st constants.OCRStatus, fields OCRFields) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE uploads SET
			ocr_status = $2,
			ocr_text = COALESCE($3, ocr_text),
			text_len = COALESCE($4, text_len),
			ocr_error = $5,
			ocr_started_at = COALESCE($6, ocr_started_at),
			ocr_completed_at = COALESCE($7, ocr_completed_at)
		WHERE id = $1`,
		id, string(st), fields.Text, fields.TextLen, fields.Error, fields.StartedAt, fields.CompletedAt)
	if err != nil {
		r.logger.Error("upload status update failed", "upload_id", id, "status", st, "error", err)
		return err
	}
	r.logger.Info("upload status updated", "upload_id", id, "status", st)
	return nil
}

func (r *uploadRepo) SetVerdicts(ctx context.Context, id uuid.UUID, verdicts map[string]string) error {
	b, err := json.Marshal(verdicts)
	if err != nil {
		return err
	}
	// Whole-mapping replace, never a field-by-field merge.
	ct, err := r.pool.Exec(ctx, `UPDATE uploads SET verdicts = $2 WHERE id = $1`, id, b)
	if err != nil {
		r.logger.Error("verdict save failed", "upload_id", id, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return common.NewErrorf(common.KindNotFound, "upload %s not found", id)
	}
	r.logger.Info("verdicts saved", "upload_id", id, "questions", len(verdicts))
	return nil
}

func (r *uploadRepo) SetGradedPath(ctx context.Context, id uuid.UUID, path string) error {
	_, err := r.pool.Exec(ctx, `UPDATE uploads SET graded_pdf_path = $2 WHERE id = $1`, id, path)
	if err != nil {
		r.logger.Error("graded path update failed", "upload_id", id, "error", err)
		return err
	}
	return nil
}

func (r *uploadRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ct, err := r.pool.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("upload delete failed", "upload_id", id, "error", err)
		return err
	}
	if ct.RowsAffected() == 0 {
		return common.NewErrorf(common.KindNotFound, "upload %s not found", id)
	}
	r.logger.Info("upload deleted", "upload_id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUpload(row rowScanner) (*entity.Upload, error) {
	var (
		u           entity.Upload
		status      string
		verdictJSON []byte
	)
	err := row.Scan(&u.ID, &u.OwnerID, &u.AssignmentID, &u.StoragePath, &u.OriginalName,
		&status, &u.OCRText, &u.TextLen, &u.OCRError, &u.OCRStartedAt, &u.OCRCompletedAt,
		&u.GradedPDFPath, &verdictJSON, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	u.OCRStatus = constants.OCRStatus(status)
	if len(verdictJSON) > 0 {
		if err := json.Unmarshal(verdictJSON, &u.Verdicts); err != nil {
			return nil, err
		}
	}
	return &u, nil
}
