package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/graderai/worksheets/internal/common"
	"github.com/graderai/worksheets/internal/entity"
)

type AssignmentRepository interface {
	Create(ctx context.Context, ownerID, title string, dueDate *time.Time) (*entity.Assignment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Assignment, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*entity.Assignment, error)
}

type assignmentRepo struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewAssignmentRepository(pool *pgxpool.Pool, logger *slog.Logger) AssignmentRepository {
	return &assignmentRepo{pool: pool, logger: logger}
}

func (r *assignmentRepo) Create(ctx context.Context, ownerID, title string, dueDate *time.Time) (*entity.Assignment, error) {
	a := &entity.Assignment{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Title:     title,
		DueDate:   dueDate,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO assignments (id, owner_id, title, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.OwnerID, a.Title, a.DueDate, a.CreatedAt)
	if err != nil {
		r.logger.Error("assignment insert failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	r.logger.Info("assignment created", "assignment_id", a.ID, "title", title)
	return a, nil
}

func (r *assignmentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Assignment, error) {
	var a entity.Assignment
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, due_date, created_at FROM assignments WHERE id = $1`, id).
		Scan(&a.ID, &a.OwnerID, &a.Title, &a.DueDate, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, common.NewErrorf(common.KindNotFound, "assignment %s not found", id)
	}
	if err != nil {
		r.logger.Error("assignment fetch failed", "assignment_id", id, "error", err)
		return nil, err
	}
	return &a, nil
}

func (r *assignmentRepo) ListByOwner(ctx context.Context, ownerID string) ([]*entity.Assignment, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, title, due_date, created_at FROM assignments
		 WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		r.logger.Error("assignment list failed", "owner_id", ownerID, "error", err)
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Assignment
	for rows.Next() {
		var a entity.Assignment
		if err := rows.Scan(&a.ID, &a.OwnerID, &a.Title, &a.DueDate, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
