package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/claimdesk/internal/domain"
)

// ProgressRepository handles claim progress steps. Steps are append-only:
// they are transitioned in place and never deleted.
type ProgressRepository struct {
	db *DB
}

// NewProgressRepository creates a new progress repository
func NewProgressRepository(db *DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

// Append adds a step to a claim. A claim holds each step ID at most once;
// a second append of the same step yields ErrConflict.
func (r *ProgressRepository) Append(ctx context.Context, step *domain.ProgressStep) error {
	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	step.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO progress_steps (id, claim_id, step_id, title, status, description, completed_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, step.ID, step.ClaimID, step.StepID, step.Title, step.Status, step.Description,
		nullableTime(step.CompletedAt), step.CreatedAt)

	if isUniqueViolation(err) {
		return fmt.Errorf("%w: step %s already recorded", domain.ErrConflict, step.StepID)
	}
	return err
}

// Transition updates a step's status, description and completion time
func (r *ProgressRepository) Transition(ctx context.Context, step *domain.ProgressStep) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE progress_steps SET status = ?, description = ?, completed_at = ?
		WHERE claim_id = ? AND step_id = ?
	`, step.Status, step.Description, nullableTime(step.CompletedAt), step.ClaimID, step.StepID)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("step %s: %w", step.StepID, domain.ErrNotFound)
	}
	return nil
}

// List retrieves a claim's steps in creation order
func (r *ProgressRepository) List(ctx context.Context, claimID string) ([]*domain.ProgressStep, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, claim_id, step_id, title, status, description, completed_at, created_at
		FROM progress_steps WHERE claim_id = ?
		ORDER BY seq ASC
	`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	steps := []*domain.ProgressStep{}
	for rows.Next() {
		step := &domain.ProgressStep{}
		var completed sql.NullTime
		if err := rows.Scan(&step.ID, &step.ClaimID, &step.StepID, &step.Title, &step.Status,
			&step.Description, &completed, &step.CreatedAt); err != nil {
			return nil, err
		}
		step.CompletedAt = timePtr(completed)
		steps = append(steps, step)
	}

	return steps, rows.Err()
}
