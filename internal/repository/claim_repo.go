package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/claimdesk/internal/domain"
)

// ClaimRepository handles claim persistence
type ClaimRepository struct {
	db *DB
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

const claimColumns = `id, claim_number, owner_id, assigned_agent_id, claim_type, status,
	incident_date, incident_description, contact_phone, validation,
	manual_review_required, created_at, updated_at`

// Create creates a new claim. A duplicate claim number yields ErrConflict.
func (r *ClaimRepository) Create(ctx context.Context, claim *domain.Claim) error {
	if claim.ID == "" {
		claim.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	claim.CreatedAt = now
	claim.UpdatedAt = now

	validation, err := marshalJSON(claim.Validation)
	if err != nil {
		return fmt.Errorf("failed to encode validation summary: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, claim.ID, claim.ClaimNumber, claim.OwnerID, claim.AssignedAgentID, claim.ClaimType,
		claim.Status, nullableTime(claim.IncidentDate), claim.IncidentDescription,
		claim.ContactPhone, validation, claim.ManualReviewRequired, claim.CreatedAt, claim.UpdatedAt)

	if isUniqueViolation(err) {
		return fmt.Errorf("%w: claim number %s", domain.ErrConflict, claim.ClaimNumber)
	}
	return err
}

// Get retrieves a claim by ID
func (r *ClaimRepository) Get(ctx context.Context, id string) (*domain.Claim, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	claim, err := scanClaim(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return claim, nil
}

// List retrieves one page of claims matching the filter, newest first,
// along with the total number of matches.
func (r *ClaimRepository) List(ctx context.Context, filter domain.ClaimFilter) ([]*domain.Claim, int, error) {
	where := ` WHERE 1 = 1`
	var args []any
	if filter.OwnerID != "" {
		where += ` AND owner_id = ?`
		args = append(args, filter.OwnerID)
	}
	if filter.Status != "" {
		where += ` AND status = ?`
		args = append(args, filter.Status)
	}
	if filter.AgentID != "" {
		where += ` AND (assigned_agent_id = '' OR assigned_agent_id = ?)`
		args = append(args, filter.AgentID)
	}

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM claims`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	query := `SELECT ` + claimColumns + ` FROM claims` + where + ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	rows, err := r.db.QueryContext(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	claims := []*domain.Claim{}
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, 0, err
		}
		claims = append(claims, claim)
	}

	return claims, total, rows.Err()
}

// Update writes back the mutable fields of a claim. The claim number and
// owner are immutable and never rewritten.
func (r *ClaimRepository) Update(ctx context.Context, claim *domain.Claim) error {
	claim.UpdatedAt = time.Now().UTC()
	validation, err := marshalJSON(claim.Validation)
	if err != nil {
		return fmt.Errorf("failed to encode validation summary: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE claims SET assigned_agent_id = ?, status = ?, incident_date = ?,
			incident_description = ?, contact_phone = ?, validation = ?,
			manual_review_required = ?, updated_at = ?
		WHERE id = ?
	`, claim.AssignedAgentID, claim.Status, nullableTime(claim.IncidentDate),
		claim.IncidentDescription, claim.ContactPhone, validation,
		claim.ManualReviewRequired, claim.UpdatedAt, claim.ID)

	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("claim %s: %w", claim.ID, domain.ErrNotFound)
	}

	return nil
}

// CountByStatus returns the number of claims per status
func (r *ClaimRepository) CountByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM claims GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// CountByDate returns the number of claims filed per UTC day, oldest first
func (r *ClaimRepository) CountByDate(ctx context.Context) ([]domain.DateCount, error) {
	// created_at is stored as UTC text, so its first ten characters are the day
	rows, err := r.db.QueryContext(ctx, `
		SELECT substr(created_at, 1, 10) AS day, COUNT(*)
		FROM claims
		GROUP BY day
		ORDER BY day
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := []domain.DateCount{}
	for rows.Next() {
		var dc domain.DateCount
		if err := rows.Scan(&dc.Date, &dc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*domain.Claim, error) {
	claim := &domain.Claim{}
	var incident sql.NullTime
	var validation sql.NullString

	if err := row.Scan(&claim.ID, &claim.ClaimNumber, &claim.OwnerID, &claim.AssignedAgentID,
		&claim.ClaimType, &claim.Status, &incident, &claim.IncidentDescription,
		&claim.ContactPhone, &validation, &claim.ManualReviewRequired,
		&claim.CreatedAt, &claim.UpdatedAt); err != nil {
		return nil, err
	}

	claim.IncidentDate = timePtr(incident)
	if err := unmarshalJSON(validation, &claim.Validation); err != nil {
		return nil, fmt.Errorf("failed to decode validation summary: %w", err)
	}
	return claim, nil
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	return page, size
}
