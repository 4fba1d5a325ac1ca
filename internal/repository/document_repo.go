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

// DocumentRepository handles claim document metadata. File bytes live in
// the attachment store; rows only carry the storage reference.
type DocumentRepository struct {
	db *DB
}

// NewDocumentRepository creates a new document repository
func NewDocumentRepository(db *DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

const documentColumns = `id, claim_id, file_name, storage_ref, mime_type, size_bytes,
	document_type, validation, uploaded_at`

// Create records a new document
func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Validation.Status == "" {
		doc.Validation.Status = domain.DocumentStatusPendingReview
	}

	validation, err := marshalJSON(doc.Validation)
	if err != nil {
		return fmt.Errorf("failed to encode document validation: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, doc.ID, doc.ClaimID, doc.FileName, doc.StorageRef, doc.MimeType, doc.SizeBytes,
		doc.DocumentType, validation, doc.UploadedAt)

	return err
}

// Get retrieves a document by ID
func (r *DocumentRepository) Get(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return doc, err
}

// ListByClaim retrieves a claim's documents in upload order
func (r *DocumentRepository) ListByClaim(ctx context.Context, claimID string) ([]*domain.Document, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+documentColumns+`
		FROM documents WHERE claim_id = ?
		ORDER BY seq ASC
	`, claimID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*domain.Document{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// UpdateValidation replaces a document's validation record
func (r *DocumentRepository) UpdateValidation(ctx context.Context, id string, v domain.DocumentValidation) error {
	validation, err := marshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to encode document validation: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `UPDATE documents SET validation = ? WHERE id = ?`, validation, id)
	if err != nil {
		return err
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

// Count returns the total number of stored documents
func (r *DocumentRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

func scanDocument(row rowScanner) (*domain.Document, error) {
	doc := &domain.Document{}
	var validation sql.NullString

	if err := row.Scan(&doc.ID, &doc.ClaimID, &doc.FileName, &doc.StorageRef, &doc.MimeType,
		&doc.SizeBytes, &doc.DocumentType, &validation, &doc.UploadedAt); err != nil {
		return nil, err
	}

	if err := unmarshalJSON(validation, &doc.Validation); err != nil {
		return nil, fmt.Errorf("failed to decode document validation: %w", err)
	}
	return doc, nil
}
