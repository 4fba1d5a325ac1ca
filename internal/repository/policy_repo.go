package repository

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/liliang-cn/claimdesk/internal/domain"
)

// PolicyRepository stores policy texts split into full-text indexed chunks
type PolicyRepository struct {
	db *DB
}

// NewPolicyRepository creates a new policy repository
func NewPolicyRepository(db *DB) *PolicyRepository {
	return &PolicyRepository{db: db}
}

// Replace indexes a policy document's chunks, replacing any earlier
// version stored under the same filename.
func (r *PolicyRepository) Replace(ctx context.Context, doc *domain.PolicyDocument, chunks []string) error {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.CreatedAt = time.Now().UTC()
	doc.ChunkCount = len(chunks)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_chunks WHERE filename = ?`, doc.Filename); err != nil {
		return fmt.Errorf("failed to drop old chunks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM policy_documents WHERE filename = ?`, doc.Filename); err != nil {
		return fmt.Errorf("failed to drop old document: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO policy_documents (id, filename, file_type, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, doc.ID, doc.Filename, doc.FileType, doc.ChunkCount, doc.CreatedAt); err != nil {
		return err
	}

	for _, chunk := range chunks {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO policy_chunks (document_id, filename, content) VALUES (?, ?, ?)
		`, doc.ID, doc.Filename, chunk); err != nil {
			return fmt.Errorf("failed to index chunk: %w", err)
		}
	}

	return tx.Commit()
}

// List retrieves all indexed policy documents
func (r *PolicyRepository) List(ctx context.Context) ([]*domain.PolicyDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, filename, file_type, chunk_count, created_at
		FROM policy_documents ORDER BY filename ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := []*domain.PolicyDocument{}
	for rows.Next() {
		doc := &domain.PolicyDocument{}
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.ChunkCount, &doc.CreatedAt); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	return docs, rows.Err()
}

// Search returns the topK chunks best matching the query. Any word of the
// query may match; results are ranked by bm25.
func (r *PolicyRepository) Search(ctx context.Context, query string, topK int) ([]domain.Source, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}
	if topK <= 0 {
		topK = 3
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT document_id, filename, content, bm25(policy_chunks) AS rank
		FROM policy_chunks WHERE policy_chunks MATCH ?
		ORDER BY rank LIMIT ?
	`, match, topK)
	if err != nil {
		return nil, fmt.Errorf("policy search failed: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		var s domain.Source
		var rank float64
		if err := rows.Scan(&s.DocumentID, &s.Filename, &s.Content, &rank); err != nil {
			return nil, err
		}
		// bm25 is lower-is-better and negative for matches
		s.Score = -rank
		sources = append(sources, s)
	}

	return sources, rows.Err()
}

// ftsQuery turns free text into an FTS5 OR-query of quoted terms so user
// input never reaches the query parser as syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]bool)
	var terms []string
	for _, w := range words {
		if len([]rune(w)) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "your": true, "was": true, "with": true, "this": true, "that": true,
	"have": true, "has": true, "what": true, "when": true, "how": true, "can": true,
}
