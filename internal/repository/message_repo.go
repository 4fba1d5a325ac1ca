package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/claimdesk/internal/domain"
)

// MessageRepository handles the append-only claim conversation
type MessageRepository struct {
	db *DB
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db *DB) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, claim_id, author_id, message_type, message_text,
	attachment, validation, sources, created_at`

// Create appends a message. The ID is assigned here when the caller left
// it empty.
func (r *MessageRepository) Create(ctx context.Context, message *domain.ChatMessage) error {
	if message.ID == "" {
		message.ID = uuid.New().String()
	}
	message.CreatedAt = time.Now().UTC()

	attachment, err := marshalJSON(message.Attachment)
	if err != nil {
		return fmt.Errorf("failed to encode attachment: %w", err)
	}
	validation, err := marshalJSON(message.Validation)
	if err != nil {
		return fmt.Errorf("failed to encode validation snapshot: %w", err)
	}
	var sources sql.NullString
	if len(message.Sources) > 0 {
		if sources, err = marshalJSON(message.Sources); err != nil {
			return fmt.Errorf("failed to encode sources: %w", err)
		}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO chat_messages (`+messageColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, message.ID, message.ClaimID, message.AuthorID, message.Type, message.Text,
		attachment, validation, sources, message.CreatedAt)

	return err
}

// ListByClaim retrieves all messages of a claim, oldest first
func (r *MessageRepository) ListByClaim(ctx context.Context, claimID string) ([]*domain.ChatMessage, error) {
	return r.query(ctx, `
		SELECT `+messageColumns+`
		FROM chat_messages WHERE claim_id = ?
		ORDER BY seq ASC
	`, claimID)
}

// Recent retrieves the last limit messages of a claim, oldest first
func (r *MessageRepository) Recent(ctx context.Context, claimID string, limit int) ([]*domain.ChatMessage, error) {
	if limit <= 0 {
		return r.ListByClaim(ctx, claimID)
	}
	return r.query(ctx, `
		SELECT `+messageColumns+` FROM (
			SELECT seq, `+messageColumns+`
			FROM chat_messages WHERE claim_id = ?
			ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, claimID, limit)
}

// CountChats returns the total number of user messages
func (r *MessageRepository) CountChats(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_messages WHERE message_type = ?`,
		domain.MessageTypeUser).Scan(&count)
	return count, err
}

func (r *MessageRepository) query(ctx context.Context, query string, args ...any) ([]*domain.ChatMessage, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []*domain.ChatMessage{}
	for rows.Next() {
		message := &domain.ChatMessage{}
		var attachment, validation, sources sql.NullString

		if err := rows.Scan(&message.ID, &message.ClaimID, &message.AuthorID, &message.Type,
			&message.Text, &attachment, &validation, &sources, &message.CreatedAt); err != nil {
			return nil, err
		}

		if attachment.Valid {
			message.Attachment = &domain.Attachment{}
			if err := unmarshalJSON(attachment, message.Attachment); err != nil {
				return nil, fmt.Errorf("failed to decode attachment: %w", err)
			}
		}
		if validation.Valid {
			message.Validation = &domain.ValidationStatus{}
			if err := unmarshalJSON(validation, message.Validation); err != nil {
				return nil, fmt.Errorf("failed to decode validation snapshot: %w", err)
			}
		}
		if err := unmarshalJSON(sources, &message.Sources); err != nil {
			return nil, fmt.Errorf("failed to decode sources: %w", err)
		}
		messages = append(messages, message)
	}

	return messages, rows.Err()
}
