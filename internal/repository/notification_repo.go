package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/claimdesk/internal/domain"
)

// NotificationRepository handles user notifications
type NotificationRepository struct {
	db *DB
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create stores a notification
func (r *NotificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notifications (id, user_id, claim_id, kind, title, body, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, n.ID, n.UserID, n.ClaimID, n.Kind, n.Title, n.Body, n.Read, n.CreatedAt)

	return err
}

// ListByUser retrieves a user's most recent notifications, newest first
func (r *NotificationRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, claim_id, kind, title, body, read, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY seq DESC LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := []*domain.Notification{}
	for rows.Next() {
		n := &domain.Notification{}
		if err := rows.Scan(&n.ID, &n.UserID, &n.ClaimID, &n.Kind, &n.Title, &n.Body,
			&n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, n)
	}

	return list, rows.Err()
}

// MarkRead marks one of the user's notifications as read. Notifications
// belonging to someone else are left untouched.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return false, err
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}
