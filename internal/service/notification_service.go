package service

import (
	"context"
	"fmt"
	"time"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/repository"
	"go.uber.org/zap"
)

// NotificationService records and lists user notifications. Recording is
// fire-and-forget: a failed write is logged and never fails the operation
// that triggered it.
type NotificationService struct {
	repo   *repository.NotificationRepository
	logger *zap.Logger
}

// NewNotificationService creates a new notification service
func NewNotificationService(repo *repository.NotificationRepository, logger *zap.Logger) *NotificationService {
	return &NotificationService{repo: repo, logger: logger}
}

// Notify stores a notification for a user
func (s *NotificationService) Notify(ctx context.Context, n *domain.Notification) {
	if s == nil || n.UserID == "" {
		return
	}
	// the triggering request may already be finishing
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Warn("failed to record notification",
			zap.String("user_id", n.UserID),
			zap.String("claim_id", n.ClaimID),
			zap.String("kind", n.Kind),
			zap.Error(err))
	}
}

// StatusChanged notifies a claim's owner about a new status
func (s *NotificationService) StatusChanged(ctx context.Context, claim *domain.Claim, from string) {
	s.Notify(ctx, &domain.Notification{
		UserID:  claim.OwnerID,
		ClaimID: claim.ID,
		Kind:    domain.NotificationStatusChanged,
		Title:   fmt.Sprintf("Claim %s updated", claim.ClaimNumber),
		Body:    fmt.Sprintf("Your claim moved from %s to %s.", humanStatus(from), humanStatus(claim.Status)),
	})
}

// List returns the caller's notifications, newest first
func (s *NotificationService) List(ctx context.Context, caller domain.Caller, limit int) ([]*domain.Notification, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	return s.repo.ListByUser(ctx, caller.UserID, limit)
}

// MarkRead marks one of the caller's notifications as read
func (s *NotificationService) MarkRead(ctx context.Context, caller domain.Caller, id string) error {
	ok, err := s.repo.MarkRead(ctx, caller.UserID, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("notification %s: %w", id, domain.ErrNotFound)
	}
	return nil
}

var statusLabels = map[string]string{
	domain.ClaimStatusSubmitted:            "submitted",
	domain.ClaimStatusAssessmentInProgress: "assessment in progress",
	domain.ClaimStatusAwaitingDocuments:    "awaiting documents",
	domain.ClaimStatusPendingHumanReview:   "pending review by a claims agent",
	domain.ClaimStatusNeedsInfo:            "needs more information",
	domain.ClaimStatusAccepted:             "accepted",
	domain.ClaimStatusRejected:             "rejected",
}

func humanStatus(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}
