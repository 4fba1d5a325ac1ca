package service

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/claimdesk/internal/ai"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"go.uber.org/zap"
)

// DefaultFallbackMessage is sent when the assistant cannot produce a reply
const DefaultFallbackMessage = "Thanks, we've received your message. Our assistant is unavailable right now; " +
	"your claim is saved and a claims agent will follow up if needed."

const handoffMessage = "Your claim has been handed to a claims agent. " +
	"They will review the conversation and get back to you here."

// ChatConfig tunes the assistant's turns
type ChatConfig struct {
	HistoryWindow   int
	TurnTimeout     time.Duration
	FallbackMessage string
}

// ChatService accepts chat messages and drives the assistant's replies
type ChatService struct {
	wf        *Workflow
	generator *ai.Generator
	queue     *TurnQueue
	cfg       ChatConfig
	logger    *zap.Logger
}

// NewChatService creates a new chat service
func NewChatService(
	wf *Workflow,
	generator *ai.Generator,
	queue *TurnQueue,
	cfg ChatConfig,
	logger *zap.Logger,
) *ChatService {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = 60 * time.Second
	}
	if strings.TrimSpace(cfg.FallbackMessage) == "" {
		cfg.FallbackMessage = DefaultFallbackMessage
	}
	return &ChatService{
		wf:        wf,
		generator: generator,
		queue:     queue,
		cfg:       cfg,
		logger:    logger,
	}
}

// SubmitMessage persists a message (and its attachment), publishes it and,
// for claimant messages, schedules one assistant turn. It returns without
// waiting for the assistant.
func (s *ChatService) SubmitMessage(
	ctx context.Context,
	caller domain.Caller,
	claimID string,
	text string,
	upload *domain.Upload,
) (*domain.SubmitResult, error) {
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" && upload == nil {
		return nil, fmt.Errorf("%w: message text or an attachment is required", domain.ErrInvalidInput)
	}

	msg := &domain.ChatMessage{
		ID:       uuid.New().String(),
		ClaimID:  claim.ID,
		AuthorID: caller.UserID,
		Type:     domain.MessageTypeUser,
		Text:     text,
	}
	if caller.IsStaff() {
		msg.Type = domain.MessageTypeAgent
	}

	// the attachment's bytes are stored before the message that references them
	var staged *stagedUpload
	if upload != nil {
		staged, err = s.wf.stageUpload(ctx, claim, upload)
		if err != nil {
			return nil, err
		}
		msg.Attachment = &domain.Attachment{
			DocumentID: uuid.New().String(),
			FileName:   staged.name,
			StorageRef: staged.stored.Ref,
		}
		if msg.Text == "" {
			msg.Text = "Uploaded " + staged.name
		}
	}

	if err := s.wf.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save message: %w", err)
	}

	// The message is durable from here on, so it is always published and
	// answered. A failed document write only leaves the checklist behind.
	var update *claimUpdate
	if staged != nil {
		doc, err := s.wf.recordUpload(ctx, claim, msg.Attachment.DocumentID, staged)
		if err == nil {
			update, err = s.commitUpload(ctx, claim, doc)
		}
		if err != nil {
			s.logger.Error("attachment not recorded",
				zap.String("claim_id", claim.ID),
				zap.String("message_id", msg.ID),
				zap.String("document_id", msg.Attachment.DocumentID),
				zap.Error(err))
		}
	}

	s.wf.publisher.Publish(claim.ID, domain.EventChatMessage, msg)
	s.wf.publishUpdate(ctx, update)

	if msg.Type == domain.MessageTypeUser {
		triggerID := msg.ID
		if err := s.queue.Enqueue(claim.ID, func(ctx context.Context) {
			s.runTurn(ctx, claim.ID, triggerID)
		}); err != nil {
			s.logger.Warn("assistant turn not scheduled",
				zap.String("claim_id", claim.ID),
				zap.String("message_id", msg.ID),
				zap.Error(err))
		}
	}

	next := claim.Validation.NextPrompt
	if update != nil {
		next = nextStep(update.Claim)
	}
	return &domain.SubmitResult{Message: msg, NextStep: next}, nil
}

// commitUpload refreshes the claim's summary and upload step after a
// document arrived through chat
func (s *ChatService) commitUpload(ctx context.Context, claim *domain.Claim, doc *domain.Document) (*claimUpdate, error) {
	update, err := s.wf.apply(ctx, claim.ID, func(tx *claimTx) error {
		if err := tx.step(domain.StepDocumentsUploaded, domain.StepStatusCompleted,
			fmt.Sprintf("Received %s.", doc.FileName)); err != nil {
			return err
		}
		return tx.recompute()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update validation: %w", err)
	}
	return update, nil
}

// runTurn produces exactly one assistant message for the claim. Whatever
// goes wrong, a message is delivered so viewers never wait on a typing
// indicator forever.
func (s *ChatService) runTurn(ctx context.Context, claimID, triggerID string) {
	delivered := false
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("assistant turn panicked",
				zap.String("claim_id", claimID),
				zap.String("message_id", triggerID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()))
		}
		if !delivered {
			s.deliverFallback(ctx, claimID, nil)
		}
	}()

	s.wf.publisher.Publish(claimID, domain.EventTyping, &domain.TypingPayload{ClaimID: claimID, From: "assistant"})

	ctx, cancel := context.WithTimeout(ctx, s.cfg.TurnTimeout)
	defer cancel()

	claim, err := s.wf.claims.Get(ctx, claimID)
	if err != nil {
		s.logger.Warn("assistant turn could not load claim",
			zap.String("claim_id", claimID),
			zap.String("message_id", triggerID),
			zap.Error(err))
		return
	}

	s.wf.reassessStale(ctx, claim)
	status, _, err := s.wf.currentStatus(ctx, claim)
	if err != nil {
		s.logger.Warn("assistant turn could not compute validation",
			zap.String("claim_id", claimID),
			zap.String("message_id", triggerID),
			zap.Error(err))
		return
	}
	progress, err := s.wf.progress.List(ctx, claimID)
	if err != nil {
		s.logger.Warn("assistant turn could not load progress",
			zap.String("claim_id", claimID), zap.Error(err))
	}
	history, err := s.wf.messages.Recent(ctx, claimID, s.cfg.HistoryWindow)
	if err != nil {
		s.logger.Warn("assistant turn could not load history",
			zap.String("claim_id", claimID), zap.Error(err))
	}

	reply := &ai.Reply{Status: status}
	generated, err := s.generator.Generate(ctx, ai.Request{
		Claim:    claim,
		Progress: progress,
		History:  history,
		Status:   status,
	})
	if err != nil {
		s.logger.Warn("assistant reply failed, sending fallback",
			zap.String("claim_id", claimID),
			zap.String("message_id", triggerID),
			zap.Error(err))
		reply.Text = s.cfg.FallbackMessage
	} else {
		reply = generated
	}

	msg := &domain.ChatMessage{
		ClaimID: claimID,
		Type:    domain.MessageTypeAI,
		Text:    reply.Text,
		Sources: reply.Sources,
	}

	// the reply is stored even if the turn deadline has just passed
	wctx, wcancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer wcancel()

	// Documents may have arrived while the provider was working, so the
	// status is recomputed under the claim lock and the provider's hint is
	// applied to that fresh status.
	var saveErr error
	saved := false
	update, err := s.wf.apply(wctx, claimID, func(tx *claimTx) error {
		if err := tx.recompute(); err != nil {
			return err
		}
		tx.useStatus(ai.Refine(tx.status, reply.Hint))

		msg.Validation = tx.status
		if tx.status.DecisionHint == domain.DecisionAwaitingDocuments {
			msg.Type = domain.MessageTypeAIRequestDocs
		}
		if saveErr = s.wf.messages.Create(tx.ctx, msg); saveErr != nil {
			return saveErr
		}
		saved = true
		return tx.advance(tx.status.DecisionHint)
	})
	if saveErr != nil {
		s.logger.Error("failed to save assistant message",
			zap.String("claim_id", claimID),
			zap.String("message_id", triggerID),
			zap.Error(saveErr))
		s.deliverFallback(wctx, claimID, msg.Validation)
		delivered = true
		return
	}
	if err != nil {
		s.logger.Error("failed to apply assistant turn to claim",
			zap.String("claim_id", claimID), zap.Error(err))
		if !saved {
			// the claim could not be read under the lock; reply with the
			// status the provider saw
			msg.Validation = reply.Status
			if reply.Status.DecisionHint == domain.DecisionAwaitingDocuments {
				msg.Type = domain.MessageTypeAIRequestDocs
			}
			if err := s.wf.messages.Create(wctx, msg); err != nil {
				s.logger.Error("failed to save assistant message",
					zap.String("claim_id", claimID),
					zap.String("message_id", triggerID),
					zap.Error(err))
				s.deliverFallback(wctx, claimID, reply.Status)
				delivered = true
				return
			}
		}
	}

	s.wf.publisher.Publish(claimID, domain.EventChatMessage, msg)
	delivered = true
	s.wf.publishUpdate(wctx, update)
}

// deliverFallback stores and publishes the fallback reply. If it cannot be
// stored it is still published so viewers see a reply.
func (s *ChatService) deliverFallback(ctx context.Context, claimID string, status *domain.ValidationStatus) {
	msg := &domain.ChatMessage{
		ClaimID:    claimID,
		Type:       domain.MessageTypeAI,
		Text:       s.cfg.FallbackMessage,
		Validation: status,
	}
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.wf.messages.Create(wctx, msg); err != nil {
		s.logger.Error("failed to save fallback message, publishing unsaved",
			zap.String("claim_id", claimID), zap.Error(err))
		if msg.ID == "" {
			msg.ID = uuid.New().String()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
	}
	s.wf.publisher.Publish(claimID, domain.EventChatMessage, msg)
}

// Escalate hands the claim to a human agent. Every call records a hand-off
// message; the review flag and status only change the first time.
func (s *ChatService) Escalate(ctx context.Context, caller domain.Caller, claimID string) (*domain.ChatMessage, error) {
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}

	msg := &domain.ChatMessage{
		ClaimID:  claim.ID,
		AuthorID: caller.UserID,
		Type:     domain.MessageTypeSystem,
		Text:     handoffMessage,
	}
	if err := s.wf.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to save hand-off message: %w", err)
	}

	update, err := s.wf.apply(ctx, claim.ID, func(tx *claimTx) error {
		if tx.claim.ManualReviewRequired {
			return nil
		}
		tx.claim.ManualReviewRequired = true
		return tx.toHumanReview("You asked for a claims agent.")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to escalate claim: %w", err)
	}

	s.wf.publisher.Publish(claim.ID, domain.EventChatMessage, msg)
	s.wf.publisher.Publish(claim.ID, domain.EventClaimUpdated, &domain.ClaimUpdatedPayload{
		Claim:    update.Claim,
		Progress: update.Progress,
		NextStep: nextStep(update.Claim),
	})

	if update.Changed {
		s.wf.notify.Notify(ctx, &domain.Notification{
			UserID:  update.Claim.OwnerID,
			ClaimID: update.Claim.ID,
			Kind:    domain.NotificationEscalated,
			Title:   fmt.Sprintf("Claim %s escalated", update.Claim.ClaimNumber),
			Body:    "A claims agent will review your claim.",
		})
	}

	return msg, nil
}

// History returns a claim's full conversation, oldest first
func (s *ChatService) History(ctx context.Context, caller domain.Caller, claimID string) (*domain.HistoryResponse, error) {
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}
	history, err := s.wf.messages.ListByClaim(ctx, claim.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return &domain.HistoryResponse{History: history}, nil
}
