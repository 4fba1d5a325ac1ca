package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"go.uber.org/zap"
)

// AdminService handles agent and admin operations
type AdminService struct {
	wf     *Workflow
	logger *zap.Logger
}

// NewAdminService creates a new admin service
func NewAdminService(wf *Workflow, logger *zap.Logger) *AdminService {
	return &AdminService{wf: wf, logger: logger}
}

// Claim operations

// ListClaims returns a page of claims the caller may work. Agents only see
// unassigned claims and their own.
func (s *AdminService) ListClaims(ctx context.Context, caller domain.Caller, filter domain.ClaimFilter) (*domain.ClaimListResponse, error) {
	if !caller.IsStaff() {
		return nil, domain.ErrForbidden
	}
	filter.OwnerID = ""
	filter.AgentID = ""
	if caller.Role == domain.RoleAgent {
		filter.AgentID = caller.UserID
	}

	claims, total, err := s.wf.claims.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	page, size := pageBounds(filter.Page, filter.PageSize)
	return &domain.ClaimListResponse{Claims: claims, Total: total, Page: page, PageSize: size}, nil
}

// GetClaim returns the staff view of a claim
func (s *AdminService) GetClaim(ctx context.Context, caller domain.Caller, claimID string) (*domain.StaffClaimDetail, error) {
	if !caller.IsStaff() {
		return nil, domain.ErrForbidden
	}
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}
	progress, err := s.wf.progress.List(ctx, claim.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	status, docs, err := s.wf.currentStatus(ctx, claim)
	if err != nil {
		return nil, err
	}

	return &domain.StaffClaimDetail{
		Claim:     claim,
		Progress:  progress,
		Documents: docs,
		Status:    status,
		Staff:     StaffSummaryFor(claim, status, docs),
	}, nil
}

// Decide records an agent's decision. Unlike automation, a decision may
// move a claim out of a terminal status.
func (s *AdminService) Decide(ctx context.Context, caller domain.Caller, claimID string, req *domain.DecisionRequest) (*domain.ClaimDetail, error) {
	if !caller.IsStaff() {
		return nil, domain.ErrForbidden
	}
	var target, description string
	switch req.Decision {
	case domain.DecisionApprove:
		target, description = domain.ClaimStatusAccepted, "Your claim was approved."
	case domain.DecisionReject:
		target, description = domain.ClaimStatusRejected, "Your claim was rejected."
	case domain.DecisionNeedsInfo:
		target, description = domain.ClaimStatusNeedsInfo, "Your claim needs more information."
	default:
		return nil, fmt.Errorf("%w: unknown decision %q", domain.ErrInvalidInput, req.Decision)
	}
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}

	notes := strings.TrimSpace(req.Notes)
	if notes != "" {
		description += " " + notes
	}

	update, err := s.wf.apply(ctx, claim.ID, func(tx *claimTx) error {
		tx.setStatus(target)
		if tx.claim.AssignedAgentID == "" && caller.Role == domain.RoleAgent {
			tx.claim.AssignedAgentID = caller.UserID
		}
		if target == domain.ClaimStatusNeedsInfo {
			return tx.step(domain.StepHumanReview, domain.StepStatusActive, description)
		}
		tx.claim.ManualReviewRequired = false
		if err := tx.step(domain.StepHumanReview, domain.StepStatusCompleted, "Reviewed by a claims agent."); err != nil {
			return err
		}
		return tx.step(domain.StepDecision, domain.StepStatusCompleted, description)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to record decision: %w", err)
	}

	msg := &domain.ChatMessage{
		ClaimID:  claim.ID,
		AuthorID: caller.UserID,
		Type:     domain.MessageTypeSystem,
		Text:     description,
	}
	if err := s.wf.messages.Create(ctx, msg); err != nil {
		s.logger.Warn("failed to save decision message", zap.String("claim_id", claim.ID), zap.Error(err))
	} else {
		s.wf.publisher.Publish(claim.ID, domain.EventChatMessage, msg)
	}
	s.wf.publisher.Publish(claim.ID, domain.EventClaimUpdated, &domain.ClaimUpdatedPayload{
		Claim:    update.Claim,
		Progress: update.Progress,
		NextStep: nextStep(update.Claim),
	})
	s.wf.notify.Notify(ctx, &domain.Notification{
		UserID:  update.Claim.OwnerID,
		ClaimID: update.Claim.ID,
		Kind:    domain.NotificationDecision,
		Title:   fmt.Sprintf("Decision on claim %s", update.Claim.ClaimNumber),
		Body:    description,
	})

	s.logger.Info("claim decided",
		zap.String("claim_id", claim.ID),
		zap.String("decision", req.Decision),
		zap.String("agent_id", caller.UserID))

	return &domain.ClaimDetail{Claim: update.Claim, Progress: update.Progress, NextStep: nextStep(update.Claim)}, nil
}

// Assign gives a claim to an agent. Agents may only take claims for
// themselves; admins may assign anyone.
func (s *AdminService) Assign(ctx context.Context, caller domain.Caller, claimID, agentID string) (*domain.Claim, error) {
	agentID = strings.TrimSpace(agentID)
	switch {
	case agentID == "":
		return nil, fmt.Errorf("%w: agent_id is required", domain.ErrInvalidInput)
	case caller.Role == domain.RoleAdmin:
	case caller.Role == domain.RoleAgent && agentID == caller.UserID:
	default:
		return nil, domain.ErrForbidden
	}
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}

	update, err := s.wf.apply(ctx, claim.ID, func(tx *claimTx) error {
		tx.claim.AssignedAgentID = agentID
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to assign claim: %w", err)
	}
	s.wf.publishUpdate(ctx, update)
	return update.Claim, nil
}

// Stats

// Metrics returns claim counts by status
func (s *AdminService) Metrics(ctx context.Context, caller domain.Caller) (*domain.Stats, error) {
	if caller.Role != domain.RoleAdmin {
		return nil, domain.ErrForbidden
	}
	byStatus, err := s.wf.claims.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	byDate, err := s.wf.claims.CountByDate(ctx)
	if err != nil {
		return nil, err
	}
	chats, err := s.wf.messages.CountChats(ctx)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range byStatus {
		total += n
	}
	return &domain.Stats{TotalClaims: total, ByStatus: byStatus, ByDate: byDate, TotalChats: chats}, nil
}

// StaffSummaryFor digests a claim for an agent. The risk score grows with
// invalid or doubtful evidence, missing required items and low confidence,
// and is always within [0, 1].
func StaffSummaryFor(claim *domain.Claim, status *domain.ValidationStatus, docs []*domain.Document) domain.StaffSummary {
	c := status.Summary
	facts := []string{
		fmt.Sprintf("Claim type: %s", claim.ClaimType),
		fmt.Sprintf("Checklist %d%% complete (%d of %d items)", status.Progress, c.CompletedItems, c.TotalItems),
		fmt.Sprintf("%d document(s) uploaded", len(docs)),
	}
	if claim.IncidentDate != nil {
		facts = append(facts, "Incident date: "+claim.IncidentDate.Format("2006-01-02"))
	}
	if c.InvalidItems > 0 {
		facts = append(facts, fmt.Sprintf("%d item(s) failed validation", c.InvalidItems))
	}
	if c.ReviewItems > 0 {
		facts = append(facts, fmt.Sprintf("%d item(s) need manual review", c.ReviewItems))
	}
	if claim.ManualReviewRequired {
		facts = append(facts, "Manual review requested")
	}

	missingRequired := 0
	for _, it := range status.Items {
		if it.Required && it.State == domain.ItemStateMissing {
			missingRequired++
		}
	}

	risk := 0.0
	if c.TotalItems > 0 {
		total := float64(c.TotalItems)
		risk = 0.5*float64(c.InvalidItems)/total +
			0.25*float64(c.ReviewItems)/total +
			0.15*float64(missingRequired)/total +
			0.1*(1-status.OverallConfidence)
	}
	if claim.ManualReviewRequired {
		risk += 0.1
	}
	risk = math.Round(math.Min(1, math.Max(0, risk))*100) / 100

	summary := fmt.Sprintf("%s claim %s is %s with the checklist %d%% complete (%s).",
		titleCase(claim.ClaimType), claim.ClaimNumber, humanStatus(claim.Status), status.Progress, status.DecisionHint)

	return domain.StaffSummary{Summary: summary, RiskScore: risk, Facts: facts}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
