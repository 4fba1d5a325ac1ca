package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/validation"
	"go.uber.org/zap"
)

const claimNumberAttempts = 5

// ClaimService handles claimant-facing claim operations
type ClaimService struct {
	wf     *Workflow
	logger *zap.Logger
}

// NewClaimService creates a new claim service
func NewClaimService(wf *Workflow, logger *zap.Logger) *ClaimService {
	return &ClaimService{wf: wf, logger: logger}
}

// NewClaimNumber returns a random claim number of the form CLM0123456789
func NewClaimNumber() string {
	return fmt.Sprintf("CLM%010d", rand.Int64N(10_000_000_000))
}

// Create opens a claim for the caller, optionally with initial documents
func (s *ClaimService) Create(ctx context.Context, caller domain.Caller, req *domain.CreateClaimRequest, uploads []*domain.Upload) (*domain.ClaimDetail, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	claimType := strings.ToLower(strings.TrimSpace(req.ClaimType))
	if !domain.ValidClaimType(claimType) {
		return nil, fmt.Errorf("%w: unsupported claim type %q", domain.ErrInvalidInput, req.ClaimType)
	}
	incident, err := parseIncidentDate(req.IncidentDate)
	if err != nil {
		return nil, err
	}

	claim := &domain.Claim{
		OwnerID:             caller.UserID,
		ClaimType:           claimType,
		Status:              domain.ClaimStatusSubmitted,
		IncidentDate:        incident,
		IncidentDescription: strings.TrimSpace(req.IncidentDescription),
		ContactPhone:        strings.TrimSpace(req.ContactPhone),
	}
	if err := s.insert(ctx, claim); err != nil {
		return nil, err
	}

	var docs []*domain.Document
	for _, up := range uploads {
		doc, err := s.wf.intake(ctx, claim, up)
		if err != nil {
			s.logger.Warn("initial document rejected",
				zap.String("claim_id", claim.ID),
				zap.String("file", up.FileName),
				zap.Error(err))
			continue
		}
		docs = append(docs, doc)
	}

	update, err := s.wf.apply(ctx, claim.ID, func(tx *claimTx) error {
		if err := tx.step(domain.StepSubmitted, domain.StepStatusCompleted, "We received your claim."); err != nil {
			return err
		}
		if err := tx.recompute(); err != nil {
			return err
		}
		counts := tx.status.Summary
		if err := tx.step(domain.StepInitialValidation, domain.StepStatusCompleted,
			fmt.Sprintf("%d of %d checklist items complete.", counts.CompletedItems, counts.TotalItems)); err != nil {
			return err
		}
		if len(docs) > 0 {
			return tx.step(domain.StepDocumentsUploaded, domain.StepStatusCompleted, uploadedNote(docs))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialise claim: %w", err)
	}

	s.logger.Info("claim created",
		zap.String("claim_id", claim.ID),
		zap.String("claim_number", claim.ClaimNumber),
		zap.String("claim_type", claim.ClaimType),
		zap.Int("documents", len(docs)))

	return &domain.ClaimDetail{
		Claim:    update.Claim,
		Progress: update.Progress,
		NextStep: nextStep(update.Claim),
	}, nil
}

// insert stores a new claim, drawing a fresh number on collision
func (s *ClaimService) insert(ctx context.Context, claim *domain.Claim) error {
	var err error
	for i := 0; i < claimNumberAttempts; i++ {
		claim.ClaimNumber = NewClaimNumber()
		err = s.wf.claims.Create(ctx, claim)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
	}
	if err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

func parseIncidentDate(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, v); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%w: incident_date must be YYYY-MM-DD", domain.ErrInvalidInput)
}

func uploadedNote(docs []*domain.Document) string {
	if len(docs) == 1 {
		return fmt.Sprintf("Received %s.", docs[0].FileName)
	}
	return fmt.Sprintf("Received %d documents.", len(docs))
}

// List returns the caller's own claims, newest first
func (s *ClaimService) List(ctx context.Context, caller domain.Caller, page, pageSize int) (*domain.ClaimListResponse, error) {
	if caller.UserID == "" {
		return nil, domain.ErrUnauthorized
	}
	filter := domain.ClaimFilter{OwnerID: caller.UserID, Page: page, PageSize: pageSize}
	claims, total, err := s.wf.claims.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	page, pageSize = pageBounds(page, pageSize)
	return &domain.ClaimListResponse{Claims: claims, Total: total, Page: page, PageSize: pageSize}, nil
}

// Get returns a claim with its ordered progress steps
func (s *ClaimService) Get(ctx context.Context, caller domain.Caller, claimID string) (*domain.ClaimDetail, error) {
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}
	progress, err := s.wf.progress.List(ctx, claim.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	return &domain.ClaimDetail{Claim: claim, Progress: progress, NextStep: nextStep(claim)}, nil
}

// Validation recomputes the claim's validation status, refreshing the
// cached summary when it is stale
func (s *ClaimService) Validation(ctx context.Context, caller domain.Caller, claimID string) (*domain.ValidationReport, error) {
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}
	update, err := s.wf.apply(ctx, claim.ID, func(tx *claimTx) error {
		return tx.recompute()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to compute validation: %w", err)
	}
	s.wf.publishUpdate(ctx, update)

	docs, err := s.wf.documents.ListByClaim(ctx, claim.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	return &domain.ValidationReport{ClaimID: claim.ID, Validation: update.Status, Documents: docs}, nil
}

// Checklist returns the checklist that applies to the claim
func (s *ClaimService) Checklist(ctx context.Context, caller domain.Caller, claimID string) ([]validation.ChecklistItem, error) {
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}
	items, err := s.wf.engine.Checklist(claim.ClaimType)
	if errors.Is(err, validation.ErrUnknownClaimType) {
		return []validation.ChecklistItem{}, nil
	}
	return items, err
}

// UploadDocuments attaches documents to a claim outside the chat
func (s *ClaimService) UploadDocuments(ctx context.Context, caller domain.Caller, claimID string, uploads []*domain.Upload) (*domain.UploadResult, error) {
	claim, err := s.wf.access.Claim(ctx, caller, claimID)
	if err != nil {
		return nil, err
	}
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", domain.ErrInvalidInput)
	}

	docs := make([]*domain.Document, 0, len(uploads))
	for _, up := range uploads {
		doc, err := s.wf.intake(ctx, claim, up)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}

	update, err := s.wf.apply(ctx, claim.ID, func(tx *claimTx) error {
		if err := tx.step(domain.StepDocumentsUploaded, domain.StepStatusCompleted, uploadedNote(docs)); err != nil {
			return err
		}
		return tx.recompute()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update validation: %w", err)
	}
	s.wf.publishUpdate(ctx, update)

	return &domain.UploadResult{
		Documents:  docs,
		Validation: update.Status,
		NextStep:   nextStep(update.Claim),
	}, nil
}

// pageBounds mirrors the repository's paging defaults for responses
func pageBounds(page, size int) (int, int) {
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
