package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/realtime"
	"github.com/liliang-cn/claimdesk/internal/repository"
	"github.com/liliang-cn/claimdesk/internal/storage"
	"github.com/liliang-cn/claimdesk/internal/validation"
	"go.uber.org/zap"
)

// WorkflowConfig wires the stores and collaborators shared by the claim,
// chat and admin services
type WorkflowConfig struct {
	Claims        *repository.ClaimRepository
	Progress      *repository.ProgressRepository
	Documents     *repository.DocumentRepository
	Messages      *repository.MessageRepository
	Notifications *NotificationService
	Access        *Access
	Engine        *validation.Engine
	Assessor      validation.Assessor
	Store         *storage.LocalStore
	Publisher     realtime.Publisher

	AssessTimeout     time.Duration
	AssessConcurrency int
	MaxUploadBytes    int64
	Logger            *zap.Logger
	// Now defaults to time.Now; tests pin it
	Now func() time.Time
}

// Workflow owns every read-modify-write of a claim's status, cached
// validation summary and progress steps. Writes for one claim are
// serialized by a per-claim lock that is only held around store I/O.
type Workflow struct {
	claims    *repository.ClaimRepository
	progress  *repository.ProgressRepository
	documents *repository.DocumentRepository
	messages  *repository.MessageRepository
	notify    *NotificationService
	access    *Access
	engine    *validation.Engine
	assessor  validation.Assessor
	store     *storage.LocalStore
	publisher realtime.Publisher

	assessTimeout     time.Duration
	assessConcurrency int
	maxUploadBytes    int64
	locks             *claimLocks
	logger            *zap.Logger
	now               func() time.Time
}

// NewWorkflow creates the shared claim workflow
func NewWorkflow(cfg WorkflowConfig) *Workflow {
	if cfg.AssessTimeout <= 0 {
		cfg.AssessTimeout = 10 * time.Second
	}
	if cfg.AssessConcurrency <= 0 {
		cfg.AssessConcurrency = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Access == nil {
		cfg.Access = NewAccess(cfg.Claims)
	}
	return &Workflow{
		claims:            cfg.Claims,
		progress:          cfg.Progress,
		documents:         cfg.Documents,
		messages:          cfg.Messages,
		notify:            cfg.Notifications,
		access:            cfg.Access,
		engine:            cfg.Engine,
		assessor:          cfg.Assessor,
		store:             cfg.Store,
		publisher:         cfg.Publisher,
		assessTimeout:     cfg.AssessTimeout,
		assessConcurrency: cfg.AssessConcurrency,
		maxUploadBytes:    cfg.MaxUploadBytes,
		locks:             newClaimLocks(),
		logger:            cfg.Logger,
		now:               cfg.Now,
	}
}

// Access returns the access check shared by every surface
func (w *Workflow) Access() *Access {
	return w.access
}

var stepTitles = map[string]string{
	domain.StepSubmitted:         "Claim submitted",
	domain.StepInitialValidation: "Initial validation",
	domain.StepInitialReview:     "Initial review",
	domain.StepDocumentsUploaded: "Documents uploaded",
	domain.StepAssessment:        "Assessment",
	domain.StepHumanReview:       "Review by a claims agent",
	domain.StepDecision:          "Decision",
}

// claimUpdate is the outcome of one locked change to a claim
type claimUpdate struct {
	Claim    *domain.Claim
	Progress []*domain.ProgressStep
	Status   *domain.ValidationStatus
	// From is the claim status before the change
	From    string
	Changed bool
}

func (u *claimUpdate) statusChanged() bool {
	return u.From != u.Claim.Status
}

// claimTx is the view a mutation gets of a locked claim
type claimTx struct {
	w        *Workflow
	ctx      context.Context
	claim    *domain.Claim
	before   domain.Claim
	progress []*domain.ProgressStep
	status   *domain.ValidationStatus
	stepsSet bool
}

// apply runs mutate against a freshly read claim under the claim's lock and
// persists whatever it changed
func (w *Workflow) apply(ctx context.Context, claimID string, mutate func(tx *claimTx) error) (*claimUpdate, error) {
	release := w.locks.lock(claimID)
	defer release()

	claim, err := w.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	progress, err := w.progress.List(ctx, claimID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}

	tx := &claimTx{w: w, ctx: ctx, claim: claim, before: *claim, progress: progress}
	if err := mutate(tx); err != nil {
		return nil, err
	}

	dirty := tx.dirty()
	if dirty {
		if err := w.claims.Update(ctx, claim); err != nil {
			return nil, fmt.Errorf("failed to update claim: %w", err)
		}
	}

	return &claimUpdate{
		Claim:    claim,
		Progress: tx.progress,
		Status:   tx.status,
		From:     tx.before.Status,
		Changed:  dirty || tx.stepsSet,
	}, nil
}

func (t *claimTx) dirty() bool {
	c, b := t.claim, t.before
	return c.Status != b.Status ||
		c.ManualReviewRequired != b.ManualReviewRequired ||
		c.AssignedAgentID != b.AssignedAgentID ||
		!c.Validation.SameAs(b.Validation)
}

// recompute derives a fresh validation status from the stored documents
func (t *claimTx) recompute() error {
	docs, err := t.w.documents.ListByClaim(t.ctx, t.claim.ID)
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}
	t.useStatus(t.w.engine.Compute(validation.InputFor(t.claim, docs, t.w.now())))
	return nil
}

// useStatus caches status on the claim when its content changed
func (t *claimTx) useStatus(status *domain.ValidationStatus) {
	t.status = status
	summary := status.Summarize(t.w.now().UTC())
	if !t.claim.Validation.SameAs(summary) {
		t.claim.Validation = summary
	}
}

func (t *claimTx) setStatus(status string) {
	t.claim.Status = status
}

// step records a progress step, creating it on first use. Writing the same
// status and description again is a no-op.
func (t *claimTx) step(stepID, status, description string) error {
	var existing *domain.ProgressStep
	for _, s := range t.progress {
		if s.StepID == stepID {
			existing = s
			break
		}
	}
	if existing != nil && existing.Status == status && existing.Description == description {
		return nil
	}

	step := &domain.ProgressStep{
		ClaimID:     t.claim.ID,
		StepID:      stepID,
		Title:       stepTitles[stepID],
		Status:      status,
		Description: description,
	}
	if status == domain.StepStatusCompleted {
		at := t.w.now().UTC()
		step.CompletedAt = &at
	}

	if existing == nil {
		if err := t.w.progress.Append(t.ctx, step); err != nil {
			return fmt.Errorf("failed to record step %s: %w", stepID, err)
		}
		t.progress = append(t.progress, step)
	} else {
		if err := t.w.progress.Transition(t.ctx, step); err != nil {
			return fmt.Errorf("failed to update step %s: %w", stepID, err)
		}
		existing.Status = step.Status
		existing.Description = step.Description
		existing.CompletedAt = step.CompletedAt
	}
	t.stepsSet = true
	return nil
}

// toHumanReview hands a non-terminal claim to the agents' queue
func (t *claimTx) toHumanReview(description string) error {
	if domain.IsTerminalStatus(t.claim.Status) {
		return nil
	}
	t.setStatus(domain.ClaimStatusPendingHumanReview)
	return t.step(domain.StepHumanReview, domain.StepStatusActive, description)
}

// advance applies the automated status rules for a decision hint.
// Terminal claims and claims already with an agent are left alone.
func (t *claimTx) advance(hint string) error {
	if domain.IsTerminalStatus(t.claim.Status) {
		return nil
	}
	if t.claim.Status == domain.ClaimStatusSubmitted {
		t.setStatus(domain.ClaimStatusAssessmentInProgress)
		if err := t.step(domain.StepInitialReview, domain.StepStatusCompleted,
			"The assistant reviewed your claim details."); err != nil {
			return err
		}
	}
	if t.claim.Status == domain.ClaimStatusPendingHumanReview {
		if hint == domain.DecisionNeedsReview {
			t.claim.ManualReviewRequired = true
		}
		return nil
	}

	switch hint {
	case domain.DecisionAwaitingDocuments:
		t.setStatus(domain.ClaimStatusAwaitingDocuments)
	case domain.DecisionReadyForReview:
		return t.toHumanReview("All required items are in; a claims agent will review your claim.")
	case domain.DecisionNeedsReview:
		t.claim.ManualReviewRequired = true
		return t.toHumanReview("Some items need a closer look by a claims agent.")
	}
	return nil
}

// publishUpdate broadcasts the authoritative claim state and notifies the
// owner when the status moved
func (w *Workflow) publishUpdate(ctx context.Context, u *claimUpdate) {
	if u == nil || !u.Changed {
		return
	}
	w.publisher.Publish(u.Claim.ID, domain.EventClaimUpdated, &domain.ClaimUpdatedPayload{
		Claim:      u.Claim,
		Progress:   u.Progress,
		Validation: u.Status,
		NextStep:   nextStep(u.Claim),
	})
	if u.statusChanged() {
		w.notify.StatusChanged(ctx, u.Claim, u.From)
	}
}

// nextStep is what the claimant should do or expect next
func nextStep(claim *domain.Claim) string {
	switch claim.Status {
	case domain.ClaimStatusAccepted:
		return "Your claim has been accepted."
	case domain.ClaimStatusRejected:
		return "Your claim has been closed. Contact us if you have questions about the decision."
	case domain.ClaimStatusPendingHumanReview:
		return "A claims agent is reviewing your claim."
	}
	return claim.Validation.NextPrompt
}

// stagedUpload is an attachment whose bytes are stored but which is not
// yet recorded as a document
type stagedUpload struct {
	name   string
	upload *domain.Upload
	stored *storage.Stored
}

// stageUpload writes an upload's bytes to the attachment store
func (w *Workflow) stageUpload(ctx context.Context, claim *domain.Claim, up *domain.Upload) (*stagedUpload, error) {
	if up == nil || len(up.Content) == 0 {
		return nil, fmt.Errorf("%w: empty upload", domain.ErrInvalidInput)
	}
	if w.maxUploadBytes > 0 && int64(len(up.Content)) > w.maxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds the upload limit", domain.ErrInvalidInput, up.FileName)
	}
	name := strings.TrimSpace(up.FileName)
	if name == "" {
		name = "upload"
	}

	stored, err := w.store.Save(ctx, claim.ID, name, up.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to store attachment: %w", err)
	}
	return &stagedUpload{name: name, upload: up, stored: stored}, nil
}

// recordUpload records a staged upload as a document of the claim and runs
// the quality assessor on it. Assessment failure is recorded on the
// document, not returned.
func (w *Workflow) recordUpload(ctx context.Context, claim *domain.Claim, docID string, staged *stagedUpload) (*domain.Document, error) {
	mimeType := staged.stored.MimeType
	if mimeType == "" {
		mimeType = staged.upload.MimeType
	}
	docType := strings.TrimSpace(staged.upload.DocumentType)
	if docType == "" {
		docType = w.engine.InferDocumentType(claim.ClaimType, staged.name, mimeType)
	}

	if docID == "" {
		docID = uuid.New().String()
	}
	doc := &domain.Document{
		ID:           docID,
		ClaimID:      claim.ID,
		FileName:     staged.name,
		StorageRef:   staged.stored.Ref,
		MimeType:     mimeType,
		SizeBytes:    staged.stored.Size,
		DocumentType: docType,
	}
	if err := w.documents.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("failed to record document: %w", err)
	}

	w.assessDocuments(ctx, claim, []*domain.Document{doc})
	return doc, nil
}

// intake stages and records an upload in one go
func (w *Workflow) intake(ctx context.Context, claim *domain.Claim, up *domain.Upload) (*domain.Document, error) {
	staged, err := w.stageUpload(ctx, claim, up)
	if err != nil {
		return nil, err
	}
	return w.recordUpload(ctx, claim, "", staged)
}

// assessDocuments runs the assessor over docs with bounded concurrency and
// writes each verdict back. A document whose assessment could not be
// stored keeps its previous record.
func (w *Workflow) assessDocuments(ctx context.Context, claim *domain.Claim, docs []*domain.Document) {
	if len(docs) == 0 {
		return
	}
	actx, cancel := context.WithTimeout(ctx, w.assessTimeout)
	defer cancel()

	checklists := w.engine.Checklists()
	refs := make([]validation.DocumentRef, 0, len(docs))
	byID := make(map[string]*domain.Document, len(docs))
	for _, d := range docs {
		path, err := w.store.Path(d.StorageRef)
		if err != nil {
			w.logger.Warn("document has an unusable storage reference",
				zap.String("document_id", d.ID), zap.Error(err))
		}
		ref := validation.DocumentRef{
			DocumentID:   d.ID,
			Path:         path,
			FileName:     d.FileName,
			DocumentType: d.DocumentType,
		}
		if item, ok := checklists.Item(claim.ClaimType, d.DocumentType); ok {
			ref.Item = &item
		}
		refs = append(refs, ref)
		byID[d.ID] = d
	}

	outcomes, err := validation.AssessAll(actx, w.assessor, refs, w.assessConcurrency)
	if err != nil {
		// the deadline passed before every document ran
		outcomes = make([]validation.Outcome, len(refs))
		for i, ref := range refs {
			outcomes[i] = validation.Outcome{Ref: ref, Err: err}
		}
	}

	at := w.now().UTC()
	for _, o := range outcomes {
		doc := byID[o.Ref.DocumentID]
		validation.Apply(doc, o.Assessment, o.Err, at)
		if o.Err != nil {
			w.logger.Warn("document assessment failed",
				zap.String("claim_id", claim.ID),
				zap.String("document_id", doc.ID),
				zap.Error(o.Err))
		}
		if err := w.documents.UpdateValidation(context.WithoutCancel(ctx), doc.ID, doc.Validation); err != nil {
			w.logger.Error("failed to store document assessment",
				zap.String("document_id", doc.ID), zap.Error(err))
		}
	}
}

// reassessStale re-runs the assessor on documents whose last check failed
// or never happened
func (w *Workflow) reassessStale(ctx context.Context, claim *domain.Claim) {
	docs, err := w.documents.ListByClaim(ctx, claim.ID)
	if err != nil {
		w.logger.Warn("failed to load documents for reassessment",
			zap.String("claim_id", claim.ID), zap.Error(err))
		return
	}
	var stale []*domain.Document
	for _, d := range docs {
		switch d.Validation.Status {
		case domain.DocumentStatusError, domain.DocumentStatusPendingReview, "":
			stale = append(stale, d)
		}
	}
	w.assessDocuments(ctx, claim, stale)
}

// currentStatus computes the validation status of a claim without
// persisting anything
func (w *Workflow) currentStatus(ctx context.Context, claim *domain.Claim) (*domain.ValidationStatus, []*domain.Document, error) {
	docs, err := w.documents.ListByClaim(ctx, claim.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load documents: %w", err)
	}
	return w.engine.Compute(validation.InputFor(claim, docs, w.now())), docs, nil
}
