package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/liliang-cn/claimdesk/internal/ai"
	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/repository"
	"github.com/liliang-cn/claimdesk/internal/storage"
	"github.com/liliang-cn/claimdesk/internal/validation"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var testNow = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

type published struct {
	ClaimID string
	Event   string
	Data    any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(claimID, event string, data any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{ClaimID: claimID, Event: event, Data: data})
}

func (p *recordingPublisher) named(claimID, event string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, e := range p.events {
		if e.ClaimID == claimID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// assistantMessages returns published chat messages authored by the assistant
func (p *recordingPublisher) assistantMessages(claimID string) []*domain.ChatMessage {
	var out []*domain.ChatMessage
	for _, e := range p.named(claimID, domain.EventChatMessage) {
		if m := e.Data.(*domain.ChatMessage); m.IsAssistant() {
			out = append(out, m)
		}
	}
	return out
}

type scriptedProvider struct {
	mu    sync.Mutex
	calls []ai.CompletionRequest
	reply func(n int, req ai.CompletionRequest) (string, error)
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req ai.CompletionRequest) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	n := len(p.calls)
	p.mu.Unlock()
	return p.reply(n, req)
}

func (p *scriptedProvider) call(i int) ai.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

func replyWith(text string) func(int, ai.CompletionRequest) (string, error) {
	return func(int, ai.CompletionRequest) (string, error) { return text, nil }
}

var validAssessor = validation.AssessorFunc(func(ctx context.Context, ref validation.DocumentRef) (validation.Assessment, error) {
	return validation.Assessment{IsValid: true, Confidence: 0.9}, nil
})

type testEnv struct {
	db       *repository.DB
	wf       *Workflow
	pub      *recordingPublisher
	provider *scriptedProvider
	queue    *TurnQueue
	chat     *ChatService
	claims   *ClaimService
	admin    *AdminService
	notes    *NotificationService
}

type envOption func(*WorkflowConfig, *ChatConfig)

func withAssessor(a validation.Assessor) envOption {
	return func(w *WorkflowConfig, _ *ChatConfig) { w.Assessor = a }
}

func newTestEnv(t *testing.T, reply func(int, ai.CompletionRequest) (string, error), opts ...envOption) *testEnv {
	t.Helper()
	dir := t.TempDir()

	db, err := repository.NewDB(filepath.Join(dir, "claimdesk.db"))
	require.NoError(t, err)
	store, err := storage.NewLocalStore(filepath.Join(dir, "uploads"))
	require.NoError(t, err)
	checklists, err := validation.DefaultChecklists()
	require.NoError(t, err)

	logger := zap.NewNop()
	pub := &recordingPublisher{}
	claimRepo := repository.NewClaimRepository(db)
	notes := NewNotificationService(repository.NewNotificationRepository(db), logger)

	wcfg := WorkflowConfig{
		Claims:        claimRepo,
		Progress:      repository.NewProgressRepository(db),
		Documents:     repository.NewDocumentRepository(db),
		Messages:      repository.NewMessageRepository(db),
		Notifications: notes,
		Engine:        validation.NewEngine(checklists, validation.DefaultAcceptanceThreshold),
		Assessor:      validAssessor,
		Store:         store,
		Publisher:     pub,
		Logger:        logger,
		Now:           func() time.Time { return testNow },
	}
	ccfg := ChatConfig{HistoryWindow: 20, TurnTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&wcfg, &ccfg)
	}
	wf := NewWorkflow(wcfg)

	provider := &scriptedProvider{reply: reply}
	gen := ai.NewGenerator(provider, nil, ai.GeneratorConfig{Timeout: 2 * time.Second}, logger)
	queue := NewTurnQueue(logger)

	t.Cleanup(func() {
		queue.Close()
		db.Close()
	})

	return &testEnv{
		db:       db,
		wf:       wf,
		pub:      pub,
		provider: provider,
		queue:    queue,
		chat:     NewChatService(wf, gen, queue, ccfg, logger),
		claims:   NewClaimService(wf, logger),
		admin:    NewAdminService(wf, logger),
		notes:    notes,
	}
}

var (
	alice   = domain.Caller{UserID: "alice", Role: domain.RoleUser}
	bob     = domain.Caller{UserID: "bob", Role: domain.RoleUser}
	agent1  = domain.Caller{UserID: "agent-1", Role: domain.RoleAgent}
	agent2  = domain.Caller{UserID: "agent-2", Role: domain.RoleAgent}
	admin   = domain.Caller{UserID: "root", Role: domain.RoleAdmin}
	pngHead = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")
	pdfBody = []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\ntrailer << /Root 1 0 R >>\n%%EOF\n")
)

// newMotorClaim creates a claim with no documents and no captured fields
func (e *testEnv) newMotorClaim(t *testing.T, owner domain.Caller) *domain.Claim {
	t.Helper()
	detail, err := e.claims.Create(context.Background(), owner, &domain.CreateClaimRequest{ClaimType: domain.ClaimTypeMotor}, nil)
	require.NoError(t, err)
	return detail.Claim
}

// newCompleteMotorClaim creates a claim whose required items are all in
func (e *testEnv) newCompleteMotorClaim(t *testing.T, owner domain.Caller) *domain.Claim {
	t.Helper()
	detail, err := e.claims.Create(context.Background(), owner, &domain.CreateClaimRequest{
		ClaimType:           domain.ClaimTypeMotor,
		IncidentDate:        "2026-10-01",
		IncidentDescription: "Rear-ended at a junction while stopped at a red light.",
	}, []*domain.Upload{
		{FileName: "damage_photo.png", Content: pngHead},
		{FileName: "drivers_license.png", Content: pngHead},
	})
	require.NoError(t, err)
	return detail.Claim
}

func (e *testEnv) waitForAssistant(t *testing.T, claimID string, n int) []*domain.ChatMessage {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(e.pub.assistantMessages(claimID)) >= n && e.queue.Pending(claimID) == 0
	}, 5*time.Second, 10*time.Millisecond)
	return e.pub.assistantMessages(claimID)
}

func (e *testEnv) reload(t *testing.T, claimID string) *domain.Claim {
	t.Helper()
	claim, err := e.wf.claims.Get(context.Background(), claimID)
	require.NoError(t, err)
	return claim
}
