package ai

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"go.uber.org/zap"
)

// GeneratorConfig bounds a generation call
type GeneratorConfig struct {
	Timeout       time.Duration
	MaxRetries    int
	HistoryWindow int
}

// Request is everything the generator may look at for one reply
type Request struct {
	Claim    *domain.Claim
	Progress []*domain.ProgressStep
	// History is ordered oldest first and ends with the message being answered
	History []*domain.ChatMessage
	Status  *domain.ValidationStatus
}

// Reply is a generated assistant reply
type Reply struct {
	Text    string
	Status  *domain.ValidationStatus
	Sources []domain.Source
	// Hint is the provider's raw decision tag, empty when it gave none
	Hint string
}

// Generator builds prompts and calls the completion provider
type Generator struct {
	provider  Provider
	retriever Retriever
	cfg       GeneratorConfig
	logger    *zap.Logger
}

// NewGenerator creates a generator. retriever may be nil.
func NewGenerator(provider Provider, retriever Retriever, cfg GeneratorConfig, logger *zap.Logger) *Generator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxRetries > 1 {
		cfg.MaxRetries = 1
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 20
	}
	return &Generator{provider: provider, retriever: retriever, cfg: cfg, logger: logger}
}

// Generate produces the assistant's reply. Any failure, including the
// deadline passing, is reported as ErrProviderUnavailable.
func (g *Generator) Generate(ctx context.Context, req Request) (*Reply, error) {
	if req.Claim == nil || req.Status == nil {
		return nil, fmt.Errorf("%w: claim and validation status are required", domain.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	history := req.History
	if len(history) > g.cfg.HistoryWindow {
		history = history[len(history)-g.cfg.HistoryWindow:]
	}

	sources := g.retrieve(ctx, lastUserText(history))
	completion := CompletionRequest{
		System:   buildSystemPrompt(req, sources),
		Messages: conversation(history),
	}
	if len(completion.Messages) == 0 {
		completion.Messages = []Message{{Role: RoleUser, Content: "Where does my claim stand?"}}
	}

	var text string
	var err error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		text, err = g.provider.Complete(ctx, completion)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty completion")
		}
		if err == nil || ctx.Err() != nil {
			break
		}
		g.logger.Debug("completion attempt failed",
			zap.String("provider", g.provider.Name()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	text, hint := extractDecision(text)
	return &Reply{
		Text:    text,
		Status:  Refine(req.Status, hint),
		Sources: sources,
		Hint:    hint,
	}, nil
}

func (g *Generator) retrieve(ctx context.Context, query string) []domain.Source {
	if g.retriever == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	sources, err := g.retriever.Retrieve(ctx, query)
	if err != nil {
		g.logger.Warn("policy retrieval failed", zap.Error(err))
		return nil
	}
	return sources
}

var decisionTag = regexp.MustCompile(`\s*\[\[decision:([a-z_]+)\]\]\s*`)

// extractDecision strips decision tags from the reply and returns the last
// one found.
func extractDecision(text string) (string, string) {
	var hint string
	for _, m := range decisionTag.FindAllStringSubmatch(text, -1) {
		hint = m[1]
	}
	cleaned := decisionTag.ReplaceAllString(text, " ")
	return strings.TrimSpace(cleaned), hint
}

// Refine applies a provider's decision hint. The engine's status stays
// authoritative: the only accepted change is downgrading ready_for_review
// to needs_review.
func Refine(status *domain.ValidationStatus, hint string) *domain.ValidationStatus {
	if hint != domain.DecisionNeedsReview || status.DecisionHint != domain.DecisionReadyForReview {
		return status
	}
	refined := *status
	refined.DecisionHint = domain.DecisionNeedsReview
	return &refined
}

func lastUserText(history []*domain.ChatMessage) string {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Type == domain.MessageTypeUser {
			return history[i].Text
		}
	}
	return ""
}

func conversation(history []*domain.ChatMessage) []Message {
	messages := make([]Message, 0, len(history))
	for _, m := range history {
		text := strings.TrimSpace(m.Text)
		if m.Attachment != nil {
			note := fmt.Sprintf("[attached %s]", m.Attachment.FileName)
			if text == "" {
				text = note
			} else {
				text += "\n" + note
			}
		}
		if text == "" {
			continue
		}

		switch m.Type {
		case domain.MessageTypeUser:
			messages = append(messages, Message{Role: RoleUser, Content: text})
		case domain.MessageTypeAI, domain.MessageTypeAIRequestDocs:
			messages = append(messages, Message{Role: RoleAssistant, Content: text})
		case domain.MessageTypeAgent:
			messages = append(messages, Message{Role: RoleUser, Content: "[Claims agent] " + text})
		}
	}
	return messages
}

func buildSystemPrompt(req Request, sources []domain.Source) string {
	c := req.Claim
	s := req.Status
	var b strings.Builder

	b.WriteString("You are a helpful, concise insurance claims assistant. ")
	b.WriteString("Use the provided policy context and checklist to answer the customer. ")
	b.WriteString("Answer in plain English; keep replies short (2-5 sentences) unless the customer asks for detail. ")
	b.WriteString("If the customer asks about status or next steps, be clear and actionable. ")
	b.WriteString("Never invent policy information or promise an outcome; only a claims agent decides. ")
	b.WriteString("If an uploaded document looks unreliable even though the checklist is complete, end your reply with [[decision:needs_review]].\n\n")

	b.WriteString("Claim context:\n")
	fmt.Fprintf(&b, "- Claim number: %s\n", c.ClaimNumber)
	fmt.Fprintf(&b, "- Claim type: %s\n", c.ClaimType)
	fmt.Fprintf(&b, "- Status: %s\n", c.Status)
	fmt.Fprintf(&b, "- Created: %s\n", c.CreatedAt.Format("2006-01-02"))
	if c.IncidentDate != nil {
		fmt.Fprintf(&b, "- Incident date: %s\n", c.IncidentDate.Format("2006-01-02"))
	}
	desc := c.IncidentDescription
	if desc == "" {
		desc = "n/a"
	}
	fmt.Fprintf(&b, "- Incident description: %s\n", desc)

	if len(req.Progress) > 0 {
		b.WriteString("\nProgress:\n")
		for _, p := range req.Progress {
			fmt.Fprintf(&b, "- %s: %s\n", p.Title, p.Status)
		}
	}

	fmt.Fprintf(&b, "\nChecklist (%d%% complete, %s):\n", s.Progress, s.DecisionHint)
	for _, it := range s.Items {
		kind := "optional"
		if it.Required {
			kind = "required"
		}
		fmt.Fprintf(&b, "- %s (%s): %s\n", it.Title, kind, it.State)
	}
	if s.NextPrompt != "" {
		fmt.Fprintf(&b, "\nSuggested next step for the customer: %s\n", s.NextPrompt)
	}

	if len(sources) > 0 {
		b.WriteString("\nRelevant policy context:\n")
		for i, src := range sources {
			if i > 0 {
				b.WriteString("\n---\n")
			}
			b.WriteString(src.Content)
		}
		b.WriteString("\n")
	}

	return b.String()
}
