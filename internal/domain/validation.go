package domain

import "time"

// Validation item states
const (
	ItemStateOK                = "ok"
	ItemStateMissing           = "missing"
	ItemStateInvalid           = "invalid"
	ItemStateNeedsReview       = "needs_review"
	ItemStateNeedsVerification = "needs_verification"
)

// Decision hints
const (
	DecisionAwaitingDocuments = "awaiting_documents"
	DecisionNeedsReview       = "needs_review"
	DecisionReadyForReview    = "ready_for_review"
	DecisionPending           = "pending"
)

// ValidationItem is the computed state of one checklist item
type ValidationItem struct {
	Key          string   `json:"key"`
	Title        string   `json:"title"`
	Required     bool     `json:"required"`
	State        string   `json:"state"`
	Confidence   float64  `json:"confidence"`
	DocumentType string   `json:"doc_type,omitempty"`
	Evidence     []string `json:"evidence"`
	Suggestions  []string `json:"suggestions,omitempty"`
}

// ValidationCounts tallies items by state.
// Completed + Missing + Invalid + Review always equals Total.
type ValidationCounts struct {
	TotalItems     int     `json:"total_items"`
	CompletedItems int     `json:"completed_items"`
	MissingItems   int     `json:"missing_items"`
	InvalidItems   int     `json:"invalid_items"`
	ReviewItems    int     `json:"review_items"`
	CompletionRate float64 `json:"completion_rate"`
}

// Balanced reports whether the counts satisfy the conservation invariant
func (c ValidationCounts) Balanced() bool {
	return c.CompletedItems+c.MissingItems+c.InvalidItems+c.ReviewItems == c.TotalItems
}

// ValidationStatus is a computed snapshot of checklist completeness
type ValidationStatus struct {
	ClaimType         string           `json:"claim_type"`
	Items             []ValidationItem `json:"items"`
	Progress          int              `json:"progress"`
	OverallConfidence float64          `json:"overall_confidence"`
	DecisionHint      string           `json:"decision_hint"`
	NextPrompt        string           `json:"next_prompt"`
	Summary           ValidationCounts `json:"validation_summary"`
}

// ValidationSummary is the cached, denormalized view of the latest
// ValidationStatus stored on the claim
type ValidationSummary struct {
	Progress          int              `json:"progress"`
	DecisionHint      string           `json:"decision_hint"`
	NextPrompt        string           `json:"next_prompt,omitempty"`
	OverallConfidence float64          `json:"overall_confidence"`
	Counts            ValidationCounts `json:"counts"`
	UpdatedAt         *time.Time       `json:"updated_at,omitempty"`
}

// Summarize reduces a status to the cached summary form
func (s *ValidationStatus) Summarize(at time.Time) ValidationSummary {
	return ValidationSummary{
		Progress:          s.Progress,
		DecisionHint:      s.DecisionHint,
		NextPrompt:        s.NextPrompt,
		OverallConfidence: s.OverallConfidence,
		Counts:            s.Summary,
		UpdatedAt:         &at,
	}
}

// SameAs reports whether two summaries carry the same validation content,
// ignoring the timestamp.
func (v ValidationSummary) SameAs(o ValidationSummary) bool {
	return v.Progress == o.Progress &&
		v.DecisionHint == o.DecisionHint &&
		v.NextPrompt == o.NextPrompt &&
		v.OverallConfidence == o.OverallConfidence &&
		v.Counts == o.Counts
}
