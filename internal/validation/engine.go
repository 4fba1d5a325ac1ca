package validation

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/liliang-cn/claimdesk/internal/domain"
)

// DefaultAcceptanceThreshold is the confidence a valid document needs
// before its checklist item counts as complete
const DefaultAcceptanceThreshold = 0.7

const (
	requiredWeight   = 2
	optionalWeight   = 1
	fieldConfidence  = 0.8
	minDescriptionLn = 20
)

// Input is everything the engine looks at for one claim
type Input struct {
	ClaimType           string
	IncidentDate        *time.Time
	IncidentDescription string
	Documents           []*domain.Document
	// Today bounds date checks so the result never depends on the wall clock
	Today time.Time
}

// InputFor builds an engine input from a claim snapshot
func InputFor(claim *domain.Claim, docs []*domain.Document, today time.Time) Input {
	return Input{
		ClaimType:           claim.ClaimType,
		IncidentDate:        claim.IncidentDate,
		IncidentDescription: claim.IncidentDescription,
		Documents:           docs,
		Today:               today,
	}
}

// Engine computes ValidationStatus. It holds only configuration, so Compute
// is a pure function of its input.
type Engine struct {
	checklists Checklists
	threshold  float64
}

// NewEngine creates a validation engine
func NewEngine(checklists Checklists, threshold float64) *Engine {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultAcceptanceThreshold
	}
	return &Engine{checklists: checklists, threshold: threshold}
}

// Threshold returns the acceptance threshold
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// Checklists returns the configured checklists
func (e *Engine) Checklists() Checklists {
	return e.checklists
}

// Checklist returns the items for a claim type
func (e *Engine) Checklist(claimType string) ([]ChecklistItem, error) {
	items, ok := e.checklists[claimType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClaimType, claimType)
	}
	return items, nil
}

// InferDocumentType guesses the document type of an upload
func (e *Engine) InferDocumentType(claimType, fileName, mimeType string) string {
	return e.checklists.InferDocumentType(claimType, fileName, mimeType)
}

// Compute derives the validation status of a claim
func (e *Engine) Compute(in Input) *domain.ValidationStatus {
	items, ok := e.checklists[in.ClaimType]
	if !ok || len(items) == 0 {
		return unknownTypeStatus(in.ClaimType)
	}

	result := make([]domain.ValidationItem, 0, len(items))
	for _, item := range items {
		if item.IsDocument() {
			result = append(result, e.documentItem(item, in.Documents))
		} else {
			result = append(result, fieldItem(item, in))
		}
	}

	return finish(in.ClaimType, result)
}

func (e *Engine) documentItem(item ChecklistItem, docs []*domain.Document) domain.ValidationItem {
	vi := domain.ValidationItem{
		Key:          item.Key,
		Title:        item.Title,
		Required:     item.Required,
		DocumentType: item.DocType,
		Evidence:     []string{},
	}

	var matched []*domain.Document
	for _, d := range docs {
		if item.Matches(d.DocumentType) {
			matched = append(matched, d)
		}
	}
	if len(matched) == 0 {
		vi.State = domain.ItemStateMissing
		return vi
	}

	var okConf, reviewConf, invalidConf float64
	var okCount, reviewCount int
	var suggestions []string
	for _, d := range matched {
		vi.Evidence = append(vi.Evidence, d.FileName)
		v := d.Validation
		switch {
		case v.Status == domain.DocumentStatusValid && v.Confidence >= e.threshold:
			okCount++
			okConf = math.Max(okConf, v.Confidence)
		case v.Status == domain.DocumentStatusInvalid:
			invalidConf = math.Max(invalidConf, v.Confidence)
			suggestions = append(suggestions, v.Suggestions...)
		default:
			// valid below threshold, needs_review, pending_review, error
			reviewCount++
			reviewConf = math.Max(reviewConf, v.Confidence)
			suggestions = append(suggestions, v.Suggestions...)
		}
	}
	sort.Strings(vi.Evidence)

	switch {
	case okCount > 0:
		vi.State = domain.ItemStateOK
		vi.Confidence = round2(okConf)
	case reviewCount > 0:
		vi.State = domain.ItemStateNeedsReview
		vi.Confidence = round2(reviewConf)
		vi.Suggestions = dedupe(suggestions)
	default:
		vi.State = domain.ItemStateInvalid
		vi.Confidence = round2(invalidConf)
		vi.Suggestions = dedupe(suggestions)
	}
	return vi
}

func fieldItem(item ChecklistItem, in Input) domain.ValidationItem {
	vi := domain.ValidationItem{
		Key:      item.Key,
		Title:    item.Title,
		Required: item.Required,
		State:    domain.ItemStateMissing,
		Evidence: []string{},
	}

	present, passed := false, true
	for _, field := range item.ClaimFields {
		switch field {
		case FieldIncidentDate:
			if in.IncidentDate == nil {
				passed = false
				continue
			}
			present = true
			if !in.Today.IsZero() && dateOnly(*in.IncidentDate).After(dateOnly(in.Today)) {
				passed = false
				vi.Suggestions = append(vi.Suggestions, "The incident date is in the future; please check it.")
			}
		case FieldIncidentDescription:
			desc := strings.TrimSpace(in.IncidentDescription)
			if desc == "" {
				passed = false
				continue
			}
			present = true
			if len([]rune(desc)) < minDescriptionLn {
				passed = false
				vi.Suggestions = append(vi.Suggestions, "Please describe what happened in a little more detail.")
			}
		default:
			passed = false
		}
	}

	switch {
	case present && passed:
		vi.State = domain.ItemStateOK
		vi.Confidence = fieldConfidence
		vi.Evidence = append(vi.Evidence, item.ClaimFields...)
	case present:
		vi.State = domain.ItemStateNeedsVerification
		vi.Confidence = 0.3
		vi.Evidence = append(vi.Evidence, item.ClaimFields...)
	}
	return vi
}

func finish(claimType string, items []domain.ValidationItem) *domain.ValidationStatus {
	status := &domain.ValidationStatus{
		ClaimType: claimType,
		Items:     items,
	}

	var counts domain.ValidationCounts
	var okWeight, totalWeight int
	var confSum float64
	missingRequired, needsAttention := false, false

	counts.TotalItems = len(items)
	for _, it := range items {
		w := optionalWeight
		if it.Required {
			w = requiredWeight
		}
		totalWeight += w
		confSum += it.Confidence

		switch it.State {
		case domain.ItemStateOK:
			counts.CompletedItems++
			okWeight += w
		case domain.ItemStateMissing:
			counts.MissingItems++
			if it.Required {
				missingRequired = true
			}
		case domain.ItemStateInvalid:
			counts.InvalidItems++
			needsAttention = true
		default:
			counts.ReviewItems++
			needsAttention = true
		}
	}

	if counts.TotalItems > 0 {
		counts.CompletionRate = math.Round(float64(counts.CompletedItems)/float64(counts.TotalItems)*1000) / 10
		status.OverallConfidence = round2(confSum / float64(counts.TotalItems))
	}
	if totalWeight > 0 {
		status.Progress = okWeight * 100 / totalWeight
	}
	status.Summary = counts

	switch {
	case missingRequired:
		status.DecisionHint = domain.DecisionAwaitingDocuments
	case needsAttention:
		status.DecisionHint = domain.DecisionNeedsReview
	default:
		status.DecisionHint = domain.DecisionReadyForReview
	}
	status.NextPrompt = nextPrompt(items)

	return status
}

func unknownTypeStatus(claimType string) *domain.ValidationStatus {
	items := []domain.ValidationItem{{
		Key:         "claim_type",
		Title:       fmt.Sprintf("Claim type %q", claimType),
		Required:    true,
		State:       domain.ItemStateNeedsReview,
		Evidence:    []string{},
		Suggestions: []string{"An agent will confirm which documents this claim needs."},
	}}
	status := finish(claimType, items)
	status.NextPrompt = "We couldn't match your claim to a standard checklist. An agent will review it and let you know what's needed."
	return status
}

func nextPrompt(items []domain.ValidationItem) string {
	for _, it := range items {
		if it.Required && it.State == domain.ItemStateMissing {
			return fmt.Sprintf("Next: Please %s your %s.", actionVerb(it), lowerFirst(it.Title))
		}
	}
	for _, it := range items {
		if it.State == domain.ItemStateInvalid {
			if len(it.Suggestions) > 0 {
				return fmt.Sprintf("Issue with %s: %s", it.Title, it.Suggestions[0])
			}
			return fmt.Sprintf("The uploaded %s needs to be clearer. Please upload a better version.", lowerFirst(it.Title))
		}
	}
	for _, it := range items {
		if it.State == domain.ItemStateNeedsReview || it.State == domain.ItemStateNeedsVerification {
			return fmt.Sprintf("Your %s needs verification. Please ensure it's clear and complete.", lowerFirst(it.Title))
		}
	}
	for _, it := range items {
		if !it.Required && it.State == domain.ItemStateMissing {
			return fmt.Sprintf("Optional: You may also provide %s to strengthen your claim.", lowerFirst(it.Title))
		}
	}
	return "All required documents received! Your claim is being processed."
}

func actionVerb(it domain.ValidationItem) string {
	if it.DocumentType == "" {
		return "provide"
	}
	if strings.Contains(strings.ToLower(it.Title), "photo") {
		return "upload"
	}
	return "attach"
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dedupe(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
