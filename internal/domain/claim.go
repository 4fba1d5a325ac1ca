package domain

import "time"

// Claim types
const (
	ClaimTypeMotor    = "motor"
	ClaimTypeHealth   = "health"
	ClaimTypeProperty = "property"
	ClaimTypeTravel   = "travel"
)

// Claim status vocabulary
const (
	ClaimStatusSubmitted            = "submitted"
	ClaimStatusAssessmentInProgress = "assessment_in_progress"
	ClaimStatusAwaitingDocuments    = "awaiting_documents"
	ClaimStatusPendingHumanReview   = "pending_human_review"
	ClaimStatusNeedsInfo            = "needs_info"
	ClaimStatusAccepted             = "accepted"
	ClaimStatusRejected             = "rejected"
)

// Progress step identifiers
const (
	StepSubmitted         = "submitted"
	StepInitialValidation = "initial_validation"
	StepInitialReview     = "initial_review"
	StepDocumentsUploaded = "documents_uploaded"
	StepAssessment        = "assessment"
	StepHumanReview       = "human_review"
	StepDecision          = "decision"
)

// Progress step statuses
const (
	StepStatusPending   = "pending"
	StepStatusActive    = "active"
	StepStatusCompleted = "completed"
)

// ValidClaimType reports whether t is one of the supported claim types.
func ValidClaimType(t string) bool {
	switch t {
	case ClaimTypeMotor, ClaimTypeHealth, ClaimTypeProperty, ClaimTypeTravel:
		return true
	}
	return false
}

// IsTerminalStatus reports whether automated processing must leave the
// status alone. Only an explicit agent decision moves a claim out of it.
func IsTerminalStatus(status string) bool {
	return status == ClaimStatusAccepted || status == ClaimStatusRejected
}

// Claim represents a single insurance incident tracked end-to-end
type Claim struct {
	ID                   string            `json:"id"`
	ClaimNumber          string            `json:"claim_number"`
	OwnerID              string            `json:"owner_id"`
	AssignedAgentID      string            `json:"assigned_agent_id,omitempty"`
	ClaimType            string            `json:"claim_type"`
	Status               string            `json:"status"`
	IncidentDate         *time.Time        `json:"incident_date,omitempty"`
	IncidentDescription  string            `json:"incident_description,omitempty"`
	ContactPhone         string            `json:"contact_phone,omitempty"`
	Validation           ValidationSummary `json:"validation"`
	ManualReviewRequired bool              `json:"manual_review_required"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// ProgressStep is one named milestone of a claim
type ProgressStep struct {
	ID          string     `json:"id"`
	ClaimID     string     `json:"claim_id"`
	StepID      string     `json:"step_id"`
	Title       string     `json:"title"`
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// CreateClaimRequest is the request to open a new claim
type CreateClaimRequest struct {
	ClaimType           string `form:"claim_type" json:"claim_type" binding:"required"`
	IncidentDate        string `form:"incident_date" json:"incident_date,omitempty"`
	IncidentDescription string `form:"incident_description" json:"incident_description,omitempty"`
	ContactPhone        string `form:"contact_phone" json:"contact_phone,omitempty"`
}

// ClaimDetail bundles a claim with its ordered progress steps
type ClaimDetail struct {
	Claim    *Claim          `json:"claim"`
	Progress []*ProgressStep `json:"progress"`
	NextStep string          `json:"next_step,omitempty"`
}

// ClaimListResponse is a page of claims
type ClaimListResponse struct {
	Claims   []*Claim `json:"claims"`
	Total    int      `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// ClaimFilter narrows claim listings
type ClaimFilter struct {
	OwnerID string
	Status  string
	// AgentID limits results to unassigned claims and claims assigned to it
	AgentID  string
	Page     int
	PageSize int
}
