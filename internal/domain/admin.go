package domain

// Agent decisions
const (
	DecisionApprove   = "approve"
	DecisionReject    = "reject"
	DecisionNeedsInfo = "needs_info"
)

// DecisionRequest is an agent's explicit decision on a claim
type DecisionRequest struct {
	Decision string `json:"decision" binding:"required"`
	Notes    string `json:"notes,omitempty"`
}

// AssignRequest assigns a claim to an agent
type AssignRequest struct {
	AgentID string `json:"agent_id" binding:"required"`
}

// StaffSummary is the agent-facing digest of a claim
type StaffSummary struct {
	Summary   string   `json:"summary"`
	RiskScore float64  `json:"risk_score"`
	Facts     []string `json:"facts"`
}

// StaffClaimDetail is the admin view of a single claim
type StaffClaimDetail struct {
	Claim     *Claim            `json:"claim"`
	Progress  []*ProgressStep   `json:"progress"`
	Documents []*Document       `json:"documents"`
	Status    *ValidationStatus `json:"validation_status"`
	Staff     StaffSummary      `json:"ai_summary"`
}

// Stats represents system statistics
type Stats struct {
	TotalClaims int            `json:"total"`
	ByStatus    map[string]int `json:"by_status"`
	ByDate      []DateCount    `json:"by_date"`
	TotalChats  int            `json:"total_chats"`
}

// DateCount is the number of claims filed on one UTC day
type DateCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}
