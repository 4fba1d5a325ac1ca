package domain

// Realtime event names
const (
	EventChatMessage  = "chat_message"
	EventTyping       = "typing"
	EventClaimUpdated = "claim_updated"
)

// TypingPayload is published while the assistant prepares a reply
type TypingPayload struct {
	ClaimID string `json:"claim_id"`
	From    string `json:"from"`
}

// ClaimUpdatedPayload carries the authoritative claim fields after a change
type ClaimUpdatedPayload struct {
	Claim      *Claim            `json:"claim"`
	Progress   []*ProgressStep   `json:"progress"`
	Validation *ValidationStatus `json:"validation,omitempty"`
	NextStep   string            `json:"next_step,omitempty"`
}
