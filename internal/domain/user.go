package domain

import "time"

// Roles
const (
	RoleUser  = "user"
	RoleAgent = "agent"
	RoleAdmin = "admin"
)

// Caller is the identity resolved by the authentication boundary
type Caller struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// IsStaff reports whether the caller works claims rather than owns them
func (c Caller) IsStaff() bool {
	return c.Role == RoleAgent || c.Role == RoleAdmin
}

// ValidRole reports whether r belongs to the role model
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAgent || r == RoleAdmin
}

// Notification kinds
const (
	NotificationStatusChanged = "status_changed"
	NotificationEscalated     = "escalated"
	NotificationDecision      = "decision"
)

// Notification is an informational, fire-and-forget message for a user
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ClaimID   string    `json:"claim_id,omitempty"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}
