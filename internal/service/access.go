package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/liliang-cn/claimdesk/internal/repository"
)

// Access answers "may this caller see this claim" for every surface: chat,
// claims, admin and the realtime socket.
type Access struct {
	claims *repository.ClaimRepository
}

// NewAccess creates the access check
func NewAccess(claims *repository.ClaimRepository) *Access {
	return &Access{claims: claims}
}

// CanView reports whether caller may see claim. Owners see their own
// claims, agents see unassigned claims and claims assigned to them, admins
// see everything.
func CanView(caller domain.Caller, claim *domain.Claim) bool {
	switch caller.Role {
	case domain.RoleAdmin:
		return true
	case domain.RoleAgent:
		return claim.AssignedAgentID == "" || claim.AssignedAgentID == caller.UserID
	case domain.RoleUser:
		return caller.UserID != "" && claim.OwnerID == caller.UserID
	}
	return false
}

// Claim loads a claim the caller may see. A foreign claim and a missing
// claim both yield ErrNotFound.
func (a *Access) Claim(ctx context.Context, caller domain.Caller, claimID string) (*domain.Claim, error) {
	if claimID == "" {
		return nil, fmt.Errorf("claim: %w", domain.ErrNotFound)
	}
	claim, err := a.claims.Get(ctx, claimID)
	if err != nil {
		return nil, err
	}
	if !CanView(caller, claim) {
		return nil, fmt.Errorf("claim %s: %w", claimID, domain.ErrNotFound)
	}
	return claim, nil
}

// Authorize implements realtime.Authorizer
func (a *Access) Authorize(ctx context.Context, caller domain.Caller, claimID string) error {
	_, err := a.Claim(ctx, caller, claimID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("failed to authorize claim: %w", err)
	}
	return err
}
