package service

import (
	"context"
	"testing"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationService(t *testing.T) {
	env := newTestEnv(t, replyWith("Thanks, please send photos."))
	ctx := context.Background()
	claim := env.newMotorClaim(t, alice)

	_, err := env.chat.SubmitMessage(ctx, alice, claim.ID, "my car was hit", nil)
	require.NoError(t, err)
	env.waitForAssistant(t, claim.ID, 1)

	_, err = env.notes.List(ctx, domain.Caller{}, 10)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	notes, err := env.notes.List(ctx, alice, 10)
	require.NoError(t, err)
	require.NotEmpty(t, notes)
	latest := notes[0]
	assert.Equal(t, domain.NotificationStatusChanged, latest.Kind)
	assert.Equal(t, claim.ID, latest.ClaimID)
	assert.Contains(t, latest.Body, "to awaiting documents.")
	assert.False(t, latest.Read)

	others, err := env.notes.List(ctx, bob, 10)
	require.NoError(t, err)
	assert.Empty(t, others)

	assert.ErrorIs(t, env.notes.MarkRead(ctx, bob, latest.ID), domain.ErrNotFound)
	require.NoError(t, env.notes.MarkRead(ctx, alice, latest.ID))

	notes, err = env.notes.List(ctx, alice, 10)
	require.NoError(t, err)
	assert.True(t, notes[0].Read)
}

func TestNotificationService_NilIsNoop(t *testing.T) {
	var s *NotificationService
	assert.NotPanics(t, func() {
		s.Notify(context.Background(), &domain.Notification{UserID: "alice"})
	})
}
