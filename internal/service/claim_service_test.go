package service

import (
	"context"
	"regexp"
	"testing"

	"github.com/liliang-cn/claimdesk/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClaimNumber(t *testing.T) {
	pattern := regexp.MustCompile(`^CLM\d{10}$`)
	for i := 0; i < 100; i++ {
		assert.Regexp(t, pattern, NewClaimNumber())
	}
}

func TestClaimService_Create(t *testing.T) {
	env := newTestEnv(t, replyWith("ok"))

	detail, err := env.claims.Create(context.Background(), alice, &domain.CreateClaimRequest{
		ClaimType:           "Motor",
		IncidentDate:        "2026-10-01",
		IncidentDescription: "Hit by a reversing van in a car park.",
		ContactPhone:        " 555-0100 ",
	}, []*domain.Upload{
		{FileName: "damage_photo.png", Content: pngHead},
		{FileName: "empty.png"},
	})
	require.NoError(t, err)

	claim := detail.Claim
	assert.Regexp(t, `^CLM\d{10}$`, claim.ClaimNumber)
	assert.Equal(t, "alice", claim.OwnerID)
	assert.Equal(t, domain.ClaimTypeMotor, claim.ClaimType)
	assert.Equal(t, domain.ClaimStatusSubmitted, claim.Status)
	assert.Equal(t, "555-0100", claim.ContactPhone)
	require.NotNil(t, claim.IncidentDate)
	assert.Equal(t, "2026-10-01", claim.IncidentDate.Format("2006-01-02"))

	require.Len(t, detail.Progress, 3)
	assert.Equal(t, domain.StepSubmitted, detail.Progress[0].StepID)
	assert.Equal(t, domain.StepInitialValidation, detail.Progress[1].StepID)
	assert.Equal(t, "3 of 6 checklist items complete.", detail.Progress[1].Description)
	assert.Equal(t, domain.StepDocumentsUploaded, detail.Progress[2].StepID)

	assert.Equal(t, domain.DecisionAwaitingDocuments, claim.Validation.DecisionHint)
	assert.Equal(t, "Next: Please attach your valid driver's license of the person driving.", detail.NextStep)

	docs, err := env.wf.documents.ListByClaim(context.Background(), claim.ID)
	require.NoError(t, err)
	require.Len(t, docs, 1, "the empty upload is skipped")
	assert.Equal(t, "motor_photos", docs[0].DocumentType)
}

func TestClaimService_CreateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t, replyWith("ok"))
	ctx := context.Background()

	_, err := env.claims.Create(ctx, alice, &domain.CreateClaimRequest{ClaimType: "pet"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.claims.Create(ctx, alice, &domain.CreateClaimRequest{ClaimType: "health", IncidentDate: "last tuesday"}, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = env.claims.Create(ctx, domain.Caller{}, &domain.CreateClaimRequest{ClaimType: "health"}, nil)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestClaimService_ListAndGet(t *testing.T) {
	env := newTestEnv(t, replyWith("ok"))
	ctx := context.Background()

	mine := env.newMotorClaim(t, alice)
	env.newMotorClaim(t, alice)
	theirs := env.newMotorClaim(t, bob)

	list, err := env.claims.List(ctx, alice, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, list.Total)
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.PageSize)
	for _, c := range list.Claims {
		assert.Equal(t, "alice", c.OwnerID)
	}

	detail, err := env.claims.Get(ctx, alice, mine.ID)
	require.NoError(t, err)
	assert.Equal(t, mine.ClaimNumber, detail.Claim.ClaimNumber)
	assert.Len(t, detail.Progress, 2)

	_, err = env.claims.Get(ctx, alice, theirs.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.claims.Validation(ctx, alice, theirs.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = env.claims.Checklist(ctx, alice, theirs.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	staff, err := env.claims.Get(ctx, agent1, theirs.ID)
	require.NoError(t, err, "unassigned claims are visible to agents")
	assert.Equal(t, "bob", staff.Claim.OwnerID)
}

func TestClaimService_ValidationIsIdempotent(t *testing.T) {
	env := newTestEnv(t, replyWith("ok"))
	claim := env.newCompleteMotorClaim(t, alice)

	first, err := env.claims.Validation(context.Background(), alice, claim.ID)
	require.NoError(t, err)
	second, err := env.claims.Validation(context.Background(), alice, claim.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Validation, second.Validation)
	assert.Equal(t, domain.DecisionReadyForReview, first.Validation.DecisionHint)
	assert.Len(t, first.Documents, 2)
	assert.True(t, first.Validation.Summary.Balanced())
	assert.Empty(t, env.pub.named(claim.ID, domain.EventClaimUpdated), "an unchanged summary is not rebroadcast")
}

func TestClaimService_Checklist(t *testing.T) {
	env := newTestEnv(t, replyWith("ok"))
	claim := env.newMotorClaim(t, alice)

	items, err := env.claims.Checklist(context.Background(), alice, claim.ID)
	require.NoError(t, err)
	require.Len(t, items, 6)
	assert.Equal(t, "incident_date", items[0].Key)
}

func TestClaimService_UploadDocuments(t *testing.T) {
	env := newTestEnv(t, replyWith("ok"))
	claim := env.newMotorClaim(t, alice)
	ctx := context.Background()

	_, err := env.claims.UploadDocuments(ctx, alice, claim.ID, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = env.claims.UploadDocuments(ctx, bob, claim.ID, []*domain.Upload{{FileName: "x.png", Content: pngHead}})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := env.claims.UploadDocuments(ctx, alice, claim.ID, []*domain.Upload{
		{FileName: "scan.png", DocumentType: "drivers_license", Content: pngHead},
		{FileName: "front_bumper_photo.png", Content: pngHead},
	})
	require.NoError(t, err)
	require.Len(t, res.Documents, 2)
	assert.Equal(t, "drivers_license", res.Documents[0].DocumentType)
	assert.Equal(t, "motor_photos", res.Documents[1].DocumentType)
	assert.Equal(t, domain.ItemStateOK, itemState(res.Validation, "drivers_license"))
	assert.Equal(t, domain.ItemStateOK, itemState(res.Validation, "damage_photos"))

	detail, err := env.claims.Get(ctx, alice, claim.ID)
	require.NoError(t, err)
	require.True(t, hasStep(detail.Progress, domain.StepDocumentsUploaded))
	assert.Equal(t, "Received 2 documents.", detail.Progress[len(detail.Progress)-1].Description)

	updates := env.pub.named(claim.ID, domain.EventClaimUpdated)
	require.Len(t, updates, 1)
}
