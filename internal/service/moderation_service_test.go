package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/ChannelPassBot/internal/models"
)

func fileClaim(t *testing.T, f *fixture, userID int64, tier string) *models.Claim {
	t.Helper()
	ctx := context.Background()
	user := f.register(t, userID)
	_, err := f.requests.SelectTier(ctx, user.ID, tier)
	require.NoError(t, err)
	_, err = f.requests.SelectMethod(ctx, user.ID, "usdt")
	require.NoError(t, err)
	claim, err := f.requests.HandleText(ctx, user, "tx123abc")
	require.NoError(t, err)
	require.NotNil(t, claim)
	return claim
}

func outcomes(f *fixture, userID int64) int {
	return len(f.notifier.to(userID, "Congratulations")) + len(f.notifier.to(userID, "rejected"))
}

func TestApproveActivatesSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "VIP")

	out, err := f.moderation.Decide(ctx, operatorA, ActionToken{Decision: DecisionApprove, UserID: 1, ClaimID: claim.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, out.Claim.Status)
	assert.True(t, out.UserNotified)
	assert.Equal(t, 2, out.PromptsMarked)
	assert.Equal(t, 2, f.notifier.editCount())

	user, err := f.users.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionActive, user.SubscriptionStatus)
	assert.Equal(t, "VIP", user.SubscriptionTier)

	pending, err := f.ledger.ListPending(ctx, 10)
	require.NoError(t, err)
	for _, c := range pending {
		assert.NotEqual(t, claim.ID, c.ID)
	}
	assert.Equal(t, 1, outcomes(f, 1))
}

func TestRejectLeavesSubscriptionUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "VIP")

	out, err := f.moderation.Decide(ctx, operatorB, ActionToken{Decision: DecisionReject, UserID: 1, ClaimID: claim.ID})
	require.NoError(t, err)
	assert.Equal(t, models.ClaimRejected, out.Claim.Status)

	user, err := f.users.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionNone, user.SubscriptionStatus)
	assert.Empty(t, user.SubscriptionTier)

	_, err = f.moderation.Decide(ctx, operatorA, ActionToken{Decision: DecisionApprove, UserID: 1, ClaimID: claim.ID})
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	user, err = f.users.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionNone, user.SubscriptionStatus)
	assert.Equal(t, 1, outcomes(f, 1))
}

func TestConcurrentDecisionsApplyOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "VIP")

	tokens := []struct {
		actor int64
		token ActionToken
	}{
		{operatorA, ActionToken{Decision: DecisionApprove, UserID: 1, ClaimID: claim.ID}},
		{operatorB, ActionToken{Decision: DecisionReject, UserID: 1, ClaimID: claim.ID}},
		{operatorA, ActionToken{Decision: DecisionApprove, UserID: 1, ClaimID: claim.ID}},
		{operatorB, ActionToken{Decision: DecisionReject, UserID: 1, ClaimID: claim.ID}},
	}

	errs := make([]error, len(tokens))
	var wg sync.WaitGroup
	for i, tc := range tokens {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.moderation.Decide(ctx, tc.actor, tc.token)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyDecided)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, outcomes(f, 1))

	final, err := f.ledger.Get(ctx, claim.ID)
	require.NoError(t, err)
	user, err := f.users.Get(ctx, 1)
	require.NoError(t, err)
	if final.Status == models.ClaimApproved {
		assert.Equal(t, models.SubscriptionActive, user.SubscriptionStatus)
	} else {
		assert.Equal(t, models.ClaimRejected, final.Status)
		assert.Equal(t, models.SubscriptionNone, user.SubscriptionStatus)
	}
}

func TestDecideUnknownClaim(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, 1)

	_, err := f.moderation.Decide(ctx, operatorA, ActionToken{Decision: DecisionApprove, UserID: 1, ClaimID: 999})
	assert.ErrorIs(t, err, ErrNotFound)

	user, err := f.users.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionNone, user.SubscriptionStatus)
	assert.Equal(t, 0, outcomes(f, 1))
}

func TestDecideRejectsForgedOwner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "VIP")
	f.register(t, 2)

	_, err := f.moderation.Decide(ctx, operatorA, ActionToken{Decision: DecisionApprove, UserID: 2, ClaimID: claim.ID})
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.ledger.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimPending, got.Status)
	for _, id := range []int64{1, 2} {
		user, err := f.users.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionNone, user.SubscriptionStatus)
	}
}

func TestDecideRequiresOperator(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "VIP")

	_, err := f.moderation.Decide(ctx, 1, ActionToken{Decision: DecisionApprove, UserID: 1, ClaimID: claim.ID})
	assert.True(t, errors.Is(err, ErrUnauthorized))

	got, err := f.ledger.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimPending, got.Status)
}

func TestDeliveryFailureKeepsDecision(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "VIP")
	f.notifier.setDown(1, true)
	f.notifier.setDown(operatorB, true)

	out, err := f.moderation.Decide(ctx, operatorA, ActionToken{Decision: DecisionApprove, UserID: 1, ClaimID: claim.ID})
	require.NoError(t, err)
	assert.False(t, out.UserNotified)
	assert.Equal(t, 1, out.PromptsMarked)

	got, err := f.ledger.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, got.Status)
}

func TestResendPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := fileClaim(t, f, 1, "VIP")
	second := fileClaim(t, f, 2, "Sub1")

	_, err := f.moderation.ResendPending(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrUnauthorized)

	n, err := f.moderation.ResendPending(ctx, operatorA, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	prompts := f.notifier.to(operatorA, "Payment claim #")
	require.Len(t, prompts, 4)
	assert.Contains(t, prompts[2].Text, "#2")

	out, err := f.moderation.Decide(ctx, operatorA, ActionToken{Decision: DecisionReject, UserID: 1, ClaimID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, 3, out.PromptsMarked)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestLedgerUpdateStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "Sub1")

	_, _, err := f.ledger.UpdateStatus(ctx, 404, models.ClaimApproved)
	assert.ErrorIs(t, err, ErrNotFound)
	_, _, err = f.ledger.UpdateStatus(ctx, claim.ID, models.ClaimPending)
	assert.ErrorIs(t, err, ErrInvalidAction)

	got, applied, err := f.ledger.UpdateStatus(ctx, claim.ID, models.ClaimApproved)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, models.ClaimApproved, got.Status)

	got, applied, err = f.ledger.UpdateStatus(ctx, claim.ID, models.ClaimRejected)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, models.ClaimApproved, got.Status)

	stats, err := f.ledger.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveSubs)
	assert.Equal(t, 0, stats.PendingClaims)
}

func TestDecideFromMarksUntrackedPrompt(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "VIP")
	token := ActionToken{Decision: DecisionApprove, UserID: 1, ClaimID: claim.ID}

	// A prompt delivered before a restart is not in the book.
	origin := MessageRef{ChatID: operatorA, MessageID: 9000}
	out, err := f.moderation.DecideFrom(ctx, operatorA, token, origin)
	require.NoError(t, err)
	assert.Equal(t, 3, out.PromptsMarked)
	assert.True(t, f.notifier.wasEdited(origin))

	stale := MessageRef{ChatID: operatorB, MessageID: 9001}
	_, err = f.moderation.DecideFrom(ctx, operatorB, ActionToken{Decision: DecisionReject, UserID: 1, ClaimID: claim.ID}, stale)
	assert.ErrorIs(t, err, ErrAlreadyDecided)
	assert.True(t, f.notifier.wasEdited(stale))
	assert.Equal(t, 4, f.notifier.editCount())

	got, err := f.ledger.Get(ctx, claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ClaimApproved, got.Status)
}

func TestPromptRecordedAfterDecisionIsMarked(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	claim := fileClaim(t, f, 1, "VIP")

	_, err := f.moderation.Decide(ctx, operatorA, ActionToken{Decision: DecisionReject, UserID: 1, ClaimID: claim.ID})
	require.NoError(t, err)
	before := f.notifier.editCount()

	late, ok := f.notifier.Send(ctx, operatorB, ModerationPrompt("late", "VIP", claim))
	require.True(t, ok)
	recordPrompts(ctx, f.notifier, f.prompts, claim.ID, []MessageRef{late})
	assert.Equal(t, before+1, f.notifier.editCount())
	assert.True(t, f.notifier.wasEdited(late))

	_, closed := f.prompts.Add(claim.ID, late)
	assert.True(t, closed)
}

func TestPromptBookForgetsOldestDecisions(t *testing.T) {
	book := NewPromptBook()
	for id := int64(1); id <= maxClosedPrompts+1; id++ {
		book.Close(id, Message{Text: "done"})
	}
	_, closed := book.Add(1, MessageRef{ChatID: 1, MessageID: 1})
	assert.False(t, closed)
	marked, closed := book.Add(maxClosedPrompts + 1)
	assert.True(t, closed)
	assert.Equal(t, "done", marked.Text)
}
