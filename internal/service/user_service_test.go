package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReferralCodeRoundTrip(t *testing.T) {
	code := ReferralCode(123456789)
	assert.NotContains(t, code, "=")
	id, ok := ParseReferralCode(code)
	require.True(t, ok)
	assert.Equal(t, int64(123456789), id)

	id, ok = ParseReferralCode("MTIzNDU2Nzg5==")
	require.True(t, ok)
	assert.Equal(t, int64(123456789), id)

	for _, bad := range []string{"", "!!!", ReferralCode(0), "YWJj"} {
		_, ok := ParseReferralCode(bad)
		assert.False(t, ok, bad)
	}
}

func TestRegisterCreditsReferralOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, 1)
	code := ReferralCode(1)

	user, created, err := f.users.Register(ctx, Profile{ID: 2, FirstName: "New"}, code)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, user.ReferredBy)
	assert.Equal(t, int64(1), *user.ReferredBy)
	assert.Equal(t, 5, user.Points)
	assert.Len(t, f.notifier.to(1, "earned 5 points"), 1)
	assert.Len(t, f.notifier.to(operatorA, "New user"), 2)

	user, created, err = f.users.Register(ctx, Profile{ID: 2, FirstName: "Renamed"}, code)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 5, user.Points)
	assert.Equal(t, "Renamed", user.FirstName)

	referrer, err := f.users.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 5, referrer.Points)

	n, err := f.users.ReferralCount(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRegisterIgnoresInvalidReferrers(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	cases := map[int64]string{
		3: ReferralCode(3),   // self
		4: ReferralCode(999), // unknown user
		5: "garbage",
	}
	for id, code := range cases {
		user, created, err := f.users.Register(ctx, Profile{ID: id}, code)
		require.NoError(t, err)
		assert.True(t, created)
		assert.Nil(t, user.ReferredBy)
		assert.Zero(t, user.Points)
	}
}

func TestRegisterLateReferralIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, 1)
	f.register(t, 2)

	user, created, err := f.users.Register(ctx, Profile{ID: 2}, ReferralCode(1))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Nil(t, user.ReferredBy)
	assert.Zero(t, user.Points)
}

func TestOperatorUserAdministration(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.register(t, 1)

	require.NoError(t, f.users.GrantPoints(ctx, 1, 10))
	assert.ErrorIs(t, f.users.GrantPoints(ctx, 1, 0), ErrInvalidAction)
	assert.ErrorIs(t, f.users.GrantPoints(ctx, 77, 3), ErrNotFound)

	require.NoError(t, f.users.SetBanned(ctx, 1, true))
	assert.ErrorIs(t, f.users.SetBanned(ctx, 77, true), ErrNotFound)

	user, err := f.users.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 10, user.Points)
	assert.True(t, user.Banned)

	_, err = f.users.Get(ctx, 77)
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := f.users.Search(ctx, "user1", 5)
	require.NoError(t, err)
	assert.Len(t, found, 1)
	_, err = f.users.Search(ctx, " ", 5)
	assert.ErrorIs(t, err, ErrInvalidAction)
}
