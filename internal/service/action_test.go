package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionTokenRoundTrip(t *testing.T) {
	for _, token := range []ActionToken{
		{Decision: DecisionApprove, UserID: 42, ClaimID: 7},
		{Decision: DecisionReject, UserID: 9007199254740993, ClaimID: 1},
	} {
		parsed, err := ParseActionToken(token.Encode())
		require.NoError(t, err)
		assert.Equal(t, token, parsed)
	}
	assert.Equal(t, "mod:a:42:7", ActionToken{Decision: DecisionApprove, UserID: 42, ClaimID: 7}.Encode())
}

func TestParseActionTokenRejectsMalformed(t *testing.T) {
	for _, data := range []string{
		"",
		"mod:a:42",
		"mod:x:42:7",
		"mod:a:-1:7",
		"mod:a:42:0",
		"mod:a:42:7:extra",
		"adm:a:42:7",
		"mod:a:4 2:7",
	} {
		_, err := ParseActionToken(data)
		assert.ErrorIs(t, err, ErrInvalidAction, data)
	}
}

func TestParseAction(t *testing.T) {
	cases := []struct {
		data string
		want Action
	}{
		{MenuData("main"), Action{Kind: ActionMenu, Key: "main"}},
		{TierData("VIP"), Action{Kind: ActionTier, Key: "VIP"}},
		{MethodData("usdt"), Action{Kind: ActionMethod, Key: "usdt"}},
		{"mod:r:5:6", Action{Kind: ActionModerate, Token: ActionToken{Decision: DecisionReject, UserID: 5, ClaimID: 6}}},
	}
	for _, tc := range cases {
		got, err := ParseAction(tc.data)
		require.NoError(t, err, tc.data)
		assert.Equal(t, tc.want, got)
	}

	for _, bad := range []string{"menu:", "tier", "unknown:x", "mod:a:1"} {
		_, err := ParseAction(bad)
		assert.ErrorIs(t, err, ErrInvalidAction, bad)
	}
}
