package service

import (
	"fmt"
	"strconv"
	"strings"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// ActionToken names one moderation decision on one claim. It is carried in
// callback data but never trusted on its own: Decide checks it against the
// ledger.
type ActionToken struct {
	Decision Decision
	UserID   int64
	ClaimID  int64
}

const moderationPrefix = "mod"

// Encode renders the token as mod:<a|r>:<userID>:<claimID>.
func (t ActionToken) Encode() string {
	code := "r"
	if t.Decision == DecisionApprove {
		code = "a"
	}
	return fmt.Sprintf("%s:%s:%d:%d", moderationPrefix, code, t.UserID, t.ClaimID)
}

func ParseActionToken(data string) (ActionToken, error) {
	parts := strings.Split(data, ":")
	if len(parts) != 4 || parts[0] != moderationPrefix {
		return ActionToken{}, fmt.Errorf("moderation token %q: %w", data, ErrInvalidAction)
	}
	var token ActionToken
	switch parts[1] {
	case "a":
		token.Decision = DecisionApprove
	case "r":
		token.Decision = DecisionReject
	default:
		return ActionToken{}, fmt.Errorf("decision %q: %w", parts[1], ErrInvalidAction)
	}
	userID, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || userID <= 0 {
		return ActionToken{}, fmt.Errorf("user id %q: %w", parts[2], ErrInvalidAction)
	}
	claimID, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil || claimID <= 0 {
		return ActionToken{}, fmt.Errorf("claim id %q: %w", parts[3], ErrInvalidAction)
	}
	token.UserID = userID
	token.ClaimID = claimID
	return token, nil
}

type ActionKind int

const (
	ActionMenu ActionKind = iota + 1
	ActionTier
	ActionMethod
	ActionModerate
)

// Action is a parsed callback. Key holds the menu, tier or method key;
// Token is set for ActionModerate.
type Action struct {
	Kind  ActionKind
	Key   string
	Token ActionToken
}

func MenuData(name string) string  { return "menu:" + name }
func TierData(key string) string   { return "tier:" + key }
func MethodData(key string) string { return "method:" + key }

func ParseAction(data string) (Action, error) {
	prefix, rest, ok := strings.Cut(data, ":")
	if !ok || rest == "" {
		return Action{}, fmt.Errorf("callback %q: %w", data, ErrInvalidAction)
	}
	switch prefix {
	case "menu":
		return Action{Kind: ActionMenu, Key: rest}, nil
	case "tier":
		return Action{Kind: ActionTier, Key: rest}, nil
	case "method":
		return Action{Kind: ActionMethod, Key: rest}, nil
	case moderationPrefix:
		token, err := ParseActionToken(data)
		if err != nil {
			return Action{}, err
		}
		return Action{Kind: ActionModerate, Token: token}, nil
	default:
		return Action{}, fmt.Errorf("callback %q: %w", data, ErrInvalidAction)
	}
}
