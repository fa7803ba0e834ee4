package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/digkill/ChannelPassBot/internal/catalog"
	"github.com/digkill/ChannelPassBot/internal/models"
	"github.com/digkill/ChannelPassBot/internal/repository"
	"github.com/digkill/ChannelPassBot/internal/session"
)

// RequestService walks a user from tier selection to a filed claim:
// tier, then payment method, then the payment reference.
type RequestService struct {
	sessions  *session.Store
	ledger    *Ledger
	catalog   *catalog.Store
	messages  *repository.MessageRepository
	notifier  Notifier
	operators *Operators
	prompts   *PromptBook
	log       *slog.Logger
	now       func() time.Time
}

func NewRequestService(
	sessions *session.Store,
	ledger *Ledger,
	store *catalog.Store,
	messages *repository.MessageRepository,
	notifier Notifier,
	operators *Operators,
	prompts *PromptBook,
	log *slog.Logger,
) *RequestService {
	return &RequestService{
		sessions:  sessions,
		ledger:    ledger,
		catalog:   store,
		messages:  messages,
		notifier:  notifier,
		operators: operators,
		prompts:   prompts,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SelectTier records the tier and drops any earlier method choice. Users with
// a pending claim cannot start another one.
func (s *RequestService) SelectTier(ctx context.Context, userID int64, tierKey string) (catalog.Tier, error) {
	tier, ok := s.catalog.Current().Tier(tierKey)
	if !ok {
		return catalog.Tier{}, fmt.Errorf("tier %q: %w", tierKey, ErrConfigMissing)
	}
	pending, err := s.ledger.HasPending(ctx, userID)
	if err != nil {
		return catalog.Tier{}, err
	}
	if pending {
		return catalog.Tier{}, ErrClaimPending
	}
	s.sessions.Set(userID, session.State{SelectedTier: tier.Key})
	return tier, nil
}

// SelectMethod records the method, arms the reference step and returns the
// payment instructions to show. A tier that vanished from the catalog is
// rendered with a generic label.
func (s *RequestService) SelectMethod(ctx context.Context, userID int64, methodKey string) (string, error) {
	state := s.sessions.Get(userID)
	if state.SelectedTier == "" {
		return "", fmt.Errorf("method before tier: %w", ErrInvalidAction)
	}
	text, err := s.catalog.Current().Instructions(state.SelectedTier, methodKey)
	if err != nil {
		if text == "" {
			return "", err
		}
		s.log.Warn("payment instructions degraded", "user_id", userID, "tier", state.SelectedTier, "err", err)
	}
	state.PaymentMethod = methodKey
	state.AwaitingReference = true
	s.sessions.Set(userID, state)
	return text, nil
}

// SelectedTier returns the tier of the current flow, if any.
func (s *RequestService) SelectedTier(userID int64) string {
	return s.sessions.Get(userID).SelectedTier
}

// Reset abandons the user's flow.
func (s *RequestService) Reset(userID int64) {
	s.sessions.Clear(userID)
}

// HandleText consumes a plain message. While a reference is awaited the text
// files a claim; otherwise it is logged and mirrored to operators and the
// returned claim is nil.
func (s *RequestService) HandleText(ctx context.Context, p Profile, text string) (*models.Claim, error) {
	state := s.sessions.Get(p.ID)
	if !state.AwaitingReference {
		s.handleFreeText(ctx, p, text)
		return nil, nil
	}
	return s.submitReference(ctx, p, state, text)
}

func (s *RequestService) submitReference(ctx context.Context, p Profile, state session.State, text string) (*models.Claim, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyReference
	}
	s.logMessage(ctx, p, text, "reference")

	pending, err := s.ledger.HasPending(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if pending {
		s.sessions.Clear(p.ID)
		return nil, ErrClaimPending
	}

	claim, err := s.ledger.Create(ctx, p.ID, state.SelectedTier, state.PaymentMethod, text)
	if err != nil {
		return nil, fmt.Errorf("file claim: %w", err)
	}
	s.sessions.Clear(p.ID)
	s.log.Info("claim filed", "claim_id", claim.ID, "user_id", p.ID, "tier", claim.Tier, "method", claim.Method)

	if _, ok := s.notifier.Send(ctx, p.ID, Message{
		Text: "✅ Payment reference received. Your request is pending review; you will get a reply shortly.",
	}); !ok {
		s.log.Warn("claim acknowledgement not delivered", "claim_id", claim.ID, "err", ErrDeliveryFailed)
	}

	prompt := s.moderationPrompt(p, claim)
	refs := broadcastToOperators(ctx, s.notifier, s.operators, 0, prompt, s.log)
	recordPrompts(ctx, s.notifier, s.prompts, claim.ID, refs)
	return claim, nil
}

func (s *RequestService) moderationPrompt(p Profile, claim *models.Claim) Message {
	label, err := s.catalog.Current().TierLabel(claim.Tier)
	if err != nil {
		s.log.Warn("tier label missing", "claim_id", claim.ID, "err", err)
	}
	return ModerationPrompt(p.String(), label, claim)
}

// ModerationPrompt builds the operator-facing message with approve and reject
// controls for the claim.
func ModerationPrompt(who, tierLabel string, claim *models.Claim) Message {
	text := fmt.Sprintf(
		"💳 Payment claim #%d\nUser: %s\nTier: %s (%s)\nMethod: %s\nReference: %s\nFiled: %s",
		claim.ID, who, tierLabel, claim.Tier, claim.Method, claim.Reference,
		claim.CreatedAt.Format("2006-01-02 15:04"),
	)
	approve := ActionToken{Decision: DecisionApprove, UserID: claim.UserID, ClaimID: claim.ID}
	reject := ActionToken{Decision: DecisionReject, UserID: claim.UserID, ClaimID: claim.ID}
	return Message{
		Text: text,
		Buttons: [][]Button{{
			{Text: "✅ Approve", Data: approve.Encode()},
			{Text: "❌ Reject", Data: reject.Encode()},
		}},
	}
}

func (s *RequestService) handleFreeText(ctx context.Context, p Profile, text string) {
	if s.operators.Is(p.ID) || strings.TrimSpace(text) == "" {
		return
	}
	s.logMessage(ctx, p, text, "text")
	echo := Message{Text: fmt.Sprintf("👁 Message from %s\n💬 %s", p, text)}
	broadcastToOperators(ctx, s.notifier, s.operators, p.ID, echo, s.log)
}

func (s *RequestService) logMessage(ctx context.Context, p Profile, text, kind string) {
	err := s.messages.Log(ctx, &models.MessageLog{
		UserID:    p.ID,
		Username:  p.Username,
		FirstName: p.FirstName,
		Message:   text,
		Kind:      kind,
		CreatedAt: s.now(),
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("log message", "user_id", p.ID, "err", err)
	}
}

// RecentMessages lists the latest free-form messages for operators.
func (s *RequestService) RecentMessages(ctx context.Context, limit int) ([]models.MessageLog, error) {
	return s.messages.Recent(ctx, limit)
}
