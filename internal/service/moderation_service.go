package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/digkill/ChannelPassBot/internal/catalog"
	"github.com/digkill/ChannelPassBot/internal/models"
	"github.com/digkill/ChannelPassBot/internal/repository"
)

// Outcome describes an applied moderation decision.
type Outcome struct {
	Claim         *models.Claim
	UserNotified  bool
	PromptsMarked int
}

type ModerationService struct {
	ledger    *Ledger
	users     *repository.UserRepository
	catalog   *catalog.Store
	notifier  Notifier
	operators *Operators
	prompts   *PromptBook
	log       *slog.Logger
}

func NewModerationService(ledger *Ledger, users *repository.UserRepository, store *catalog.Store, notifier Notifier, operators *Operators, prompts *PromptBook, log *slog.Logger) *ModerationService {
	return &ModerationService{
		ledger:    ledger,
		users:     users,
		catalog:   store,
		notifier:  notifier,
		operators: operators,
		prompts:   prompts,
		log:       log,
	}
}

// Decide applies an operator's decision exactly once. A second decision on
// the same claim, concurrent or not, gets ErrAlreadyDecided. Delivery failures
// after the ledger update are logged and do not undo it.
func (s *ModerationService) Decide(ctx context.Context, actorID int64, token ActionToken) (*Outcome, error) {
	return s.DecideFrom(ctx, actorID, token, MessageRef{})
}

// DecideFrom is Decide for a decision taken on the prompt at origin. The
// origin prompt is always marked, including when the claim was decided
// earlier, so prompts the book no longer tracks still show the outcome.
func (s *ModerationService) DecideFrom(ctx context.Context, actorID int64, token ActionToken, origin MessageRef) (*Outcome, error) {
	if !s.operators.Is(actorID) {
		s.log.Warn("moderation attempt by non-operator", "actor_id", actorID, "claim_id", token.ClaimID)
		return nil, ErrUnauthorized
	}

	claim, err := s.ledger.Get(ctx, token.ClaimID)
	if err != nil {
		return nil, err
	}
	if claim.UserID != token.UserID {
		s.log.Warn("moderation token does not match claim owner", "actor_id", actorID, "claim_id", claim.ID, "token_user_id", token.UserID)
		return nil, fmt.Errorf("claim %d for user %d: %w", token.ClaimID, token.UserID, ErrNotFound)
	}
	if claim.Status != models.ClaimPending {
		s.markStale(ctx, claim, origin)
		return nil, fmt.Errorf("claim %d is %s: %w", claim.ID, claim.Status, ErrAlreadyDecided)
	}

	status := models.ClaimRejected
	if token.Decision == DecisionApprove {
		status = models.ClaimApproved
	}
	decided, applied, err := s.ledger.UpdateStatus(ctx, claim.ID, status)
	if err != nil {
		return nil, err
	}
	if !applied {
		s.markStale(ctx, decided, origin)
		return nil, fmt.Errorf("claim %d is %s: %w", decided.ID, decided.Status, ErrAlreadyDecided)
	}
	s.log.Info("claim decided", "claim_id", decided.ID, "user_id", decided.UserID, "status", decided.Status, "operator_id", actorID)

	out := &Outcome{Claim: decided}
	_, out.UserNotified = s.notifier.Send(ctx, decided.UserID, outcomeMessage(decided))
	if !out.UserNotified {
		s.log.Warn("decision not delivered to user", "claim_id", decided.ID, "user_id", decided.UserID, "err", ErrDeliveryFailed)
	}

	marked := s.markedPrompt(ctx, decided, actorID)
	refs := s.prompts.Close(decided.ID, marked)
	if origin.MessageID != 0 && !slices.Contains(refs, origin) {
		refs = append(refs, origin)
	}
	for _, ref := range refs {
		if s.notifier.Edit(ctx, ref, marked) {
			out.PromptsMarked++
		}
	}
	return out, nil
}

// markStale shows the recorded outcome on a prompt that was acted on after
// the claim had been decided.
func (s *ModerationService) markStale(ctx context.Context, claim *models.Claim, origin MessageRef) {
	if origin.MessageID == 0 {
		return
	}
	s.notifier.Edit(ctx, origin, s.markedPrompt(ctx, claim, 0))
}

// ResendPending re-sends moderation prompts for pending claims to one
// operator, newest first, and returns how many were delivered.
func (s *ModerationService) ResendPending(ctx context.Context, actorID int64, limit int) (int, error) {
	if !s.operators.Is(actorID) {
		return 0, ErrUnauthorized
	}
	claims, err := s.ledger.ListPending(ctx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for i := range claims {
		claim := &claims[i]
		ref, ok := s.notifier.Send(ctx, actorID, s.prompt(ctx, claim))
		if !ok {
			continue
		}
		recordPrompts(ctx, s.notifier, s.prompts, claim.ID, []MessageRef{ref})
		sent++
	}
	return sent, nil
}

func (s *ModerationService) prompt(ctx context.Context, claim *models.Claim) Message {
	label, _ := s.catalog.Current().TierLabel(claim.Tier)
	return ModerationPrompt(s.describeUser(ctx, claim.UserID), label, claim)
}

func (s *ModerationService) markedPrompt(ctx context.Context, claim *models.Claim, actorID int64) Message {
	msg := s.prompt(ctx, claim)
	marker := "🔴 ❌ Rejected"
	if claim.Status == models.ClaimApproved {
		marker = "🟢 ✅ Approved, subscription activated"
	}
	if actorID != 0 {
		marker += fmt.Sprintf(" (operator %d)", actorID)
	}
	return Message{Text: msg.Text + "\n\n" + marker}
}

func (s *ModerationService) describeUser(ctx context.Context, id int64) string {
	user, err := s.users.Get(ctx, id)
	if err != nil || user == nil {
		return fmt.Sprintf("id %d", id)
	}
	return Profile{ID: user.ID, Username: user.Username, FirstName: user.FirstName, LastName: user.LastName}.String()
}

func outcomeMessage(claim *models.Claim) Message {
	if claim.Status == models.ClaimApproved {
		return Message{Text: "✅ Congratulations! Your payment was confirmed and your subscription is now active 🎉\n\nYou will be added to the private channels shortly."}
	}
	return Message{Text: "❌ Sorry, your request was rejected.\n\nPlease check your payment reference or contact support."}
}
