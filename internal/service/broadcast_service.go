package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/digkill/ChannelPassBot/internal/models"
	"github.com/digkill/ChannelPassBot/internal/repository"
)

type BroadcastResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// BroadcastService delivers operator messages to users, one at a time and
// no faster than the configured rate.
type BroadcastService struct {
	users    *repository.UserRepository
	messages *repository.MessageRepository
	notifier Notifier
	limiter  *rate.Limiter
	log      *slog.Logger
	now      func() time.Time
}

func NewBroadcastService(db *sqlx.DB, messages *repository.MessageRepository, notifier Notifier, perSecond int, log *slog.Logger) *BroadcastService {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	return &BroadcastService{
		users:    repository.NewUserRepository(db),
		messages: messages,
		notifier: notifier,
		limiter:  rate.NewLimiter(limit, 1),
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Broadcast sends text to every user who is not banned and records the run.
func (s *BroadcastService) Broadcast(ctx context.Context, operatorID int64, text string) (BroadcastResult, error) {
	if strings.TrimSpace(text) == "" {
		return BroadcastResult{}, fmt.Errorf("empty broadcast: %w", ErrInvalidAction)
	}
	ids, err := s.users.ListReachableIDs(ctx)
	if err != nil {
		return BroadcastResult{}, err
	}

	var res BroadcastResult
	msg := Message{Text: text}
	for _, id := range ids {
		if err := s.limiter.Wait(ctx); err != nil {
			s.log.Warn("broadcast interrupted", "sent", res.Sent, "failed", res.Failed, "err", err)
			break
		}
		if _, ok := s.notifier.Send(ctx, id, msg); ok {
			res.Sent++
		} else {
			res.Failed++
		}
	}

	entry := &models.BroadcastLog{
		OperatorID: operatorID,
		Message:    text,
		SentCount:  res.Sent,
		FailCount:  res.Failed,
		CreatedAt:  s.now(),
	}
	if err := s.messages.LogBroadcast(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Error("log broadcast", "err", err)
	}
	s.log.Info("broadcast finished", "operator_id", operatorID, "sent", res.Sent, "failed", res.Failed)
	return res, nil
}

// SendDirect delivers one operator message to one user.
func (s *BroadcastService) SendDirect(ctx context.Context, userID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("empty message: %w", ErrInvalidAction)
	}
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user == nil {
		return fmt.Errorf("user %d: %w", userID, ErrNotFound)
	}
	if _, ok := s.notifier.Send(ctx, userID, Message{Text: "📩 Message from support:\n\n" + text}); !ok {
		return fmt.Errorf("user %d: %w", userID, ErrDeliveryFailed)
	}
	return nil
}
