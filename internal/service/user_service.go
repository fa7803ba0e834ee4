package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/ChannelPassBot/internal/catalog"
	"github.com/digkill/ChannelPassBot/internal/models"
	"github.com/digkill/ChannelPassBot/internal/repository"
)

// Profile is the identity a chat update carries.
type Profile struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

func (p Profile) String() string {
	name := strings.TrimSpace(p.FirstName + " " + p.LastName)
	if p.Username != "" {
		name += " @" + p.Username
	}
	return fmt.Sprintf("%s (id %d)", strings.TrimSpace(name), p.ID)
}

type UserService struct {
	db        *sqlx.DB
	users     *repository.UserRepository
	catalog   *catalog.Store
	notifier  Notifier
	operators *Operators
	log       *slog.Logger
	now       func() time.Time
}

func NewUserService(db *sqlx.DB, store *catalog.Store, notifier Notifier, operators *Operators, log *slog.Logger) *UserService {
	return &UserService{
		db:        db,
		users:     repository.NewUserRepository(db),
		catalog:   store,
		notifier:  notifier,
		operators: operators,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Register records a contact. On first contact the user row is created and,
// when referralCode names another existing user, both users are credited the
// catalog's referral points. Later contacts only refresh the profile.
func (s *UserService) Register(ctx context.Context, p Profile, referralCode string) (*models.User, bool, error) {
	now := s.now()

	var referrerID int64
	if id, ok := ParseReferralCode(referralCode); ok && id != p.ID {
		referrer, err := s.users.Get(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("lookup referrer: %w", err)
		}
		if referrer != nil {
			referrerID = referrer.ID
		}
	}

	points := s.catalog.Current().ReferralPoints
	var created bool
	err := repository.InTx(ctx, s.db, func(tx *sqlx.Tx) error {
		users := s.users.WithTx(tx)
		user := &models.User{
			ID:         p.ID,
			Username:   p.Username,
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			JoinedAt:   now,
			LastSeenAt: now,
		}
		if referrerID != 0 {
			user.ReferredBy = &referrerID
		}
		var err error
		created, err = users.InsertIfAbsent(ctx, user)
		if err != nil {
			return err
		}
		if !created {
			return users.Touch(ctx, p.ID, p.Username, p.FirstName, p.LastName, now)
		}
		if referrerID == 0 {
			return nil
		}
		if _, err := users.AddPoints(ctx, p.ID, points); err != nil {
			return err
		}
		_, err = users.AddPoints(ctx, referrerID, points)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("register user: %w", err)
	}

	user, err := s.users.Get(ctx, p.ID)
	if err != nil {
		return nil, false, err
	}
	if user == nil {
		return nil, false, fmt.Errorf("user %d: %w", p.ID, ErrNotFound)
	}

	if created {
		s.log.Info("new user", "user_id", p.ID, "referred_by", referrerID)
		if referrerID != 0 {
			s.notifier.Send(ctx, referrerID, Message{
				Text: fmt.Sprintf("🔔 Someone joined through your link. You earned %d points 🎁", points),
			})
		}
		text := fmt.Sprintf("🆕 New user: %s\nJoined: %s", p, now.Format("2006-01-02 15:04"))
		if referrerID != 0 {
			text += fmt.Sprintf("\nReferred by: %d", referrerID)
		}
		broadcastToOperators(ctx, s.notifier, s.operators, 0, Message{Text: text}, s.log)
	}
	return user, created, nil
}

func (s *UserService) Get(ctx context.Context, id int64) (*models.User, error) {
	user, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return user, nil
}

func (s *UserService) SetBanned(ctx context.Context, id int64, banned bool) error {
	found, err := s.users.SetBanned(ctx, id, banned)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	s.log.Info("user ban changed", "user_id", id, "banned", banned)
	return nil
}

// GrantPoints is the operator's manual credit. Only positive amounts.
func (s *UserService) GrantPoints(ctx context.Context, id int64, points int) error {
	if points <= 0 {
		return fmt.Errorf("points %d: %w", points, ErrInvalidAction)
	}
	found, err := s.users.AddPoints(ctx, id, points)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *UserService) ReferralCount(ctx context.Context, id int64) (int, error) {
	return s.users.CountReferrals(ctx, id)
}

func (s *UserService) ListRecent(ctx context.Context, limit int) ([]models.User, error) {
	return s.users.ListRecent(ctx, limit)
}

func (s *UserService) Search(ctx context.Context, term string, limit int) ([]models.User, error) {
	if strings.TrimSpace(term) == "" {
		return nil, fmt.Errorf("empty search: %w", ErrInvalidAction)
	}
	return s.users.Search(ctx, term, limit)
}
