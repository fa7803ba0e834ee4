package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/ChannelPassBot/internal/models"
	"github.com/digkill/ChannelPassBot/internal/repository"
)

// Ledger is the durable record of payment claims and the subscription state
// they unlock.
type Ledger struct {
	db     *sqlx.DB
	claims *repository.ClaimRepository
	users  *repository.UserRepository
	log    *slog.Logger
	now    func() time.Time
}

func NewLedger(db *sqlx.DB, log *slog.Logger) *Ledger {
	return &Ledger{
		db:     db,
		claims: repository.NewClaimRepository(db),
		users:  repository.NewUserRepository(db),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (l *Ledger) Create(ctx context.Context, userID int64, tier, method, reference string) (*models.Claim, error) {
	now := l.now()
	claim := &models.Claim{
		UserID:    userID,
		Tier:      tier,
		Method:    method,
		Reference: reference,
		Status:    models.ClaimPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := l.claims.Create(ctx, claim); err != nil {
		return nil, err
	}
	return claim, nil
}

func (l *Ledger) Get(ctx context.Context, id int64) (*models.Claim, error) {
	claim, err := l.claims.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %d: %w", id, ErrNotFound)
	}
	return claim, nil
}

// UpdateStatus moves a pending claim to approved or rejected. Approval
// activates the owner's subscription in the same transaction. If the claim is
// no longer pending nothing changes and applied is false.
func (l *Ledger) UpdateStatus(ctx context.Context, id int64, status models.ClaimStatus) (claim *models.Claim, applied bool, err error) {
	if status != models.ClaimApproved && status != models.ClaimRejected {
		return nil, false, fmt.Errorf("status %q: %w", status, ErrInvalidAction)
	}

	err = repository.InTx(ctx, l.db, func(tx *sqlx.Tx) error {
		claims := l.claims.WithTx(tx)
		ok, err := claims.Resolve(ctx, id, status, l.now())
		if err != nil {
			return err
		}
		claim, err = claims.Get(ctx, id)
		if err != nil {
			return err
		}
		if claim == nil {
			return fmt.Errorf("claim %d: %w", id, ErrNotFound)
		}
		if !ok {
			return nil
		}
		applied = true
		if status == models.ClaimApproved {
			return l.users.WithTx(tx).ActivateSubscription(ctx, claim.UserID, claim.Tier)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !applied {
		l.log.Warn("claim status unchanged: not pending", "claim_id", id, "status", claim.Status, "requested", status)
	}
	return claim, applied, nil
}

func (l *Ledger) ListPending(ctx context.Context, limit int) ([]models.Claim, error) {
	return l.claims.ListPending(ctx, limit)
}

func (l *Ledger) HasPending(ctx context.Context, userID int64) (bool, error) {
	return l.claims.HasPending(ctx, userID)
}

func (l *Ledger) ClaimsByUser(ctx context.Context, userID int64, limit int) ([]models.Claim, error) {
	return l.claims.ListByUser(ctx, userID, limit)
}

// Stats reports totals; "new" counts users joined since midnight UTC.
func (l *Ledger) Stats(ctx context.Context) (models.Stats, error) {
	midnight := l.now().Truncate(24 * time.Hour)
	return l.users.Stats(ctx, midnight)
}
