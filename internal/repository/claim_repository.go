package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/ChannelPassBot/internal/models"
)

const claimColumns = `id, user_id, tier, method, reference, status, created_at, updated_at`

type ClaimRepository struct {
	db sqlx.ExtContext
}

func NewClaimRepository(db *sqlx.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *ClaimRepository) WithTx(tx *sqlx.Tx) *ClaimRepository {
	return &ClaimRepository{db: tx}
}

func (r *ClaimRepository) Create(ctx context.Context, claim *models.Claim) error {
	const query = `
INSERT INTO payment_claims (user_id, tier, method, reference, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, query, claim.UserID, claim.Tier, claim.Method, claim.Reference, string(claim.Status), claim.CreatedAt, claim.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	claim.ID = id
	return nil
}

func (r *ClaimRepository) Get(ctx context.Context, id int64) (*models.Claim, error) {
	var c models.Claim
	err := sqlx.GetContext(ctx, r.db, &c, `SELECT `+claimColumns+` FROM payment_claims WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return &c, nil
}

// Resolve moves a pending claim to status. It reports false when the claim is
// missing or no longer pending; the row is never touched in that case.
func (r *ClaimRepository) Resolve(ctx context.Context, id int64, status models.ClaimStatus, at time.Time) (bool, error) {
	const query = `UPDATE payment_claims SET status = ?, updated_at = ? WHERE id = ? AND status = 'pending'`
	res, err := r.db.ExecContext(ctx, query, string(status), at, id)
	if err != nil {
		return false, fmt.Errorf("resolve claim: %w", err)
	}
	return rowsChanged(res)
}

// ListPending returns pending claims, newest first.
func (r *ClaimRepository) ListPending(ctx context.Context, limit int) ([]models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM payment_claims WHERE status = 'pending' ORDER BY id DESC LIMIT ?`
	var claims []models.Claim
	if err := sqlx.SelectContext(ctx, r.db, &claims, query, limit); err != nil {
		return nil, fmt.Errorf("list pending claims: %w", err)
	}
	return claims, nil
}

func (r *ClaimRepository) HasPending(ctx context.Context, userID int64) (bool, error) {
	var n int
	const query = `SELECT COUNT(*) FROM payment_claims WHERE user_id = ? AND status = 'pending'`
	if err := sqlx.GetContext(ctx, r.db, &n, query, userID); err != nil {
		return false, fmt.Errorf("count pending claims: %w", err)
	}
	return n > 0, nil
}

func (r *ClaimRepository) ListByUser(ctx context.Context, userID int64, limit int) ([]models.Claim, error) {
	query := `SELECT ` + claimColumns + ` FROM payment_claims WHERE user_id = ? ORDER BY id DESC LIMIT ?`
	var claims []models.Claim
	if err := sqlx.SelectContext(ctx, r.db, &claims, query, userID, limit); err != nil {
		return nil, fmt.Errorf("list user claims: %w", err)
	}
	return claims, nil
}

func (r *ClaimRepository) ListAll(ctx context.Context) ([]models.Claim, error) {
	var claims []models.Claim
	if err := sqlx.SelectContext(ctx, r.db, &claims, `SELECT `+claimColumns+` FROM payment_claims ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list all claims: %w", err)
	}
	return claims, nil
}
