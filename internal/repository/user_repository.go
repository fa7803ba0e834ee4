package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/ChannelPassBot/internal/models"
)

const userColumns = `id, username, first_name, last_name, points, referred_by, sub_status, sub_tier, is_banned, joined_at, last_seen_at`

type UserRepository struct {
	db      sqlx.ExtContext
	dialect string
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db, dialect: db.DriverName()}
}

// WithTx returns a repository bound to the transaction.
func (r *UserRepository) WithTx(tx *sqlx.Tx) *UserRepository {
	return &UserRepository{db: tx, dialect: r.dialect}
}

func (r *UserRepository) Get(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	err := sqlx.GetContext(ctx, r.db, &u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// InsertIfAbsent creates the user unless the id already exists. The boolean
// reports whether this call created the row.
func (r *UserRepository) InsertIfAbsent(ctx context.Context, u *models.User) (bool, error) {
	query := `
INSERT INTO users (id, username, first_name, last_name, points, referred_by, sub_status, sub_tier, is_banned, joined_at, last_seen_at)
VALUES (?, ?, ?, ?, 0, ?, 'none', '', 0, ?, ?)`
	if r.dialect == "mysql" {
		query += ` ON DUPLICATE KEY UPDATE id = id`
	} else {
		query += ` ON CONFLICT(id) DO NOTHING`
	}
	res, err := r.db.ExecContext(ctx, query, u.ID, u.Username, u.FirstName, u.LastName, u.ReferredBy, u.JoinedAt, u.LastSeenAt)
	if err != nil {
		return false, fmt.Errorf("insert user: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert user rows affected: %w", err)
	}
	return affected == 1, nil
}

func (r *UserRepository) Touch(ctx context.Context, id int64, username, firstName, lastName string, seen time.Time) error {
	const query = `UPDATE users SET username = ?, first_name = ?, last_name = ?, last_seen_at = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, username, firstName, lastName, seen, id); err != nil {
		return fmt.Errorf("touch user: %w", err)
	}
	return nil
}

// AddPoints credits points. Only positive deltas are accepted.
func (r *UserRepository) AddPoints(ctx context.Context, id int64, delta int) (bool, error) {
	if delta <= 0 {
		return false, fmt.Errorf("points delta must be positive, got %d", delta)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE users SET points = points + ? WHERE id = ?`, delta, id)
	if err != nil {
		return false, fmt.Errorf("add points: %w", err)
	}
	return rowsChanged(res)
}

func (r *UserRepository) ActivateSubscription(ctx context.Context, id int64, tier string) error {
	const query = `UPDATE users SET sub_status = ?, sub_tier = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, query, string(models.SubscriptionActive), tier, id); err != nil {
		return fmt.Errorf("activate subscription: %w", err)
	}
	return nil
}

// SetBanned reports false when the user does not exist.
func (r *UserRepository) SetBanned(ctx context.Context, id int64, banned bool) (bool, error) {
	var exists int
	if err := sqlx.GetContext(ctx, r.db, &exists, `SELECT COUNT(*) FROM users WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("check user: %w", err)
	}
	if exists == 0 {
		return false, nil
	}
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET is_banned = ? WHERE id = ?`, banned, id); err != nil {
		return false, fmt.Errorf("set banned: %w", err)
	}
	return true, nil
}

func (r *UserRepository) CountReferrals(ctx context.Context, id int64) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, r.db, &n, `SELECT COUNT(*) FROM users WHERE referred_by = ?`, id); err != nil {
		return 0, fmt.Errorf("count referrals: %w", err)
	}
	return n, nil
}

func (r *UserRepository) ListRecent(ctx context.Context, limit int) ([]models.User, error) {
	var users []models.User
	query := `SELECT ` + userColumns + ` FROM users ORDER BY joined_at DESC, id DESC LIMIT ?`
	if err := sqlx.SelectContext(ctx, r.db, &users, query, limit); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Search matches a numeric id exactly, or a substring of the handle or first name.
func (r *UserRepository) Search(ctx context.Context, term string, limit int) ([]models.User, error) {
	term = strings.TrimPrefix(strings.TrimSpace(term), "@")
	id, _ := strconv.ParseInt(term, 10, 64)
	like := "%" + term + "%"
	query := `SELECT ` + userColumns + ` FROM users
WHERE id = ? OR username LIKE ? OR first_name LIKE ?
ORDER BY id ASC LIMIT ?`
	var users []models.User
	if err := sqlx.SelectContext(ctx, r.db, &users, query, id, like, like, limit); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return users, nil
}

// ListReachableIDs returns every user that may receive a broadcast.
func (r *UserRepository) ListReachableIDs(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT id FROM users WHERE is_banned = 0 ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	return ids, nil
}

func (r *UserRepository) ListAll(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := sqlx.SelectContext(ctx, r.db, &users, `SELECT `+userColumns+` FROM users ORDER BY id ASC`); err != nil {
		return nil, fmt.Errorf("list all users: %w", err)
	}
	return users, nil
}

// Stats counts users and pending claims; users joined at or after since are
// reported as new.
func (r *UserRepository) Stats(ctx context.Context, since time.Time) (models.Stats, error) {
	const query = `
SELECT
	(SELECT COUNT(*) FROM users) AS total_users,
	(SELECT COUNT(*) FROM users WHERE sub_status = 'active') AS active_subs,
	(SELECT COUNT(*) FROM users WHERE is_banned = 1) AS banned_users,
	(SELECT COUNT(*) FROM payment_claims WHERE status = 'pending') AS pending_claims,
	(SELECT COUNT(*) FROM users WHERE joined_at >= ?) AS new_today`
	var stats models.Stats
	if err := sqlx.GetContext(ctx, r.db, &stats, query, since); err != nil {
		return models.Stats{}, fmt.Errorf("stats: %w", err)
	}
	return stats, nil
}

func rowsChanged(res sql.Result) (bool, error) {
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}
