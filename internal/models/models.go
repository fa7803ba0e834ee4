package models

import (
	"strconv"
	"time"
)

type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

type SubscriptionStatus string

const (
	SubscriptionNone   SubscriptionStatus = "none"
	SubscriptionActive SubscriptionStatus = "active"
)

type User struct {
	ID                 int64              `db:"id" json:"id"`
	Username           string             `db:"username" json:"username"`
	FirstName          string             `db:"first_name" json:"first_name"`
	LastName           string             `db:"last_name" json:"last_name"`
	Points             int                `db:"points" json:"points"`
	ReferredBy         *int64             `db:"referred_by" json:"referred_by,omitempty"`
	SubscriptionStatus SubscriptionStatus `db:"sub_status" json:"sub_status"`
	SubscriptionTier   string             `db:"sub_tier" json:"sub_tier"`
	Banned             bool               `db:"is_banned" json:"banned"`
	JoinedAt           time.Time          `db:"joined_at" json:"joined_at"`
	LastSeenAt         time.Time          `db:"last_seen_at" json:"last_seen_at"`
}

// DisplayName prefers the first name, then the handle, then the id.
func (u *User) DisplayName() string {
	switch {
	case u.FirstName != "":
		return u.FirstName
	case u.Username != "":
		return "@" + u.Username
	default:
		return strconv.FormatInt(u.ID, 10)
	}
}

// Claim is a user's assertion that an off-band payment was made.
type Claim struct {
	ID        int64       `db:"id" json:"id"`
	UserID    int64       `db:"user_id" json:"user_id"`
	Tier      string      `db:"tier" json:"tier"`
	Method    string      `db:"method" json:"method"`
	Reference string      `db:"reference" json:"reference"`
	Status    ClaimStatus `db:"status" json:"status"`
	CreatedAt time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt time.Time   `db:"updated_at" json:"updated_at"`
}

type MessageLog struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Username  string    `db:"username" json:"username"`
	FirstName string    `db:"first_name" json:"first_name"`
	Message   string    `db:"message" json:"message"`
	Kind      string    `db:"kind" json:"kind"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type BroadcastLog struct {
	ID         int64     `db:"id" json:"id"`
	OperatorID int64     `db:"operator_id" json:"operator_id"`
	Message    string    `db:"message" json:"message"`
	SentCount  int       `db:"sent_count" json:"sent_count"`
	FailCount  int       `db:"fail_count" json:"fail_count"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

type Stats struct {
	TotalUsers    int `db:"total_users" json:"total_users"`
	ActiveSubs    int `db:"active_subs" json:"active_subs"`
	BannedUsers   int `db:"banned_users" json:"banned_users"`
	PendingClaims int `db:"pending_claims" json:"pending_claims"`
	NewToday      int `db:"new_today" json:"new_today"`
}
