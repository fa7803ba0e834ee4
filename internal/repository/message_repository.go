package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/digkill/ChannelPassBot/internal/models"
)

// MessageRepository persists free-form user messages and broadcast results.
type MessageRepository struct {
	db *sqlx.DB
}

func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Log(ctx context.Context, m *models.MessageLog) error {
	const query = `
INSERT INTO messages_log (user_id, username, first_name, message, kind, created_at)
VALUES (:user_id, :username, :first_name, :message, :kind, :created_at)`
	res, err := r.db.NamedExecContext(ctx, query, m)
	if err != nil {
		return fmt.Errorf("insert message log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	m.ID = id
	return nil
}

func (r *MessageRepository) Recent(ctx context.Context, limit int) ([]models.MessageLog, error) {
	const query = `
SELECT id, user_id, username, first_name, message, kind, created_at
FROM messages_log ORDER BY id DESC LIMIT ?`
	var logs []models.MessageLog
	if err := r.db.SelectContext(ctx, &logs, query, limit); err != nil {
		return nil, fmt.Errorf("recent messages: %w", err)
	}
	return logs, nil
}

func (r *MessageRepository) LogBroadcast(ctx context.Context, b *models.BroadcastLog) error {
	const query = `
INSERT INTO broadcast_log (operator_id, message, sent_count, fail_count, created_at)
VALUES (:operator_id, :message, :sent_count, :fail_count, :created_at)`
	res, err := r.db.NamedExecContext(ctx, query, b)
	if err != nil {
		return fmt.Errorf("insert broadcast log: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	return nil
}
