package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// ConfirmationRepo records read acknowledgements, one row per (message, user).
type ConfirmationRepo struct {
	db *sqlx.DB
}

func NewConfirmationRepo(db *sqlx.DB) *ConfirmationRepo { return &ConfirmationRepo{db: db} }

// Upsert inserts or refreshes the confirmation for (MessageID, UserID).
func (r *ConfirmationRepo) Upsert(ctx context.Context, c Confirmation) error {
	if c.ConfirmedAt.IsZero() {
		c.ConfirmedAt = At(time.Now())
	}
	q := r.db.Rebind(`INSERT INTO read_confirmations (message_id, user_id, teacher_id, confirmed_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (message_id, user_id) DO UPDATE SET teacher_id = excluded.teacher_id, confirmed_at = excluded.confirmed_at`)
	_, err := r.db.ExecContext(ctx, q, c.MessageID, c.UserID, c.TeacherID, c.ConfirmedAt)
	return mapErr("upsert confirmation", err)
}

func (r *ConfirmationRepo) ForMessage(ctx context.Context, messageID int64) ([]Confirmation, error) {
	var out []Confirmation
	q := r.db.Rebind(`SELECT message_id, user_id, teacher_id, confirmed_at FROM read_confirmations WHERE message_id = ? ORDER BY confirmed_at`)
	if err := r.db.SelectContext(ctx, &out, q, messageID); err != nil {
		return nil, mapErr("confirmations for message", err)
	}
	return out, nil
}

// Joined returns confirmations with teacher name and message text, newest first.
func (r *ConfirmationRepo) Joined(ctx context.Context, limit int) ([]ConfirmationRow, error) {
	if limit <= 0 {
		limit = 1000
	}
	q := r.db.Rebind(`SELECT rc.message_id, rc.teacher_id, COALESCE(t.name, '') AS teacher_name,
			COALESCE(m.text, '') AS text, rc.confirmed_at
		FROM read_confirmations rc
		LEFT JOIN teachers t ON t.user_id = rc.user_id
		LEFT JOIN messages m ON m.message_id = rc.message_id
		ORDER BY rc.confirmed_at DESC
		LIMIT ?`)
	var out []ConfirmationRow
	if err := r.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, mapErr("joined confirmations", err)
	}
	return out, nil
}
