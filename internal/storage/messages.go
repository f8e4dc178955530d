package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

const messageCols = "id, message_id, text, sent_by, sent_by_user_id, sent_at"

// MessageRepo stores published broadcasts keyed by the transport message id.
type MessageRepo struct {
	db *sqlx.DB
}

func NewMessageRepo(db *sqlx.DB) *MessageRepo { return &MessageRepo{db: db} }

func (r *MessageRepo) Create(ctx context.Context, m *Message) error {
	if m.SentAt.IsZero() {
		m.SentAt = At(time.Now())
	}
	q := r.db.Rebind(`INSERT INTO messages (message_id, text, sent_by, sent_by_user_id, sent_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := r.db.ExecContext(ctx, q, m.MessageID, m.Text, m.SentBy, m.SentByUserID, m.SentAt)
	return mapErr("create message", err)
}

func (r *MessageRepo) ByMessageID(ctx context.Context, messageID int64) (Message, error) {
	var m Message
	q := r.db.Rebind("SELECT " + messageCols + " FROM messages WHERE message_id = ?")
	if err := r.db.GetContext(ctx, &m, q, messageID); err != nil {
		return Message{}, mapErr("message by id", err)
	}
	return m, nil
}

// Last returns the most recent broadcast or ErrNotFound.
func (r *MessageRepo) Last(ctx context.Context) (Message, error) {
	var m Message
	if err := r.db.GetContext(ctx, &m, "SELECT "+messageCols+" FROM messages ORDER BY sent_at DESC, id DESC LIMIT 1"); err != nil {
		return Message{}, mapErr("last message", err)
	}
	return m, nil
}

// Search is a case-insensitive substring match over the text, newest first.
func (r *MessageRepo) Search(ctx context.Context, term string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 10
	}
	q := r.db.Rebind("SELECT " + messageCols + " FROM messages WHERE " + lowerFunc(r.db) + `(text) LIKE ? ESCAPE '\' ORDER BY sent_at DESC, id DESC LIMIT ?`)
	var out []Message
	if err := r.db.SelectContext(ctx, &out, q, likePattern(term), limit); err != nil {
		return nil, mapErr("search messages", err)
	}
	return out, nil
}

func (r *MessageRepo) Recent(ctx context.Context, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []Message
	q := r.db.Rebind("SELECT " + messageCols + " FROM messages ORDER BY sent_at DESC, id DESC LIMIT ?")
	if err := r.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, mapErr("recent messages", err)
	}
	return out, nil
}
