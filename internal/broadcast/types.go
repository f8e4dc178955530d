package broadcast

import (
	"context"
	"errors"

	"teacherbot/internal/storage"
)

var (
	ErrNoDraft    = errors.New("broadcast: no pending draft")
	ErrNotTeacher = errors.New("broadcast: not a registered teacher")
	// ErrChannelForbidden means the bot may not post to the channel.
	ErrChannelForbidden = errors.New("broadcast: channel forbidden")
	ErrEmpty            = errors.New("broadcast: empty text")
	ErrTooLong          = errors.New("broadcast: text too long")
)

type MessageStore interface {
	Create(ctx context.Context, m *storage.Message) error
	ByMessageID(ctx context.Context, messageID int64) (storage.Message, error)
	Last(ctx context.Context) (storage.Message, error)
	Search(ctx context.Context, term string, limit int) ([]storage.Message, error)
}

type ConfirmationStore interface {
	Upsert(ctx context.Context, c storage.Confirmation) error
	ForMessage(ctx context.Context, messageID int64) ([]storage.Confirmation, error)
}

type Roster interface {
	ByUserID(ctx context.Context, userID int64) (storage.Teacher, error)
	Roster(ctx context.Context) ([]storage.Teacher, error)
}

// Status partitions the current roster by acknowledgement of one message.
type Status struct {
	Message storage.Message
	Total   int
	Read    []storage.Teacher
	Unread  []storage.Teacher
}

func (s Status) ReadCount() int   { return len(s.Read) }
func (s Status) UnreadCount() int { return len(s.Unread) }

// Acknowledged is the bus payload of TypeBroadcastAcknowledged.
type Acknowledged struct {
	MessageID int64
	UserID    int64
	TeacherID string
}
