// Package broadcast publishes drafts to the channel and tracks who read them.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"teacherbot/internal/access"
	"teacherbot/internal/config"
	"teacherbot/internal/eventbus"
	"teacherbot/internal/session"
	"teacherbot/internal/storage"
	"teacherbot/internal/transport"
	"teacherbot/pkg/logx"
	"teacherbot/pkg/tgui"
)

const (
	AckNS     = "ack"
	AckAction = "read"
)

type settings struct {
	channel int64
	cfg     config.BroadcastConfig
}

type Engine struct {
	out           transport.Sender
	messages      MessageStore
	confirmations ConfirmationStore
	roster        Roster
	drafts        *session.Drafts
	bus           eventbus.Bus
	log           logx.Logger

	now      func() time.Time
	newToken func() string

	set atomic.Pointer[settings]
}

func New(channelID int64, cfg config.BroadcastConfig, out transport.Sender, messages MessageStore, confirmations ConfirmationStore, roster Roster, drafts *session.Drafts, bus eventbus.Bus, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	e := &Engine{
		out:           out,
		messages:      messages,
		confirmations: confirmations,
		roster:        roster,
		drafts:        drafts,
		bus:           bus,
		log:           log,
		now:           time.Now,
		newToken:      uuid.NewString,
	}
	e.Apply(channelID, cfg)
	return e
}

// Apply swaps the channel and broadcast limits.
func (e *Engine) Apply(channelID int64, cfg config.BroadcastConfig) {
	e.set.Store(&settings{channel: channelID, cfg: cfg})
}

func (e *Engine) Config() config.BroadcastConfig { return e.set.Load().cfg }

// Compose validates text and stores it as the identity's draft, replacing any
// earlier one.
func (e *Engine) Compose(id access.Identity, role access.Role, text string) (session.Draft, error) {
	if strings.TrimSpace(text) == "" {
		return session.Draft{}, ErrEmpty
	}
	if max := e.set.Load().cfg.Max(); utf8.RuneCountInString(text) > max {
		return session.Draft{}, fmt.Errorf("%w: %d > %d", ErrTooLong, utf8.RuneCountInString(text), max)
	}
	dr := session.Draft{Text: text, Role: role, Username: id.Username}
	e.drafts.Set(id.UserID, dr)
	return dr, nil
}

func (e *Engine) Draft(userID int64) (session.Draft, bool) { return e.drafts.Get(userID) }

func (e *Engine) Discard(userID int64) { e.drafts.Delete(userID) }

// Publish sends the identity's draft to the channel with an acknowledgement
// button and records it. The draft is kept when sending or persisting fails.
func (e *Engine) Publish(ctx context.Context, id access.Identity) (storage.Message, error) {
	dr, ok := e.drafts.Get(id.UserID)
	if !ok {
		return storage.Message{}, ErrNoDraft
	}
	s := e.set.Load()
	log := e.log.With(logx.Int64("user_id", id.UserID), logx.Int64("channel_id", s.channel))

	data := tgui.Data(AckNS, AckAction, e.newToken())
	kb := tgui.NewInline().Row(tgui.Btn(s.cfg.Label(), data))
	ref, err := e.out.SendText(ctx, transport.ChatTarget{ChatID: s.channel}, dr.Text, &transport.SendOptions{
		DisablePreview:     true,
		ReplyMarkupAdapter: kb.Markup(),
	})
	if err != nil {
		e.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastFailed, Data: err.Error()})
		if errors.Is(err, transport.ErrForbidden) {
			log.Error("channel rejected broadcast", logx.Err(err))
			return storage.Message{}, fmt.Errorf("publish: %w", ErrChannelForbidden)
		}
		log.Error("broadcast send failed", logx.Err(err))
		return storage.Message{}, fmt.Errorf("publish: %w", err)
	}

	sentBy := dr.Username
	if sentBy == "" {
		sentBy = id.Handle()
	}
	m := storage.Message{
		MessageID:    int64(ref.MessageID),
		Text:         dr.Text,
		SentBy:       sentBy,
		SentByUserID: id.UserID,
		SentAt:       storage.At(e.now()),
	}
	if err := e.messages.Create(ctx, &m); err != nil {
		log.Error("broadcast sent but not recorded", logx.Int("message_id", ref.MessageID), logx.Err(err))
		return storage.Message{}, fmt.Errorf("record broadcast: %w", err)
	}
	e.drafts.Delete(id.UserID)

	log.Info("broadcast published", logx.Int64("message_id", m.MessageID), logx.Int("len", utf8.RuneCountInString(m.Text)))
	e.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastPublished, Data: m})
	return m, nil
}

// Acknowledge records that userID read messageID. Repeats refresh the timestamp.
func (e *Engine) Acknowledge(ctx context.Context, messageID, userID int64) (storage.Teacher, error) {
	t, err := e.roster.ByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Teacher{}, ErrNotTeacher
		}
		return storage.Teacher{}, err
	}
	c := storage.Confirmation{
		MessageID:   messageID,
		UserID:      userID,
		TeacherID:   t.TeacherID,
		ConfirmedAt: storage.At(e.now()),
	}
	if err := e.confirmations.Upsert(ctx, c); err != nil {
		return storage.Teacher{}, err
	}
	e.log.Debug("read confirmed", logx.Int64("message_id", messageID), logx.String("teacher_id", t.TeacherID))
	e.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastAcknowledged, Data: Acknowledged{
		MessageID: messageID, UserID: userID, TeacherID: t.TeacherID,
	}})
	return t, nil
}

// Status partitions the current roster for messageID. Confirmations from users
// no longer on the roster are ignored.
func (e *Engine) Status(ctx context.Context, messageID int64) (Status, error) {
	m, err := e.messages.ByMessageID(ctx, messageID)
	if err != nil {
		return Status{}, err
	}
	return e.statusOf(ctx, m)
}

// LastStatus is Status of the most recent broadcast.
func (e *Engine) LastStatus(ctx context.Context) (Status, error) {
	m, err := e.messages.Last(ctx)
	if err != nil {
		return Status{}, err
	}
	return e.statusOf(ctx, m)
}

func (e *Engine) statusOf(ctx context.Context, m storage.Message) (Status, error) {
	teachers, err := e.roster.Roster(ctx)
	if err != nil {
		return Status{}, err
	}
	confs, err := e.confirmations.ForMessage(ctx, m.MessageID)
	if err != nil {
		return Status{}, err
	}
	read := make(map[int64]struct{}, len(confs))
	for _, c := range confs {
		read[c.UserID] = struct{}{}
	}
	st := Status{Message: m, Total: len(teachers)}
	for _, t := range teachers {
		if _, ok := read[t.UserID]; ok {
			st.Read = append(st.Read, t)
		} else {
			st.Unread = append(st.Unread, t)
		}
	}
	return st, nil
}

func (e *Engine) Last(ctx context.Context) (storage.Message, error) { return e.messages.Last(ctx) }

// Search matches text case-insensitively, newest first. limit <= 0 uses the
// configured default.
func (e *Engine) Search(ctx context.Context, term string, limit int) ([]storage.Message, error) {
	if limit <= 0 {
		limit = e.set.Load().cfg.Limit()
	}
	return e.messages.Search(ctx, strings.TrimSpace(term), limit)
}
