// Package registration drives teacher onboarding: number, then name.
package registration

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"teacherbot/internal/access"
	"teacherbot/internal/config"
	"teacherbot/internal/eventbus"
	"teacherbot/internal/session"
	"teacherbot/internal/storage"
	"teacherbot/pkg/logx"
	"teacherbot/pkg/tgui"
)

const (
	StepNumber = 1
	StepName   = 2

	fieldTeacherID = "teacher_id"
	fieldNumber    = "number"
)

type Kind int

const (
	KindPrompted Kind = iota + 1
	KindAlreadyRegistered
	KindCancelled
	KindInvalid
	KindConflict
	KindAdvanced
	KindRegistered
	KindDuplicate
	KindFailed
)

// Outcome is what the router renders back to the user.
type Outcome struct {
	Kind    Kind
	Text    string
	Teacher *storage.Teacher
}

type Teachers interface {
	ByUserID(ctx context.Context, userID int64) (storage.Teacher, error)
	ByTeacherID(ctx context.Context, teacherID string) (storage.Teacher, error)
	Create(ctx context.Context, t *storage.Teacher) error
}

type Notifier interface {
	NotifyUsers(ctx context.Context, ids []int64, skip int64, text string) (int, error)
}

type rules struct {
	min, max int
	pattern  *regexp.Regexp
}

type Flow struct {
	teachers  Teachers
	sessions  *session.Sessions
	notify    Notifier
	allowList func() []int64
	bus       eventbus.Bus
	log       logx.Logger
	now       func() time.Time

	rules atomic.Pointer[rules]
}

func New(cfg config.RegistrationConfig, teachers Teachers, sessions *session.Sessions, notify Notifier, allowList func() []int64, bus eventbus.Bus, log logx.Logger) *Flow {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop()
	}
	f := &Flow{
		teachers:  teachers,
		sessions:  sessions,
		notify:    notify,
		allowList: allowList,
		bus:       bus,
		log:       log,
		now:       time.Now,
	}
	f.Apply(cfg)
	return f
}

// Apply swaps name bounds and the number pattern.
func (f *Flow) Apply(cfg config.RegistrationConfig) {
	lo, hi := cfg.Bounds()
	f.rules.Store(&rules{min: lo, max: hi, pattern: cfg.Pattern()})
}

// NameBounds returns the accepted name length in runes.
func (f *Flow) NameBounds() (lo, hi int) {
	r := f.rules.Load()
	return r.min, r.max
}

// Start begins a registration unless the identity is already a teacher.
func (f *Flow) Start(ctx context.Context, id access.Identity) Outcome {
	t, err := f.teachers.ByUserID(ctx, id.UserID)
	switch {
	case err == nil:
		return Outcome{Kind: KindAlreadyRegistered, Teacher: &t, Text: fmt.Sprintf(
			"✅ Bereits registriert!\n\nName: %s\nNummer: %s\nSeit: %s\n\nDu erhältst bereits alle Nachrichten!",
			t.Name, strings.TrimPrefix(t.TeacherID, "ID_"), tgui.DateDE(t.RegisteredAt.Time))}
	case !errors.Is(err, storage.ErrNotFound):
		f.log.Error("registration start failed", logx.Int64("user_id", id.UserID), logx.Err(err))
		return Outcome{Kind: KindFailed, Text: fmt.Sprintf(
			"❌ Registrierungsfehler\n\nEin technischer Fehler ist aufgetreten.\nBitte versuche es später erneut.\n\nUser-ID für Admins: %d", id.UserID)}
	}

	f.sessions.Begin(id.UserID, session.Session{
		Kind:     session.KindRegistration,
		Step:     StepNumber,
		Role:     access.None,
		Username: id.Username,
	})
	return Outcome{Kind: KindPrompted, Text: "🎓 LEHRER-REGISTRIERUNG\n\n" +
		"Schritt 1 von 2:\nBitte gib deine Lehrer-Nummer ein.\n\n" +
		"Nur die Zahl eingeben:\n• 34 ✅\n• 12 ✅\n• 156 ✅\n\n" +
		"NICHT eingeben:\n• ID_34 ❌\n• Lehrer 34 ❌\n\n" +
		"Abbrechen mit: /cancel"}
}

// Handle applies one text input to the user's registration session s.
func (f *Flow) Handle(ctx context.Context, id access.Identity, s session.Session, text string) Outcome {
	switch s.Step {
	case StepNumber:
		return f.handleNumber(ctx, id, text)
	case StepName:
		return f.handleName(ctx, id, s, text)
	}
	f.sessions.End(id.UserID)
	return Outcome{Kind: KindCancelled, Text: "❌ Registrierung abgebrochen"}
}

func isCancel(text string) bool { return strings.EqualFold(strings.TrimSpace(text), "/cancel") }

func (f *Flow) handleNumber(ctx context.Context, id access.Identity, text string) Outcome {
	if isCancel(text) {
		f.sessions.End(id.UserID)
		return Outcome{Kind: KindCancelled, Text: "❌ Registrierung abgebrochen\n\nDu kannst jederzeit erneut registrieren."}
	}
	number := strings.TrimSpace(text)
	if !f.rules.Load().pattern.MatchString(number) {
		return Outcome{Kind: KindInvalid, Text: "❌ Ungültige Eingabe!\n\nBitte nur eine Zahl eingeben.\n\nBeispiele: 34, 12, 156\n\nErneut versuchen oder /cancel:"}
	}
	teacherID := "ID_" + number

	owner, err := f.teachers.ByTeacherID(ctx, teacherID)
	switch {
	case err == nil:
		return Outcome{Kind: KindConflict, Teacher: &owner, Text: fmt.Sprintf(
			"⚠️ Nummer bereits vergeben!\n\nNummer %s ist registriert für:\n%s\n\nAndere Nummer eingeben oder /cancel:", number, owner.Name)}
	case !errors.Is(err, storage.ErrNotFound):
		f.log.Error("teacher id lookup failed", logx.String("teacher_id", teacherID), logx.Err(err))
		return Outcome{Kind: KindFailed, Text: "❌ Datenbankfehler\n\nBitte erneut versuchen."}
	}

	ok := f.sessions.Advance(id.UserID, func(s *session.Session) {
		s.Step = StepName
		s.Set(fieldTeacherID, teacherID)
		s.Set(fieldNumber, number)
	})
	if !ok {
		return Outcome{Kind: KindCancelled, Text: "❌ Registrierung abgebrochen"}
	}
	return Outcome{Kind: KindAdvanced, Text: fmt.Sprintf("✅ Nummer akzeptiert: %s\n\n"+
		"Schritt 2 von 2:\nBitte gib deinen Namen ein.\n\n"+
		"Beispiele:\n• U. Abdurrahman\n• Frau Schmidt\n• Ahmed Mustafa\n\n"+
		"Abbrechen: /cancel", number)}
}

func (f *Flow) handleName(ctx context.Context, id access.Identity, s session.Session, text string) Outcome {
	if isCancel(text) {
		f.sessions.End(id.UserID)
		return Outcome{Kind: KindCancelled, Text: "❌ Registrierung abgebrochen"}
	}
	r := f.rules.Load()
	name := strings.TrimSpace(text)
	if n := utf8.RuneCountInString(name); n < r.min || n > r.max {
		return Outcome{Kind: KindInvalid, Text: fmt.Sprintf(
			"❌ Name ungültig!\n\nLänge: %d-%d Zeichen\nDeine Eingabe: %d Zeichen\n\nErneut eingeben:", r.min, r.max, n)}
	}

	username := s.Username
	if username == "" {
		username = id.Username
	}
	t := &storage.Teacher{
		UserID:       id.UserID,
		Username:     username,
		TeacherID:    s.Field(fieldTeacherID),
		Name:         name,
		RegisteredAt: storage.At(f.now()),
	}
	err := f.teachers.Create(ctx, t)
	f.sessions.End(id.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			f.log.Warn("registration lost unique race", logx.Int64("user_id", id.UserID), logx.String("teacher_id", t.TeacherID))
			return Outcome{Kind: KindDuplicate, Text: "❌ Registrierung fehlgeschlagen!\n\nDu bist bereits registriert.\nVerwende /start um zu prüfen."}
		}
		f.log.Error("registration persist failed", logx.Int64("user_id", id.UserID), logx.Err(err))
		return Outcome{Kind: KindFailed, Text: fmt.Sprintf(
			"❌ Registrierung fehlgeschlagen!\n\nTechnischer Fehler.\nBitte an Admins wenden.\nUser-ID: %d", id.UserID)}
	}

	f.log.Info("teacher registered", logx.Int64("user_id", id.UserID), logx.String("teacher_id", t.TeacherID))
	f.bus.Publish(eventbus.Event{Type: eventbus.TypeTeacherRegistered, Data: *t})
	f.notifyAdmins(ctx, *t)

	return Outcome{Kind: KindRegistered, Teacher: t, Text: fmt.Sprintf("🎉 REGISTRIERUNG ERFOLGREICH!\n\n"+
		"Name: %s\nNummer: %s\nLehrer-ID: %s\nUsername: %s\n\n"+
		"Du erhältst ab sofort alle wichtigen Nachrichten!\n\n"+
		"✅ Aktiviere Benachrichtigungen für diesen Chat.",
		t.Name, s.Field(fieldNumber), t.TeacherID, handleOr(t.Username, "Nicht gesetzt"))}
}

// notifyAdmins never fails the registration.
func (f *Flow) notifyAdmins(ctx context.Context, t storage.Teacher) {
	if f.notify == nil || f.allowList == nil {
		return
	}
	text := fmt.Sprintf("🎓 Neue Lehrer-Registrierung\n\nName: %s\nLehrer-ID: %s\nUsername: %s\nUser-ID: %d\nZeit: %s",
		t.Name, t.TeacherID, handleOr(t.Username, "Kein Username"), t.UserID, tgui.DateTimeDE(f.now()))
	if _, err := f.notify.NotifyUsers(ctx, f.allowList(), t.UserID, text); err != nil {
		f.log.Warn("admin notification failed", logx.Int64("user_id", t.UserID), logx.Err(err))
	}
}

func handleOr(username, fallback string) string {
	if username == "" {
		return fallback
	}
	return "@" + username
}
