package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teacherbot/internal/access"
	"teacherbot/internal/broadcast"
	"teacherbot/internal/config"
	"teacherbot/internal/dedup"
	"teacherbot/internal/eventbus"
	"teacherbot/internal/export"
	"teacherbot/internal/registration"
	"teacherbot/internal/session"
	"teacherbot/internal/storage"
	"teacherbot/internal/transport"
	"teacherbot/pkg/logx"
)

const (
	urAdmin   = int64(1)
	channelID = int64(-1001)
)

type outMsg struct {
	to   transport.ChatTarget
	text string
}

type answer struct {
	id    string
	text  string
	alert bool
}

type fakeAdapter struct {
	mu      sync.Mutex
	next    int
	sent    []outMsg
	edits   []string
	deletes int
	answers []answer
	docs    []transport.Document
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }
func (f *fakeAdapter) BotUsername() string                                  { return "lehrerbot" }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.sent = append(f.sent, outMsg{to: to, text: text})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1000 + f.next}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ transport.MessageRef, text string, _ *transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, text)
	return nil
}

func (f *fakeAdapter) DeleteMessage(context.Context, transport.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, id, text string, alert bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, answer{id: id, text: text, alert: alert})
	return nil
}

func (f *fakeAdapter) SendDocument(_ context.Context, _ transport.ChatTarget, doc transport.Document) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs = append(f.docs, doc)
	f.next++
	return transport.MessageRef{MessageID: 1000 + f.next}, nil
}

// last returns the most recent text sent to chatID.
func (f *fakeAdapter) last(chatID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.sent) - 1; i >= 0; i-- {
		if f.sent[i].to.ChatID == chatID {
			return f.sent[i].text
		}
	}
	return ""
}

func (f *fakeAdapter) lastEdit() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return ""
	}
	return f.edits[len(f.edits)-1]
}

func (f *fakeAdapter) lastAnswer() answer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.answers) == 0 {
		return answer{}
	}
	return f.answers[len(f.answers)-1]
}

type fixture struct {
	r        *Router
	ad       *fakeAdapter
	store    *storage.Store
	sessions *session.Sessions
	bus      eventbus.Bus
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()
	st, err := storage.Open(ctx, storage.Config{Path: filepath.Join(dir, "bot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ad := &fakeAdapter{}
	bus := eventbus.New()
	ss := session.NewSessions()
	res := access.NewResolver([]int64{urAdmin}, st.SuperAdmins, st.Admins, st.Teachers, logx.Nop())
	reg := registration.New(config.RegistrationConfig{}, st.Teachers, ss, nil, res.AllowList, bus, logx.Nop())
	eng := broadcast.New(channelID, config.BroadcastConfig{}, ad, st.Messages, st.Confirmations, st.Teachers, session.NewDrafts(), bus, logx.Nop())

	r := New(Deps{
		Adapter:      ad,
		Resolver:     res,
		Sessions:     ss,
		Registration: reg,
		Broadcast:    eng,
		Store:        st,
		Export:       export.New(st, eng.LastStatus),
		Guard:        dedup.New(),
		Bus:          bus,
		Log:          logx.Nop(),
		BackupDir:    filepath.Join(dir, "tmp"),
	})
	return &fixture{r: r, ad: ad, store: st, sessions: ss, bus: bus}
}

func (fx *fixture) text(user int64, username, text string) {
	fx.seq++
	fx.r.Handle(context.Background(), transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID: fx.seq, ChatID: user, FromID: user, FromUsername: username,
		Date: time.Unix(1700000000+int64(fx.seq), 0), Text: text,
	}})
}

func (fx *fixture) press(user int64, data string, messageID int) {
	fx.seq++
	fx.r.Handle(context.Background(), transport.Update{Kind: transport.UpdateCallback, Callback: &transport.Callback{
		ID: fmt.Sprintf("cb%d", fx.seq), FromID: user, ChatID: user, MessageID: messageID, Data: data,
	}})
}

func (fx *fixture) register(t *testing.T, user int64, username, number, name string) {
	t.Helper()
	fx.text(user, username, "/start register")
	fx.text(user, username, number)
	fx.text(user, username, name)
	_, err := fx.store.Teachers.ByUserID(context.Background(), user)
	require.NoError(t, err)
}

func TestDuplicateUpdatesAreDropped(t *testing.T) {
	fx := newFixture(t)
	dups, unsub := fx.bus.Subscribe(4)
	defer unsub()

	up := transport.Update{Kind: transport.UpdateMessage, Message: &transport.Message{
		ID: 7, ChatID: urAdmin, FromID: urAdmin, Date: time.Unix(1700000000, 0), Text: "/menu",
	}}
	fx.r.Handle(context.Background(), up)
	fx.r.Handle(context.Background(), up)

	assert.Len(t, fx.ad.sent, 1)
	select {
	case ev := <-dups:
		assert.Equal(t, eventbus.TypeUpdateDuplicate, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("no duplicate event")
	}
}

func TestUnknownUserGetsOnboarding(t *testing.T) {
	fx := newFixture(t)
	fx.text(99, "", "/start")

	out := fx.ad.last(99)
	assert.Contains(t, out, "Keine Berechtigung!")
	assert.Contains(t, out, "https://t.me/lehrerbot?start=register")
	assert.Contains(t, out, "User-ID: 99")

	fx.text(99, "", "hallo")
	assert.Contains(t, fx.ad.last(99), "Keine Berechtigung!")
}

func TestRegistrationThroughRouter(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, 42, "abdu", "34", "U. Abdurrahman")
	assert.Contains(t, fx.ad.last(42), "REGISTRIERUNG ERFOLGREICH")

	_, active := fx.sessions.Get(42)
	assert.False(t, active)

	fx.text(42, "abdu", "/start")
	assert.Equal(t, "Hallo U. Abdurrahman!\n\nDu bist als Lehrer registriert.\nFür Admin-Funktionen wende dich an die Schulleitung.", fx.ad.last(42))
}

func TestStaffSeesMainMenu(t *testing.T) {
	fx := newFixture(t)
	fx.text(urAdmin, "chef", "/menu")
	out := fx.ad.last(urAdmin)
	assert.Contains(t, out, "Willkommen, chef!")
	assert.Contains(t, out, "Ur-Super-Admin")

	fx.text(urAdmin, "chef", "irgendwas")
	assert.Contains(t, fx.ad.last(urAdmin), "TELEGRAM LEHRER-BOT")

	fx.text(urAdmin, "chef", "/help")
	assert.Contains(t, fx.ad.last(urAdmin), "⚙️ SYSTEM")
}

func TestNonStaffCallbackIsRejected(t *testing.T) {
	fx := newFixture(t)
	fx.press(99, "menu:main", 5)

	require.NotEmpty(t, fx.ad.answers)
	assert.Equal(t, noPermission, fx.ad.lastEdit())
}

func TestComposePublishAcknowledge(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, 42, "abdu", "34", "U. Abdurrahman")

	fx.press(urAdmin, "menu:compose", 10)
	s, ok := fx.sessions.Get(urAdmin)
	require.True(t, ok)
	assert.Equal(t, session.KindCompose, s.Kind)

	fx.text(urAdmin, "chef", "Morgen fällt die 1. Stunde aus.")
	assert.Contains(t, fx.ad.last(urAdmin), "NACHRICHT-VORSCHAU")
	_, ok = fx.sessions.Get(urAdmin)
	assert.False(t, ok)

	fx.press(urAdmin, "draft:send", 11)
	assert.Equal(t, "Morgen fällt die 1. Stunde aus.", fx.ad.last(channelID))
	assert.Contains(t, fx.ad.lastEdit(), "NACHRICHT GESENDET")

	m, err := fx.store.Messages.Last(context.Background())
	require.NoError(t, err)

	fx.press(42, "ack:read:x", int(m.MessageID))
	a := fx.ad.lastAnswer()
	assert.True(t, a.alert)
	assert.Equal(t, "✅ Danke U. Abdurrahman! Als gelesen markiert.", a.text)

	fx.press(77, "ack:read:x", int(m.MessageID))
	assert.Equal(t, "Du bist nicht als Lehrer registriert.", fx.ad.lastAnswer().text)

	fx.press(urAdmin, "status:last", 12)
	out := fx.ad.last(urAdmin)
	assert.Contains(t, out, "✅ Bestätigt: 1/1")
	assert.Contains(t, out, "U. Abdurrahman (ID_34)")
}

func TestComposeCancelReturnsToMenu(t *testing.T) {
	fx := newFixture(t)
	fx.press(urAdmin, "menu:compose", 10)
	fx.text(urAdmin, "chef", "/cancel")

	_, ok := fx.sessions.Get(urAdmin)
	assert.False(t, ok)
	assert.Contains(t, fx.ad.last(urAdmin), "TELEGRAM LEHRER-BOT")
}

func TestStatusWithoutMessages(t *testing.T) {
	fx := newFixture(t)
	fx.press(urAdmin, "status:last", 3)
	assert.Contains(t, fx.ad.last(urAdmin), "Noch keine Nachrichten gesendet")
}

func TestSearchSelectsByOrdinal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	for i, text := range []string{"Elternabend Klasse 5", "Konferenz", "Elternabend Klasse 7"} {
		m := storage.Message{MessageID: int64(200 + i), Text: text, SentBy: "chef", SentAt: storage.At(time.Unix(1700000000+int64(i), 0))}
		require.NoError(t, fx.store.Messages.Create(ctx, &m))
	}

	fx.press(urAdmin, "status:search", 3)
	fx.text(urAdmin, "chef", "eltern")
	out := fx.ad.last(urAdmin)
	assert.Contains(t, out, "1. Elternabend Klasse 7")
	assert.Contains(t, out, "2. Elternabend Klasse 5")

	fx.text(urAdmin, "chef", "5")
	assert.Equal(t, "Ungültige Nummer. Bitte wähle 1-2 oder /cancel", fx.ad.last(urAdmin))

	fx.text(urAdmin, "chef", "2")
	assert.Contains(t, fx.ad.last(urAdmin), "📝 Nachricht: Elternabend Klasse 5")
	_, ok := fx.sessions.Get(urAdmin)
	assert.False(t, ok)
}

func TestGrantManagementRespectsHierarchy(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.press(urAdmin, "admin:add:admin", 3)
	fx.text(urAdmin, "chef", "5")
	assert.Contains(t, fx.ad.last(urAdmin), "als Admin hinzugefügt")
	ok, err := fx.store.Admins.Exists(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)

	fx.press(urAdmin, "admin:add:admin", 4)
	fx.text(urAdmin, "chef", "5")
	assert.Contains(t, fx.ad.last(urAdmin), "bereits vorhanden")

	// admins may not manage admins
	fx.press(5, "admin:add:admin", 6)
	assert.Contains(t, fx.ad.last(5), "Keine Berechtigung!")
	_, active := fx.sessions.Get(5)
	assert.False(t, active)

	fx.press(urAdmin, "admin:add:super", 7)
	fx.text(urAdmin, "chef", "1")
	assert.Contains(t, fx.ad.last(urAdmin), "Ur-Super-Admin")

	fx.press(urAdmin, "admin:add:super", 8)
	fx.text(urAdmin, "chef", "@niemand")
	assert.Contains(t, fx.ad.last(urAdmin), "@niemand ist unbekannt")
	fx.text(urAdmin, "chef", "/cancel")

	fx.press(urAdmin, "admin:del:admin", 9)
	fx.text(urAdmin, "chef", "5")
	assert.Contains(t, fx.ad.last(urAdmin), "als Admin entfernt")
	ok, err = fx.store.Admins.Exists(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGrantByUsernameOfKnownTeacher(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, 42, "abdu", "34", "U. Abdurrahman")

	fx.press(urAdmin, "admin:add:admin", 3)
	fx.text(urAdmin, "chef", "@abdu")

	grants, err := fx.store.Admins.List(context.Background())
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, int64(42), grants[0].UserID)
	assert.Equal(t, "U. Abdurrahman", grants[0].Name)
	assert.Equal(t, urAdmin, grants[0].AddedBy)
}

func TestTeacherEditAndDelete(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	fx.register(t, 42, "abdu", "34", "U. Abdurrahman")

	fx.press(urAdmin, "teacher:edit", 3)
	fx.text(urAdmin, "chef", "99")
	assert.Contains(t, fx.ad.last(urAdmin), "ID_99 nicht gefunden")
	fx.text(urAdmin, "chef", "ID_34")
	fx.text(urAdmin, "chef", "Herr Abdurrahman")
	tc, err := fx.store.Teachers.ByTeacherID(ctx, "ID_34")
	require.NoError(t, err)
	assert.Equal(t, "Herr Abdurrahman", tc.Name)

	fx.press(urAdmin, "teacher:find", 4)
	fx.text(urAdmin, "chef", "@abd")
	assert.Contains(t, fx.ad.last(urAdmin), "Herr Abdurrahman (ID_34)")

	fx.press(urAdmin, "teacher:delete", 5)
	fx.text(urAdmin, "chef", "34")
	assert.Contains(t, fx.ad.last(urAdmin), "gelöscht")
	_, err = fx.store.Teachers.ByTeacherID(ctx, "ID_34")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTeacherListPaginates(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 20; i++ {
		tc := storage.Teacher{UserID: int64(100 + i), TeacherID: fmt.Sprintf("ID_%d", i), Name: fmt.Sprintf("Lehrer %d", i)}
		require.NoError(t, fx.store.Teachers.Create(ctx, &tc))
	}
	fx.press(urAdmin, "teacher:list:1", 3)
	assert.Contains(t, fx.ad.last(urAdmin), "Seite 2/2 • 16–20 von 20")
}

func TestRevokedStaffSessionFallsBack(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.store.Admins.Add(ctx, storage.Grant{UserID: 5}))

	fx.press(5, "menu:compose", 3)
	_, ok := fx.sessions.Get(5)
	require.True(t, ok)

	require.NoError(t, fx.store.Admins.Remove(ctx, 5))
	fx.text(5, "", "Hallo")
	_, ok = fx.sessions.Get(5)
	assert.False(t, ok)
	assert.Contains(t, fx.ad.last(5), "Keine Berechtigung!")
}

func TestSystemStatsAndBackup(t *testing.T) {
	fx := newFixture(t)
	fx.register(t, 42, "abdu", "34", "U. Abdurrahman")

	fx.text(urAdmin, "chef", "/stats")
	out := fx.ad.last(urAdmin)
	assert.Contains(t, out, "👥 Lehrer: 1")
	assert.Contains(t, out, "👑 Ur-Super-Admins: 1")

	fx.press(urAdmin, "system:backup", 3)
	require.Len(t, fx.ad.docs, 1)
	assert.True(t, strings.HasPrefix(fx.ad.docs[0].Name, "teacher_bot_backup_"))
	assert.NotEmpty(t, fx.ad.docs[0].Data)

	left, err := os.ReadDir(fx.r.d.BackupDir)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestExportWithoutData(t *testing.T) {
	fx := newFixture(t)
	fx.press(urAdmin, "export:messages", 3)
	assert.Contains(t, fx.ad.last(urAdmin), "Keine Daten")

	fx.register(t, 42, "abdu", "34", "U. Abdurrahman")
	fx.press(urAdmin, "export:teachers", 4)
	require.Len(t, fx.ad.docs, 1)
	assert.True(t, strings.HasSuffix(fx.ad.docs[0].Name, ".csv"))
}

func TestCommandOf(t *testing.T) {
	cases := map[string]string{
		"/start register":    "/start",
		"/MENU@lehrerbot":    "/menu",
		"hallo":              "",
		"  /cancel  ":        "/cancel",
		"/stats\nnoch etwas": "/stats",
	}
	for in, want := range cases {
		assert.Equal(t, want, commandOf(in), in)
	}
}

func TestCommandArg(t *testing.T) {
	assert.Equal(t, "register", commandArg("/start register"))
	assert.Equal(t, "register", commandArg("  /start   register "))
	assert.Equal(t, "registerfoo", commandArg("/start registerfoo"))
	assert.Equal(t, "", commandArg("/start"))
}

func TestStartRegisterNeedsExactArgument(t *testing.T) {
	fx := newFixture(t)
	fx.text(77, "", "/start registerfoo")
	assert.Contains(t, fx.ad.last(77), "Keine Berechtigung!")
	_, active := fx.sessions.Get(77)
	assert.False(t, active)

	fx.text(77, "", "/start register")
	s, active := fx.sessions.Get(77)
	require.True(t, active)
	assert.Equal(t, session.KindRegistration, s.Kind)
}

// answerFirstResolver records how many callbacks were answered when a role
// lookup happens.
type answerFirstResolver struct {
	Resolver
	ad       *fakeAdapter
	answered []int
}

func (o *answerFirstResolver) Resolve(ctx context.Context, userID int64) access.Role {
	o.ad.mu.Lock()
	o.answered = append(o.answered, len(o.ad.answers))
	o.ad.mu.Unlock()
	return o.Resolver.Resolve(ctx, userID)
}

func TestCallbackAnsweredBeforeRoleLookup(t *testing.T) {
	fx := newFixture(t)
	res := &answerFirstResolver{Resolver: fx.r.d.Resolver, ad: fx.ad}
	fx.r.d.Resolver = res

	fx.press(urAdmin, "menu:main", 5)
	require.Len(t, res.answered, 1)
	assert.Equal(t, 1, res.answered[0])
	assert.Contains(t, fx.ad.last(urAdmin), "TELEGRAM LEHRER-BOT")

	fx.press(99, "menu:status", 6)
	require.Len(t, res.answered, 2)
	assert.Equal(t, 2, res.answered[1])
	assert.Equal(t, noPermission, fx.ad.lastEdit())
}
