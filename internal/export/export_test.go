package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teacherbot/internal/broadcast"
	"teacherbot/internal/storage"
	"teacherbot/pkg/logx"
)

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.Config{Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func fixedNow() time.Time { return time.Date(2026, 3, 9, 10, 0, 0, 0, time.Local) }

func TestRenderCSVQuotesCells(t *testing.T) {
	b, err := RenderCSV(Dataset{
		Headers: []string{"Name", "Text"},
		Rows:    []map[string]string{{"Name": "Frau \"S\"", "Text": "a,b\nc"}},
	})
	require.NoError(t, err)

	recs, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, []string{"Frau \"S\"", "a,b\nc"}, recs[1])

	_, err = RenderCSV(Dataset{})
	require.Error(t, err)
}

func TestBuildTeachersCSV(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	e := New(st, nil)
	e.now = fixedNow

	_, err := e.Build(ctx, KindTeachers)
	require.ErrorIs(t, err, ErrNoData)

	require.NoError(t, st.Teachers.Create(ctx, &storage.Teacher{UserID: 1, Username: "anna", TeacherID: "ID_1", Name: "Anna Müller"}))
	doc, err := e.Build(ctx, KindTeachers)
	require.NoError(t, err)
	assert.Equal(t, "lehrerliste_2026-03-09.csv", doc.Name)
	assert.Contains(t, doc.Caption, "📊 1 Einträge")

	recs, err := csv.NewReader(bytes.NewReader(doc.Data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Lehrer_ID", "Username", "User_ID", "Registriert"}, recs[0])
	assert.Equal(t, "Anna Müller", recs[1][0])
	assert.Equal(t, "1", recs[1][3])
}

func TestBuildAdminsMergesBothTables(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Admins.Add(ctx, storage.Grant{UserID: 2, Username: "a"}))
	require.NoError(t, st.SuperAdmins.Add(ctx, storage.Grant{UserID: 3, Username: "s"}))

	doc, err := New(st, nil).Build(ctx, KindAdmins)
	require.NoError(t, err)
	recs, err := csv.NewReader(bytes.NewReader(doc.Data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "Admin", recs[1][3])
	assert.Equal(t, "Super-Admin", recs[2][3])
}

func TestBuildConfirmationsTruncatesText(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Messages.Create(ctx, &storage.Message{MessageID: 7, Text: strings.Repeat("ü", 150), SentBy: "chef"}))
	require.NoError(t, st.Confirmations.Upsert(ctx, storage.Confirmation{MessageID: 7, UserID: 99, TeacherID: "ID_9"}))

	doc, err := New(st, nil).Build(ctx, KindConfirmations)
	require.NoError(t, err)
	recs, err := csv.NewReader(bytes.NewReader(doc.Data)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, "Unbekannt", recs[1][0])
	assert.Equal(t, 100, len([]rune(recs[1][2])))
}

func TestBuildReportPDF(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	status := func(context.Context) (broadcast.Status, error) {
		return broadcast.Status{
			Message: storage.Message{MessageID: 12, Text: "Zeugniskonferenz", SentBy: "chef"},
			Total:   2,
			Read:    []storage.Teacher{{Name: "Jörg", TeacherID: "ID_1"}},
			Unread:  []storage.Teacher{{Name: "Anna", TeacherID: "ID_2"}},
		}, nil
	}
	e := New(st, status)
	e.now = fixedNow

	doc, err := e.Build(ctx, KindReport)
	require.NoError(t, err)
	assert.Equal(t, "lesestatus_12_2026-03-09.pdf", doc.Name)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF")))

	none := New(st, func(context.Context) (broadcast.Status, error) { return broadcast.Status{}, storage.ErrNotFound })
	_, err = none.Build(ctx, KindReport)
	require.ErrorIs(t, err, ErrNoData)

	_, err = e.Build(ctx, Kind("bogus"))
	require.True(t, errors.Is(err, ErrUnknownKind))
}

func TestParseKind(t *testing.T) {
	k, ok := ParseKind("messages")
	require.True(t, ok)
	assert.Equal(t, KindMessages, k)
	_, ok = ParseKind("users")
	assert.False(t, ok)
}
