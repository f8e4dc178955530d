package storage

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teacherbot/pkg/logx"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(context.Background(), Config{Driver: "sqlite", Path: ":memory:"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(sqlx.NewDb(db, "sqlmock"), "sqlite", logx.Nop()), mock
}

func TestTeacherUniqueness(t *testing.T) {
	ctx := context.Background()
	st := newMemStore(t)

	first := &Teacher{UserID: 1, Username: "anna", TeacherID: "ID_34", Name: "Anna"}
	require.NoError(t, st.Teachers.Create(ctx, first))
	assert.NotZero(t, first.ID)

	err := st.Teachers.Create(ctx, &Teacher{UserID: 2, TeacherID: "ID_34", Name: "Bob"})
	require.ErrorIs(t, err, ErrConflict)

	err = st.Teachers.Create(ctx, &Teacher{UserID: 1, TeacherID: "ID_35", Name: "Anna again"})
	require.ErrorIs(t, err, ErrConflict)

	got, err := st.Teachers.ByTeacherID(ctx, "ID_34")
	require.NoError(t, err)
	assert.Equal(t, "Anna", got.Name)

	byName, err := st.Teachers.ByUsername(ctx, "@ANNA")
	require.NoError(t, err)
	assert.Equal(t, int64(1), byName.UserID)

	_, err = st.Teachers.ByUserID(ctx, 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTeacherConcurrentRegistrationSingleWinner(t *testing.T) {
	ctx := context.Background()
	st := newMemStore(t)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok, clash int
	)
	for i := int64(1); i <= 8; i++ {
		wg.Add(1)
		go func(uid int64) {
			defer wg.Done()
			err := st.Teachers.Create(ctx, &Teacher{UserID: uid, TeacherID: "ID_7", Name: "N"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrConflict):
				clash++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 7, clash)
}

func TestTeacherRenameDeleteSearch(t *testing.T) {
	ctx := context.Background()
	st := newMemStore(t)
	require.NoError(t, st.Teachers.Create(ctx, &Teacher{UserID: 1, Username: "m_ueller", TeacherID: "ID_1", Name: "Müller"}))
	require.NoError(t, st.Teachers.Create(ctx, &Teacher{UserID: 2, TeacherID: "ID_2", Name: "Schmidt"}))

	found, err := st.Teachers.Search(ctx, "schm")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "ID_2", found[0].TeacherID)

	found, err = st.Teachers.Search(ctx, "m_u")
	require.NoError(t, err)
	require.Len(t, found, 1)

	require.NoError(t, st.Teachers.Create(ctx, &Teacher{UserID: 3, TeacherID: "ID_3", Name: "Özdemir"}))
	for _, term := range []string{"Özdemir", "özdemir", "ÖZDEM", "müller"} {
		found, err = st.Teachers.Search(ctx, term)
		require.NoError(t, err, term)
		assert.Len(t, found, 1, term)
	}

	require.NoError(t, st.Teachers.Rename(ctx, "ID_2", "Schmitt"))
	require.ErrorIs(t, st.Teachers.Rename(ctx, "ID_9", "x"), ErrNotFound)

	require.NoError(t, st.Teachers.Delete(ctx, "ID_1"))
	require.ErrorIs(t, st.Teachers.Delete(ctx, "ID_1"), ErrNotFound)

	n, err := st.Teachers.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConfirmationUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newMemStore(t)

	base := time.UnixMilli(1_700_000_000_000)
	for i := 0; i < 5; i++ {
		require.NoError(t, st.Confirmations.Upsert(ctx, Confirmation{
			MessageID: 10, UserID: 1, TeacherID: "ID_1", ConfirmedAt: At(base.Add(time.Duration(i) * time.Minute)),
		}))
	}
	rows, err := st.Confirmations.ForMessage(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, base.Add(4*time.Minute).UnixMilli(), rows[0].ConfirmedAt.UnixMilli())
}

func TestMessagesLastAndSearch(t *testing.T) {
	ctx := context.Background()
	st := newMemStore(t)

	_, err := st.Messages.Last(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	base := time.UnixMilli(1_700_000_000_000)
	texts := []string{"Konferenz am Montag", "Elternabend", "Konferenz verschoben", "100% Anwesenheit"}
	for i, txt := range texts {
		require.NoError(t, st.Messages.Create(ctx, &Message{
			MessageID: int64(100 + i), Text: txt, SentBy: "admin", SentByUserID: 1, SentAt: At(base.Add(time.Duration(i) * time.Hour)),
		}))
	}
	require.ErrorIs(t, st.Messages.Create(ctx, &Message{MessageID: 100, Text: "dup", SentByUserID: 1}), ErrConflict)

	last, err := st.Messages.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(103), last.MessageID)

	hits, err := st.Messages.Search(ctx, "KONFERENZ", 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, int64(102), hits[0].MessageID)

	hits, err = st.Messages.Search(ctx, "%", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)

	require.NoError(t, st.Messages.Create(ctx, &Message{
		MessageID: 200, Text: "Änderung im Übungsplan", SentBy: "admin", SentByUserID: 1, SentAt: At(base.Add(5 * time.Hour)),
	}))
	for _, term := range []string{"Änderung", "änderung", "ÄNDERUNG", "Übungsplan", "ÜBUNGSPLAN"} {
		hits, err = st.Messages.Search(ctx, term, 10)
		require.NoError(t, err, term)
		require.Len(t, hits, 1, term)
		assert.Equal(t, int64(200), hits[0].MessageID, term)
	}
}

func TestMockSearchUsesNativeLowerOnPostgres(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := NewWithDB(sqlx.NewDb(db, "postgres"), "postgres", logx.Nop())

	mock.ExpectQuery(`WHERE LOWER\(text\) LIKE \$1`).
		WithArgs("%änderung%", 10).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	_, err = st.Messages.Search(context.Background(), "Änderung", 10)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantsAndStats(t *testing.T) {
	ctx := context.Background()
	st := newMemStore(t)

	repo, err := st.Grants(SuperAdmins)
	require.NoError(t, err)
	require.NoError(t, repo.Add(ctx, Grant{UserID: 5, Username: "boss", Name: "Boss", AddedBy: 1}))
	require.ErrorIs(t, repo.Add(ctx, Grant{UserID: 5}), ErrConflict)

	ok, err := st.SuperAdmins.Exists(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = st.Admins.Exists(ctx, 5)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "boss", list[0].Username)

	c, err := st.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Counts{SuperAdmins: 1}, c)

	require.NoError(t, repo.Remove(ctx, 5))
	require.ErrorIs(t, repo.Remove(ctx, 5), ErrNotFound)
}

func TestJoinedConfirmations(t *testing.T) {
	ctx := context.Background()
	st := newMemStore(t)
	require.NoError(t, st.Teachers.Create(ctx, &Teacher{UserID: 1, TeacherID: "ID_1", Name: "Anna"}))
	require.NoError(t, st.Messages.Create(ctx, &Message{MessageID: 7, Text: "Hallo", SentByUserID: 9}))
	require.NoError(t, st.Confirmations.Upsert(ctx, Confirmation{MessageID: 7, UserID: 1, TeacherID: "ID_1"}))

	rows, err := st.Confirmations.Joined(ctx, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Anna", rows[0].TeacherName)
	assert.Equal(t, "Hallo", rows[0].Text)
}

func TestBackupWritesSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := Open(ctx, Config{Path: filepath.Join(dir, "bot.db")}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	require.NoError(t, st.Teachers.Create(ctx, &Teacher{UserID: 1, TeacherID: "ID_1", Name: "Anna"}))

	dest := filepath.Join(dir, "backup", "copy.db")
	require.NoError(t, st.Backup(ctx, dest))

	cp, err := Open(ctx, Config{Path: dest}, logx.Nop())
	require.NoError(t, err)
	defer cp.Close()
	n, err := cp.Teachers.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMockTeacherByUserID(t *testing.T) {
	st, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"id", "user_id", "username", "teacher_id", "name", "registered_at"}).
		AddRow(int64(3), int64(42), "anna", "ID_34", "Anna", int64(1_700_000_000_000))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, COALESCE(username, '') AS username, teacher_id, name, registered_at FROM teachers WHERE user_id = ? LIMIT 1")).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	got, err := st.Teachers.ByUserID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "ID_34", got.TeacherID)
	assert.Equal(t, int64(1_700_000_000_000), got.RegisteredAt.UnixMilli())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockDriverErrorIsWrapped(t *testing.T) {
	st, mock := newMockStore(t)
	boom := errors.New("disk I/O error")
	mock.ExpectExec("INSERT INTO read_confirmations").
		WithArgs(int64(1), int64(2), "ID_2", sqlmock.AnyArg()).
		WillReturnError(boom)

	err := st.Confirmations.Upsert(context.Background(), Confirmation{MessageID: 1, UserID: 2, TeacherID: "ID_2"})
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMockUniqueViolationMapsToConflict(t *testing.T) {
	st, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO admins").
		WillReturnError(errors.New("constraint failed: UNIQUE constraint failed: admins.user_id (2067)"))

	err := st.Admins.Add(context.Background(), Grant{UserID: 1})
	require.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestParseRoleTable(t *testing.T) {
	tbl, ok := ParseRoleTable("super")
	require.True(t, ok)
	assert.Equal(t, SuperAdmins, tbl)
	_, ok = ParseRoleTable("teachers")
	assert.False(t, ok)
}
