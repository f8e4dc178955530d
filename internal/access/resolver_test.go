package access

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"teacherbot/internal/storage"
	"teacherbot/pkg/logx"
)

type fakeGrants map[int64]bool

func (f fakeGrants) Exists(_ context.Context, id int64) (bool, error) { return f[id], nil }

type failingGrants struct{}

func (failingGrants) Exists(context.Context, int64) (bool, error) {
	return false, errors.New("database is locked")
}

type fakeTeachers map[int64]storage.Teacher

func (f fakeTeachers) ByUserID(_ context.Context, id int64) (storage.Teacher, error) {
	if t, ok := f[id]; ok {
		return t, nil
	}
	return storage.Teacher{}, storage.ErrNotFound
}

func TestResolveOrder(t *testing.T) {
	supers := fakeGrants{2: true, 1: true}
	admins := fakeGrants{3: true, 2: true}
	teachers := fakeTeachers{4: {UserID: 4}, 3: {UserID: 3}}
	r := NewResolver([]int64{1}, supers, admins, teachers, logx.Nop())

	cases := map[int64]Role{1: UrSuperAdmin, 2: SuperAdmin, 3: Admin, 4: Teacher, 5: None}
	for id, want := range cases {
		if got := r.Resolve(context.Background(), id); got != want {
			t.Fatalf("Resolve(%d) = %v, want %v", id, got, want)
		}
	}
}

func TestResolveFailsClosed(t *testing.T) {
	r := NewResolver(nil, failingGrants{}, fakeGrants{}, fakeTeachers{}, logx.Nop())
	if got := r.Resolve(context.Background(), 9); got != None {
		t.Fatalf("Resolve on store failure = %v, want None", got)
	}
}

func TestAllowListHotSwap(t *testing.T) {
	r := NewResolver([]int64{1}, fakeGrants{}, fakeGrants{}, fakeTeachers{}, logx.Nop())
	r.SetAllowList([]int64{7})
	if r.IsUrSuperAdmin(1) || !r.IsUrSuperAdmin(7) {
		t.Fatalf("allow list not replaced: %v", r.AllowList())
	}
}

func TestRolePredicates(t *testing.T) {
	if Teacher.IsStaff() || None.IsStaff() || !Admin.IsStaff() {
		t.Fatal("IsStaff mismatch")
	}
	if Admin.CanManage(storage.Admins) || !SuperAdmin.CanManage(storage.Admins) {
		t.Fatal("admins table management mismatch")
	}
	if SuperAdmin.CanManage(storage.SuperAdmins) || !UrSuperAdmin.CanManage(storage.SuperAdmins) {
		t.Fatal("super_admins table management mismatch")
	}
	if got := (Identity{UserID: 5}).Handle(); got != "ID 5" {
		t.Fatalf("Handle() = %q", got)
	}
}

func TestResolveFailsClosedOnDriverError(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	st := storage.NewWithDB(sqlx.NewDb(db, "sqlmock"), "sqlite", logx.Nop())
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("connection reset"))

	r := NewResolver(nil, st.SuperAdmins, st.Admins, st.Teachers, logx.Nop())
	if got := r.Resolve(context.Background(), 3); got != None {
		t.Fatalf("Resolve = %v, want None", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
