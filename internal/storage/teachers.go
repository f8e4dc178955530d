package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

const teacherCols = "id, user_id, COALESCE(username, '') AS username, teacher_id, name, registered_at"

// TeacherRepo manages the teachers table.
type TeacherRepo struct {
	db *sqlx.DB
}

func NewTeacherRepo(db *sqlx.DB) *TeacherRepo { return &TeacherRepo{db: db} }

func (r *TeacherRepo) get(ctx context.Context, op, where string, arg any) (Teacher, error) {
	var t Teacher
	q := r.db.Rebind("SELECT " + teacherCols + " FROM teachers WHERE " + where + " LIMIT 1")
	if err := r.db.GetContext(ctx, &t, q, arg); err != nil {
		return Teacher{}, mapErr(op, err)
	}
	return t, nil
}

func (r *TeacherRepo) ByUserID(ctx context.Context, userID int64) (Teacher, error) {
	return r.get(ctx, "teacher by user", "user_id = ?", userID)
}

func (r *TeacherRepo) ByTeacherID(ctx context.Context, teacherID string) (Teacher, error) {
	return r.get(ctx, "teacher by id", "teacher_id = ?", teacherID)
}

// ByUsername matches case-insensitively; a leading '@' is ignored.
func (r *TeacherRepo) ByUsername(ctx context.Context, username string) (Teacher, error) {
	if len(username) > 0 && username[0] == '@' {
		username = username[1:]
	}
	lower := lowerFunc(r.db)
	return r.get(ctx, "teacher by username", lower+"(username) = "+lower+"(?)", username)
}

// Create inserts t and fills its ID. Unique violations on user_id or
// teacher_id return ErrConflict.
func (r *TeacherRepo) Create(ctx context.Context, t *Teacher) error {
	if t.RegisteredAt.IsZero() {
		t.RegisteredAt = At(time.Now())
	}
	q := r.db.Rebind(`INSERT INTO teachers (user_id, username, teacher_id, name, registered_at) VALUES (?, ?, ?, ?, ?)`)
	if _, err := r.db.ExecContext(ctx, q, t.UserID, nullStr(t.Username), t.TeacherID, t.Name, t.RegisteredAt); err != nil {
		return mapErr("create teacher", err)
	}
	created, err := r.ByUserID(ctx, t.UserID)
	if err != nil {
		return err
	}
	t.ID = created.ID
	return nil
}

// List returns all teachers, most recently registered first.
func (r *TeacherRepo) List(ctx context.Context) ([]Teacher, error) {
	var out []Teacher
	if err := r.db.SelectContext(ctx, &out, "SELECT "+teacherCols+" FROM teachers ORDER BY registered_at DESC, id DESC"); err != nil {
		return nil, mapErr("list teachers", err)
	}
	return out, nil
}

// Roster returns all teachers ordered by name; it is the base of read status.
func (r *TeacherRepo) Roster(ctx context.Context) ([]Teacher, error) {
	var out []Teacher
	if err := r.db.SelectContext(ctx, &out, "SELECT "+teacherCols+" FROM teachers ORDER BY name, id"); err != nil {
		return nil, mapErr("roster", err)
	}
	return out, nil
}

// Search matches name, teacher id or username as a case-insensitive substring.
func (r *TeacherRepo) Search(ctx context.Context, term string) ([]Teacher, error) {
	p := likePattern(term)
	lower := lowerFunc(r.db)
	like := func(col string) string { return lower + "(" + col + `) LIKE ? ESCAPE '\'` }
	q := r.db.Rebind("SELECT " + teacherCols + " FROM teachers WHERE " +
		like("name") + " OR " + like("teacher_id") + " OR " + like("COALESCE(username, '')") +
		" ORDER BY name, id")
	var out []Teacher
	if err := r.db.SelectContext(ctx, &out, q, p, p, p); err != nil {
		return nil, mapErr("search teachers", err)
	}
	return out, nil
}

func (r *TeacherRepo) Rename(ctx context.Context, teacherID, name string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE teachers SET name = ? WHERE teacher_id = ?`), name, teacherID)
	return expectOne("rename teacher", res, err)
}

// Delete removes the teacher row. Their confirmations stay and drop out of
// status partitions.
func (r *TeacherRepo) Delete(ctx context.Context, teacherID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM teachers WHERE teacher_id = ?`), teacherID)
	return expectOne("delete teacher", res, err)
}

func (r *TeacherRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM teachers`); err != nil {
		return 0, mapErr("count teachers", err)
	}
	return n, nil
}
