package storage

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// GrantRepo manages one of the two grant tables. The table name comes from
// the RoleTable enum, never from user input.
type GrantRepo struct {
	db    *sqlx.DB
	table RoleTable
}

func NewGrantRepo(db *sqlx.DB, table RoleTable) *GrantRepo {
	return &GrantRepo{db: db, table: table}
}

func (r *GrantRepo) Exists(ctx context.Context, userID int64) (bool, error) {
	var n int
	q := r.db.Rebind("SELECT COUNT(*) FROM " + r.table.table() + " WHERE user_id = ?")
	if err := r.db.GetContext(ctx, &n, q, userID); err != nil {
		return false, mapErr("grant exists", err)
	}
	return n > 0, nil
}

// Add inserts g. An existing grant for the user returns ErrConflict.
func (r *GrantRepo) Add(ctx context.Context, g Grant) error {
	if g.AddedAt.IsZero() {
		g.AddedAt = At(time.Now())
	}
	q := r.db.Rebind("INSERT INTO " + r.table.table() + " (user_id, username, name, added_at, added_by) VALUES (?, ?, ?, ?, ?)")
	_, err := r.db.ExecContext(ctx, q, g.UserID, nullStr(g.Username), g.Name, g.AddedAt, g.AddedBy)
	return mapErr("add grant", err)
}

func (r *GrantRepo) Remove(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind("DELETE FROM "+r.table.table()+" WHERE user_id = ?"), userID)
	return expectOne("remove grant", res, err)
}

func (r *GrantRepo) List(ctx context.Context) ([]Grant, error) {
	var out []Grant
	q := "SELECT id, user_id, COALESCE(username, '') AS username, name, added_at, added_by FROM " + r.table.table() + " ORDER BY added_at DESC, id DESC"
	if err := r.db.SelectContext(ctx, &out, q); err != nil {
		return nil, mapErr("list grants", err)
	}
	return out, nil
}
