package storage

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a unique constraint rejects a write.
	ErrConflict = errors.New("storage: conflict")
)

// Millis is a timestamp persisted as unix milliseconds (BIGINT).
type Millis struct{ time.Time }

func At(t time.Time) Millis { return Millis{t} }

func (m Millis) Value() (driver.Value, error) {
	if m.IsZero() {
		return int64(0), nil
	}
	return m.UnixMilli(), nil
}

func (m *Millis) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		m.Time = time.Time{}
	case int64:
		m.Time = fromMillis(v)
	case float64:
		m.Time = fromMillis(int64(v))
	case []byte:
		var n int64
		if _, err := fmt.Sscan(string(v), &n); err != nil {
			return fmt.Errorf("millis: %w", err)
		}
		m.Time = fromMillis(n)
	case time.Time:
		m.Time = v
	default:
		return fmt.Errorf("millis: unsupported type %T", src)
	}
	return nil
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// RoleTable names one of the two persisted grant tables.
type RoleTable int

const (
	Admins RoleTable = iota + 1
	SuperAdmins
)

func (t RoleTable) table() string {
	switch t {
	case Admins:
		return "admins"
	case SuperAdmins:
		return "super_admins"
	}
	return ""
}

func (t RoleTable) String() string {
	switch t {
	case Admins:
		return "admin"
	case SuperAdmins:
		return "super"
	}
	return "unknown"
}

// ParseRoleTable accepts the callback payload forms "admin" and "super".
func ParseRoleTable(s string) (RoleTable, bool) {
	switch s {
	case "admin", "admins":
		return Admins, true
	case "super", "super_admin", "super_admins":
		return SuperAdmins, true
	}
	return 0, false
}

type Teacher struct {
	ID           int64  `db:"id"`
	UserID       int64  `db:"user_id"`
	Username     string `db:"username"`
	TeacherID    string `db:"teacher_id"`
	Name         string `db:"name"`
	RegisteredAt Millis `db:"registered_at"`
}

// Grant is a row of admins or super_admins.
type Grant struct {
	ID       int64  `db:"id"`
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
	Name     string `db:"name"`
	AddedAt  Millis `db:"added_at"`
	AddedBy  int64  `db:"added_by"`
}

type Message struct {
	ID           int64  `db:"id"`
	MessageID    int64  `db:"message_id"`
	Text         string `db:"text"`
	SentBy       string `db:"sent_by"`
	SentByUserID int64  `db:"sent_by_user_id"`
	SentAt       Millis `db:"sent_at"`
}

type Confirmation struct {
	MessageID   int64  `db:"message_id"`
	UserID      int64  `db:"user_id"`
	TeacherID   string `db:"teacher_id"`
	ConfirmedAt Millis `db:"confirmed_at"`
}

// ConfirmationRow is a confirmation joined with its teacher and message for exports.
type ConfirmationRow struct {
	MessageID   int64  `db:"message_id"`
	TeacherID   string `db:"teacher_id"`
	TeacherName string `db:"teacher_name"`
	Text        string `db:"text"`
	ConfirmedAt Millis `db:"confirmed_at"`
}

// Counts is the /stats snapshot.
type Counts struct {
	Teachers      int `db:"teachers"`
	Admins        int `db:"admins"`
	SuperAdmins   int `db:"super_admins"`
	Messages      int `db:"messages"`
	Confirmations int `db:"confirmations"`
}
