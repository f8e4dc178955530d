package session

import (
	"maps"
	"slices"
	"time"

	"teacherbot/internal/access"
)

type Kind string

const (
	KindRegistration  Kind = "registration"
	KindCompose       Kind = "compose"
	KindSearch        Kind = "search"
	KindManageGrant   Kind = "manage_grant"
	KindEditTeacher   Kind = "edit_teacher"
	KindDeleteTeacher Kind = "delete_teacher"
	KindFindTeacher   Kind = "find_teacher"
)

// Session is one in-progress multi-turn flow.
type Session struct {
	Kind   Kind
	Step   int
	Fields map[string]string
	// Results keeps ids produced by this session (e.g. search hits) so a
	// later ordinal reply resolves against the same list.
	Results  []int64
	Role     access.Role
	Username string
}

func (s Session) Field(k string) string { return s.Fields[k] }

func (s *Session) Set(k, v string) {
	if s.Fields == nil {
		s.Fields = make(map[string]string)
	}
	s.Fields[k] = v
}

func (s Session) clone() Session {
	s.Fields = maps.Clone(s.Fields)
	s.Results = slices.Clone(s.Results)
	return s
}

// Sessions keeps at most one session per user.
type Sessions struct {
	st *store[Session]
}

func NewSessions() *Sessions { return &Sessions{st: newStore[Session](nil)} }

// NewSessionsWithClock is for tests that drive expiry.
func NewSessionsWithClock(now func() time.Time) *Sessions {
	return &Sessions{st: newStore[Session](now)}
}

// Begin starts s for userID and replaces any prior session of that user.
func (ss *Sessions) Begin(userID int64, s Session) {
	ss.st.put(userID, s.clone())
}

// Get returns a copy of the user's session.
func (ss *Sessions) Get(userID int64) (Session, bool) {
	s, ok := ss.st.get(userID)
	if !ok {
		return Session{}, false
	}
	return s.clone(), true
}

// Advance mutates the live session in place. It reports false when none exists.
func (ss *Sessions) Advance(userID int64, fn func(*Session)) bool {
	return ss.st.update(userID, fn)
}

func (ss *Sessions) End(userID int64) { ss.st.del(userID) }

func (ss *Sessions) Len() int { return ss.st.len() }

func (ss *Sessions) Sweep(now time.Time, idle time.Duration) int { return ss.st.sweep(now, idle) }

// Draft is a composed broadcast awaiting send, edit or cancel.
type Draft struct {
	Text     string
	Role     access.Role
	Username string
}

type Drafts struct {
	st *store[Draft]
}

func NewDrafts() *Drafts { return &Drafts{st: newStore[Draft](nil)} }

func NewDraftsWithClock(now func() time.Time) *Drafts {
	return &Drafts{st: newStore[Draft](now)}
}

func (d *Drafts) Set(userID int64, dr Draft) { d.st.put(userID, dr) }

func (d *Drafts) Get(userID int64) (Draft, bool) { return d.st.get(userID) }

func (d *Drafts) Delete(userID int64) { d.st.del(userID) }

func (d *Drafts) Len() int { return d.st.len() }

func (d *Drafts) Sweep(now time.Time, idle time.Duration) int { return d.st.sweep(now, idle) }
