package session

import (
	"sync"
	"testing"
	"time"

	"teacherbot/internal/access"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func TestBeginReplacesPriorSession(t *testing.T) {
	ss := NewSessions()
	ss.Begin(1, Session{Kind: KindCompose})
	ss.Begin(1, Session{Kind: KindRegistration, Step: 1})

	if ss.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", ss.Len())
	}
	s, ok := ss.Get(1)
	if !ok || s.Kind != KindRegistration || s.Step != 1 {
		t.Fatalf("Get() = %+v, %v", s, ok)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	ss := NewSessions()
	ss.Begin(1, Session{Kind: KindSearch, Results: []int64{10, 11}})

	s, _ := ss.Get(1)
	s.Results[0] = 99
	s.Set("term", "x")

	again, _ := ss.Get(1)
	if again.Results[0] != 10 || again.Field("term") != "" {
		t.Fatalf("stored session mutated through copy: %+v", again)
	}
}

func TestAdvanceAndEnd(t *testing.T) {
	ss := NewSessions()
	if ss.Advance(1, func(*Session) {}) {
		t.Fatal("Advance on missing session reported true")
	}
	ss.Begin(1, Session{Kind: KindRegistration, Step: 1, Role: access.None})
	ok := ss.Advance(1, func(s *Session) {
		s.Step = 2
		s.Set("teacher_id", "ID_34")
	})
	if !ok {
		t.Fatal("Advance returned false")
	}
	s, _ := ss.Get(1)
	if s.Step != 2 || s.Field("teacher_id") != "ID_34" {
		t.Fatalf("unexpected session: %+v", s)
	}
	ss.End(1)
	if _, ok := ss.Get(1); ok {
		t.Fatal("session still present after End")
	}
}

func TestSweepExpiresIdle(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	ss := NewSessionsWithClock(c.now)
	ds := NewDraftsWithClock(c.now)

	ss.Begin(1, Session{Kind: KindCompose})
	ds.Set(1, Draft{Text: "hi"})
	c.advance(20 * time.Minute)
	ss.Begin(2, Session{Kind: KindSearch})
	c.advance(15 * time.Minute)

	if n := ss.Sweep(c.now(), 30*time.Minute); n != 1 {
		t.Fatalf("Sweep removed %d sessions, want 1", n)
	}
	if _, ok := ss.Get(2); !ok {
		t.Fatal("fresh session was swept")
	}
	if n := ds.Sweep(c.now(), 30*time.Minute); n != 1 || ds.Len() != 0 {
		t.Fatalf("draft sweep removed %d, len %d", n, ds.Len())
	}
}

func TestGetRefreshesIdleTimer(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	ss := NewSessionsWithClock(c.now)
	ss.Begin(1, Session{Kind: KindCompose})
	c.advance(25 * time.Minute)
	ss.Get(1)
	c.advance(25 * time.Minute)
	if n := ss.Sweep(c.now(), 30*time.Minute); n != 0 {
		t.Fatalf("touched session swept")
	}
}

func TestDraftIndependentOfSession(t *testing.T) {
	ss := NewSessions()
	ds := NewDrafts()
	ds.Set(1, Draft{Text: "Konferenz"})
	ss.Begin(1, Session{Kind: KindCompose})
	ss.End(1)
	if d, ok := ds.Get(1); !ok || d.Text != "Konferenz" {
		t.Fatalf("draft lost: %+v %v", d, ok)
	}
	ds.Delete(1)
	if _, ok := ds.Get(1); ok {
		t.Fatal("draft still present")
	}
}
