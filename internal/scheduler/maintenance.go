package scheduler

import (
	"context"
	"time"

	"teacherbot/internal/config"
	"teacherbot/internal/dedup"
	"teacherbot/internal/eventbus"
	"teacherbot/internal/session"
	"teacherbot/pkg/logx"
)

const (
	JobDedupReset   = "dedup.reset"
	JobSessionSweep = "session.sweep"
)

// Swept is the bus payload of TypeSessionsSwept.
type Swept struct {
	Sessions int
	Drafts   int
}

type Maintenance struct {
	Guard    *dedup.Guard
	Sessions *session.Sessions
	Drafts   *session.Drafts
	Bus      eventbus.Bus
	Log      logx.Logger
	Now      func() time.Time
}

// RegisterMaintenance (re)installs the dedup reset and the idle sweep using
// the intervals of cfg. Calling it again after a reload replaces both.
func RegisterMaintenance(s *Service, cfg config.Config, m Maintenance) error {
	if m.Now == nil {
		m.Now = time.Now
	}
	if m.Bus == nil {
		m.Bus = eventbus.Nop()
	}
	if m.Log.IsZero() {
		m.Log = logx.Nop()
	}
	window := cfg.Dedup.Every()
	if err := s.AddSchedule(JobDedupReset, window.String(), 5*time.Second, func(context.Context) error {
		if n := m.Guard.Reset(); n > 0 {
			m.Log.Debug("dedup window reset", logx.Int("keys", n))
		}
		return nil
	}); err != nil {
		return err
	}

	idle := cfg.Session.Idle()
	return s.AddSchedule(JobSessionSweep, cfg.Session.Sweep().String(), 10*time.Second, func(context.Context) error {
		now := m.Now()
		res := Swept{Sessions: m.Sessions.Sweep(now, idle), Drafts: m.Drafts.Sweep(now, idle)}
		if res.Sessions > 0 || res.Drafts > 0 {
			m.Log.Info("idle sessions expired", logx.Int("sessions", res.Sessions), logx.Int("drafts", res.Drafts))
			m.Bus.Publish(eventbus.Event{Type: eventbus.TypeSessionsSwept, Data: res})
		}
		return nil
	})
}

func (s Swept) Total() int { return s.Sessions + s.Drafts }
