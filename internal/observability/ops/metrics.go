package ops

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"teacherbot/internal/eventbus"
)

// Gauges are sampled at scrape time. Nil funcs are skipped.
type Gauges struct {
	Sessions  func() int
	Drafts    func() int
	DedupKeys func() int
}

type Metrics struct {
	reg *prometheus.Registry

	broadcasts    *prometheus.CounterVec
	acks          prometheus.Counter
	registrations prometheus.Counter
	duplicates    prometheus.Counter
	notify        *prometheus.CounterVec
	expired       prometheus.Counter
}

func NewMetrics(g Gauges) *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teacherbot_broadcasts_total",
			Help: "Channel broadcasts by result.",
		}, []string{"result"}),
		acks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teacherbot_acknowledgements_total",
			Help: "Read confirmations recorded (repeats included).",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teacherbot_registrations_total",
			Help: "Teachers registered.",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teacherbot_duplicate_updates_total",
			Help: "Updates dropped by the dedup window.",
		}),
		notify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teacherbot_notifications_total",
			Help: "Admin notifications by result.",
		}, []string{"result"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "teacherbot_sessions_expired_total",
			Help: "Sessions and drafts removed by the idle sweep.",
		}),
	}
	m.reg.MustRegister(m.broadcasts, m.acks, m.registrations, m.duplicates, m.notify, m.expired,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	gauge := func(name, help string, fn func() int) {
		if fn == nil {
			return
		}
		m.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help},
			func() float64 { return float64(fn()) }))
	}
	gauge("teacherbot_sessions_active", "Open multi-step sessions.", g.Sessions)
	gauge("teacherbot_drafts_pending", "Composed drafts awaiting send.", g.Drafts)
	gauge("teacherbot_dedup_keys", "Keys in the current dedup window.", g.DedupKeys)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// sweptCounts is satisfied by the scheduler's sweep payload.
type sweptCounts interface{ Total() int }

// Observe folds one bus event into the counters.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TypeBroadcastPublished:
		m.broadcasts.WithLabelValues("ok").Inc()
	case eventbus.TypeBroadcastFailed:
		m.broadcasts.WithLabelValues("failed").Inc()
	case eventbus.TypeBroadcastAcknowledged:
		m.acks.Inc()
	case eventbus.TypeTeacherRegistered:
		m.registrations.Inc()
	case eventbus.TypeUpdateDuplicate:
		m.duplicates.Inc()
	case eventbus.TypeNotifySent:
		m.notify.WithLabelValues("ok").Inc()
	case eventbus.TypeNotifyFailed:
		m.notify.WithLabelValues("failed").Inc()
	case eventbus.TypeSessionsSwept:
		if s, ok := ev.Data.(sweptCounts); ok {
			m.expired.Add(float64(s.Total()))
		}
	}
}

// Consume feeds bus events into Observe until ctx ends.
func (m *Metrics) Consume(ctx context.Context, bus eventbus.Bus) {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			m.Observe(ev)
		}
	}
}
