package config

import (
	"regexp"
	"strings"
	"time"
)

const (
	DefaultPollTimeout    = 10 * time.Second
	DefaultIdleTimeout    = 30 * time.Minute
	DefaultSweepEvery     = time.Minute
	DefaultDedupWindow    = 30 * time.Second
	DefaultHandlerTimeout = 30 * time.Second
	DefaultNameMin        = 2
	DefaultNameMax        = 50
	DefaultMaxLength      = 4000
	DefaultSearchLimit    = 10
	DefaultAckLabel       = "✅ Gelesen"
	DefaultSQLitePath     = "./data/teacher_bot.db"
	DefaultOpsAddr        = "127.0.0.1:9090"
)

// DefaultNumberPattern is digits only; the teacher id becomes "ID_" + digits.
var DefaultNumberPattern = regexp.MustCompile(`^\d+$`)

func (t TelegramConfig) Poll() time.Duration { return durationOr(t.PollTimeout, DefaultPollTimeout) }

func (s SessionConfig) Idle() time.Duration  { return durationOr(s.IdleTimeout, DefaultIdleTimeout) }
func (s SessionConfig) Sweep() time.Duration { return durationOr(s.SweepEvery, DefaultSweepEvery) }

func (d DedupConfig) Every() time.Duration { return durationOr(d.Window, DefaultDedupWindow) }

func (r RouterConfig) Timeout() time.Duration {
	return durationOr(r.HandlerTimeout, DefaultHandlerTimeout)
}

func (r RegistrationConfig) Bounds() (lo, hi int) {
	lo, hi = r.NameMin, r.NameMax
	if lo <= 0 {
		lo = DefaultNameMin
	}
	if hi <= 0 {
		hi = DefaultNameMax
	}
	return lo, hi
}

// Pattern falls back to DefaultNumberPattern when unset or invalid.
func (r RegistrationConfig) Pattern() *regexp.Regexp {
	p := strings.TrimSpace(r.NumberPattern)
	if p == "" {
		return DefaultNumberPattern
	}
	re, err := regexp.Compile(p)
	if err != nil {
		return DefaultNumberPattern
	}
	return re
}

func (b BroadcastConfig) Max() int {
	if b.MaxLength <= 0 {
		return DefaultMaxLength
	}
	return b.MaxLength
}

func (b BroadcastConfig) Limit() int {
	if b.SearchLimit <= 0 {
		return DefaultSearchLimit
	}
	return b.SearchLimit
}

func (b BroadcastConfig) Label() string {
	if s := strings.TrimSpace(b.AckLabel); s != "" {
		return s
	}
	return DefaultAckLabel
}

// NormalizedDriver maps aliases to "sqlite" or "postgres".
func (s StorageConfig) NormalizedDriver() string {
	switch strings.ToLower(strings.TrimSpace(s.Driver)) {
	case "postgres", "postgresql", "pg":
		return "postgres"
	default:
		return "sqlite"
	}
}

func (s StorageConfig) Busy() time.Duration { return durationOr(s.BusyTimeout, 5*time.Second) }

// EffectiveNotifier returns the notifier section with an omitted block meaning
// "enabled with defaults".
func (c *Config) EffectiveNotifier() NotifierConfig {
	if c == nil || c.Notifier == nil {
		return NotifierConfig{Enabled: true, RetryMax: 3}
	}
	return *c.Notifier
}

func (o OpsConfig) ListenAddr() string {
	if a := strings.TrimSpace(o.Addr); a != "" {
		return a
	}
	return DefaultOpsAddr
}

func (o OpsConfig) Read() time.Duration { return durationOr(o.ReadTimeout, 10*time.Second) }
func (o OpsConfig) Idle() time.Duration { return durationOr(o.IdleTimeout, time.Minute) }
