package config

import (
	"reflect"
	"strings"

	"teacherbot/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs plus
// log fields describing the new values. Secrets are reported only as "set".
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)
	mark := func(section string, f ...logx.Field) {
		changed = append(changed, section)
		fields = append(fields, f...)
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if ot.Token != nt.Token || ot.ChannelID != nt.ChannelID ||
		strings.TrimSpace(ot.GroupLog) != strings.TrimSpace(nt.GroupLog) ||
		strings.TrimSpace(ot.PollTimeout) != strings.TrimSpace(nt.PollTimeout) {
		mark("telegram",
			logx.Bool("telegram.token_changed", ot.Token != nt.Token),
			logx.Int64("telegram.channel_id", nt.ChannelID),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(nt.GroupLog) != ""),
		)
	}
	if !reflect.DeepEqual(oldCfg.Access.UrSuperAdmins, newCfg.Access.UrSuperAdmins) {
		mark("access", logx.Int("access.ur_super_admins", len(newCfg.Access.UrSuperAdmins)))
	}
	if oldCfg.Registration != newCfg.Registration {
		lo, hi := newCfg.Registration.Bounds()
		mark("registration", logx.Int("registration.name_min", lo), logx.Int("registration.name_max", hi))
	}
	if oldCfg.Broadcast != newCfg.Broadcast {
		mark("broadcast", logx.Int("broadcast.max_length", newCfg.Broadcast.Max()))
	}
	if oldCfg.Session != newCfg.Session {
		mark("session", logx.Duration("session.idle", newCfg.Session.Idle()))
	}
	if oldCfg.Dedup != newCfg.Dedup {
		mark("dedup", logx.Duration("dedup.window", newCfg.Dedup.Every()))
	}
	if oldCfg.Router != newCfg.Router {
		mark("router", logx.Int("router.workers", newCfg.Router.Workers))
	}
	if oldCfg.EffectiveNotifier() != newCfg.EffectiveNotifier() {
		n := newCfg.EffectiveNotifier()
		mark("notifier", logx.Bool("notifier.enabled", n.Enabled), logx.Int("notifier.workers", n.Workers))
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", logx.String("storage.driver", newCfg.Storage.NormalizedDriver()))
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging",
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if oldCfg.Ops != newCfg.Ops {
		mark("ops",
			logx.Bool("ops.enabled", newCfg.Ops.Enabled),
			logx.String("ops.addr", newCfg.Ops.Addr),
			logx.Bool("ops.token_set", newCfg.Ops.Token != ""),
		)
	}
	if oldCfg.Systemd != newCfg.Systemd {
		mark("systemd", logx.Bool("systemd.notify", newCfg.Systemd.Notify))
	}
	return changed, fields
}

// RequiresRestart reports sections that cannot be applied to a running process.
func RequiresRestart(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case "telegram", "storage", "router":
			out = append(out, s)
		}
	}
	return out
}
