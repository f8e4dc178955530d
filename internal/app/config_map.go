package app

import (
	"strconv"
	"strings"

	"teacherbot/internal/config"
	"teacherbot/internal/notifier"
	"teacherbot/internal/storage"
	"teacherbot/pkg/logx"
)

// mapLogConfig resolves telegram.group_log into the log sink target.
// A non-numeric or empty group_log leaves the Telegram sink without a chat.
func mapLogConfig(cfg *config.Config) logx.Config {
	var chatID int64
	if g := strings.TrimSpace(cfg.Telegram.GroupLog); g != "" {
		if id, err := strconv.ParseInt(g, 10, 64); err == nil {
			chatID = id
		}
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ChatID:     chatID,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

// mapNotifierConfig parses the notifier section. Zero values fall back to
// the notifier's own defaults.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	n := cfg.EffectiveNotifier()
	base, err := config.ParseDurationField("notifier.retry_base", n.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	maxDelay, err := config.ParseDurationField("notifier.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:       n.Enabled,
		Workers:       n.Workers,
		QueueSize:     n.QueueSize,
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
	}, nil
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = config.DefaultSQLitePath
	}
	return storage.Config{
		Driver:      sc.NormalizedDriver(),
		Path:        path,
		DSN:         sc.DSN,
		BusyTimeout: sc.Busy(),
	}
}
