package config

// Config is the root of config.json / config.yaml.
//
// Durations are Go duration strings ("30s", "5m"). Empty means "use the default".
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	Access       AccessConfig       `json:"access"`
	Registration RegistrationConfig `json:"registration"`
	Broadcast    BroadcastConfig    `json:"broadcast"`
	Session      SessionConfig      `json:"session"`
	Dedup        DedupConfig        `json:"dedup"`
	Router       RouterConfig       `json:"router"`
	Notifier     *NotifierConfig    `json:"notifier,omitempty"`
	Storage      StorageConfig      `json:"storage"`
	Logging      LoggingConfig      `json:"logging"`
	Ops          OpsConfig          `json:"ops"`
	Systemd      SystemdConfig      `json:"systemd"`
}

type TelegramConfig struct {
	// Token may be left empty in the file and supplied via TEACHERBOT_TELEGRAM_TOKEN.
	Token string `json:"token" validate:"required"`
	// ChannelID is the broadcast destination (usually a negative -100… id).
	ChannelID int64 `json:"channel_id" validate:"required,ne=0"`
	// GroupLog is the chat id that receives warn+ log records.
	GroupLog    string `json:"group_log" validate:"omitempty,number"`
	PollTimeout string `json:"poll_timeout"`
}

type AccessConfig struct {
	// UrSuperAdmins is the fixed allow-list. Never persisted.
	UrSuperAdmins []int64 `json:"ur_super_admins" validate:"dive,gt=0"`
}

type RegistrationConfig struct {
	NameMin       int    `json:"name_min" validate:"omitempty,min=1"`
	NameMax       int    `json:"name_max" validate:"omitempty,min=1"`
	NumberPattern string `json:"number_pattern"`
}

type BroadcastConfig struct {
	MaxLength   int    `json:"max_length" validate:"omitempty,min=1,max=4096"`
	SearchLimit int    `json:"search_limit" validate:"omitempty,min=1,max=50"`
	AckLabel    string `json:"ack_label"`
}

type SessionConfig struct {
	IdleTimeout string `json:"idle_timeout"`
	SweepEvery  string `json:"sweep_every"`
}

type DedupConfig struct {
	// Window is how often the seen-set is cleared in full.
	Window string `json:"window"`
}

type RouterConfig struct {
	Workers        int    `json:"workers" validate:"omitempty,min=1,max=256"`
	QueueSize      int    `json:"queue_size" validate:"omitempty,min=1"`
	HandlerTimeout string `json:"handler_timeout"`
}

// NotifierConfig controls the admin fan-out pipeline. Omitted means enabled
// with defaults.
type NotifierConfig struct {
	Enabled       bool   `json:"enabled"`
	Workers       int    `json:"workers" validate:"omitempty,min=1"`
	QueueSize     int    `json:"queue_size" validate:"omitempty,min=1"`
	RatePerSec    int    `json:"rate_per_sec" validate:"omitempty,min=1"`
	RetryMax      int    `json:"retry_max" validate:"min=0"`
	RetryBase     string `json:"retry_base"`
	RetryMaxDelay string `json:"retry_max_delay"`
}

// StorageConfig selects the database.
//
//	"storage": { "driver": "sqlite", "path": "./data/teacher_bot.db" }
//	"storage": { "driver": "postgres", "dsn": "postgres://bot@localhost/bot?sslmode=disable" }
type StorageConfig struct {
	Driver      string `json:"driver" validate:"omitempty,oneof=sqlite sqlite3 postgres"`
	Path        string `json:"path" validate:"required_if=Driver sqlite,required_if=Driver sqlite3"`
	DSN         string `json:"dsn,omitempty" validate:"required_if=Driver postgres"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level" validate:"omitempty,oneof=trace debug info warn warning error TRACE DEBUG INFO WARN WARNING ERROR"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec" validate:"min=0"`
}

// OpsConfig controls the local operations endpoint (/metrics, /healthz and
// optionally /debug/pprof/). Bind to loopback or set a token.
type OpsConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty" validate:"omitempty,hostname_port"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
	ReadTimeout   string `json:"read_timeout,omitempty"`
	IdleTimeout   string `json:"idle_timeout,omitempty"`
}

type SystemdConfig struct {
	// Notify sends READY/STOPPING/WATCHDOG via sd_notify when running under systemd.
	Notify bool `json:"notify"`
}
