package config

import (
	"errors"
	"io/fs"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvToken     = "TEACHERBOT_TELEGRAM_TOKEN"
	EnvChannelID = "TEACHERBOT_CHANNEL_ID"
	EnvStorage   = "TEACHERBOT_STORAGE_DSN"
	EnvOpsToken  = "TEACHERBOT_OPS_TOKEN"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overwriting variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// ApplyEnv overlays secrets from the environment. Non-empty values win over the file.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil || getenv == nil {
		return
	}
	if v := strings.TrimSpace(getenv(EnvToken)); v != "" {
		cfg.Telegram.Token = v
	}
	if v := strings.TrimSpace(getenv(EnvChannelID)); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.ChannelID = id
		}
	}
	if v := strings.TrimSpace(getenv(EnvStorage)); v != "" {
		if cfg.Storage.Driver == "postgres" {
			cfg.Storage.DSN = v
		} else {
			cfg.Storage.Path = v
		}
	}
	if v := strings.TrimSpace(getenv(EnvOpsToken)); v != "" {
		cfg.Ops.Token = v
	}
}
