package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teacherbot/internal/config"
)

func TestMapLogConfigResolvesGroupLog(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.GroupLog = " -100123 "
	cfg.Logging.Level = "debug"
	cfg.Logging.Telegram.Enabled = true
	cfg.Logging.Telegram.ThreadID = 7

	lc := mapLogConfig(cfg)
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, int64(-100123), lc.Telegram.ChatID)
	assert.Equal(t, 7, lc.Telegram.ThreadID)
	assert.True(t, lc.Telegram.Enabled)

	cfg.Telegram.GroupLog = "not-a-chat"
	assert.Zero(t, mapLogConfig(cfg).Telegram.ChatID)
}

func TestMapNotifierConfig(t *testing.T) {
	nc, err := mapNotifierConfig(&config.Config{})
	require.NoError(t, err)
	assert.True(t, nc.Enabled)
	assert.Equal(t, 3, nc.RetryMax)

	nc, err = mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{
		Enabled:       true,
		Workers:       4,
		RetryBase:     "250ms",
		RetryMaxDelay: "5s",
	}})
	require.NoError(t, err)
	assert.Equal(t, 4, nc.Workers)
	assert.Equal(t, 250*time.Millisecond, nc.RetryBase)
	assert.Equal(t, 5*time.Second, nc.RetryMaxDelay)

	_, err = mapNotifierConfig(&config.Config{Notifier: &config.NotifierConfig{RetryBase: "soon"}})
	assert.Error(t, err)
}

func TestMapStorageConfigNormalizesDriver(t *testing.T) {
	cfg := &config.Config{Storage: config.StorageConfig{Driver: "PG", DSN: "postgres://x"}}
	sc := mapStorageConfig(cfg)
	assert.Equal(t, "postgres", sc.Driver)
	assert.Equal(t, 5*time.Second, sc.BusyTimeout)

	def := mapStorageConfig(&config.Config{})
	assert.Equal(t, "sqlite", def.Driver)
	assert.Equal(t, config.DefaultSQLitePath, def.Path)
}
