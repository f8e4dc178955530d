package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"teacherbot/internal/transport"
)

func TestLoggerWithStampsFields(t *testing.T) {
	var buf bytes.Buffer
	log := FromZerolog(zerolog.New(&buf)).With(String("comp", "test"))
	log.Info("hello", Int64("user_id", 42))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode: %v (%q)", err, buf.String())
	}
	if rec["comp"] != "test" || rec["message"] != "hello" {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["user_id"] != float64(42) {
		t.Fatalf("user_id = %v", rec["user_id"])
	}
	if c, _ := rec["caller"].(string); !strings.HasPrefix(c, "logx_test.go:") {
		t.Fatalf("caller = %q", c)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero logger should report IsZero")
	}
	l.Error("nothing happens", Err(nil))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	cases := map[string]zerolog.Level{
		"debug":   zerolog.DebugLevel,
		" WARN ":  zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		"error":   zerolog.ErrorLevel,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in, zerolog.InfoLevel); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRenderRecord(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"warn","message":"send failed","time":"x","b":2,"a":"one"}`)
	got := renderRecord(line)
	want := "[WARN] send failed\n- a=one\n- b=2"
	if got != want {
		t.Fatalf("renderRecord = %q, want %q", got, want)
	}
}

type captureSender struct {
	mu    sync.Mutex
	texts []string
	got   chan struct{}
}

func (c *captureSender) SendText(_ context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	c.mu.Lock()
	c.texts = append(c.texts, text)
	c.mu.Unlock()
	select {
	case c.got <- struct{}{}:
	default:
	}
	return transport.MessageRef{}, nil
}

func TestTelegramSinkForwardsWarnings(t *testing.T) {
	cs := &captureSender{got: make(chan struct{}, 4)}
	svc, log := New(Config{
		Level:    "debug",
		Telegram: TelegramConfig{Enabled: true, ChatID: -100, MinLevel: "warn", RatePerSec: 10},
	}, cs)
	defer svc.Close()

	log.Info("ignored")
	log.Warn("disk almost full", String("path", "/data"))

	select {
	case <-cs.got:
	case <-time.After(2 * time.Second):
		t.Fatal("telegram sink did not deliver")
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if len(cs.texts) != 1 || !strings.Contains(cs.texts[0], "disk almost full") {
		t.Fatalf("unexpected deliveries: %q", cs.texts)
	}
}
