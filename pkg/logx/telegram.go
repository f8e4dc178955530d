package logx

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"teacherbot/internal/transport"
)

const telegramMaxLen = 3500

// telegramSink forwards warn+ records to an admin chat. It never blocks the
// caller: records are rate limited, queued and dropped when the queue is full.
type telegramSink struct {
	sender transport.Sender

	mu      sync.Mutex
	target  transport.ChatTarget
	min     zerolog.Level
	limiter *rate.Limiter

	queue  chan telegramRecord
	start  sync.Once
	cancel context.CancelFunc
	done   chan struct{}
}

type telegramRecord struct {
	to   transport.ChatTarget
	text string
}

func newTelegramSink(sender transport.Sender) *telegramSink {
	return &telegramSink{
		sender:  sender,
		min:     zerolog.WarnLevel,
		limiter: rate.NewLimiter(1, 1),
		queue:   make(chan telegramRecord, 128),
	}
}

func (t *telegramSink) configure(cfg TelegramConfig) {
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 1
	}
	t.mu.Lock()
	t.target = transport.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	t.min = ParseLevel(cfg.MinLevel, zerolog.WarnLevel)
	t.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	t.mu.Unlock()

	if cfg.Enabled && t.sender != nil {
		t.start.Do(t.run)
	}
}

func (t *telegramSink) run() {
	ctx, cancel := context.WithCancel(context.Background())
	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case rec := <-t.queue:
				sctx, scancel := context.WithTimeout(ctx, 10*time.Second)
				_, _ = t.sender.SendText(sctx, rec.to, rec.text, &transport.SendOptions{DisablePreview: true})
				scancel()
			}
		}
	}()
}

func (t *telegramSink) close() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (t *telegramSink) Write(p []byte) (int, error) {
	return t.WriteLevel(zerolog.InfoLevel, p)
}

func (t *telegramSink) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	t.mu.Lock()
	to, min, lim := t.target, t.min, t.limiter
	t.mu.Unlock()

	if t.sender == nil || to.ChatID == 0 || level < min || !lim.Allow() {
		return len(p), nil
	}
	text := renderRecord(p)
	if text == "" {
		return len(p), nil
	}
	select {
	case t.queue <- telegramRecord{to: to, text: text}:
	default:
	}
	return len(p), nil
}

// renderRecord turns a zerolog JSON line into a compact chat message.
func renderRecord(p []byte) string {
	var m map[string]any
	if err := json.Unmarshal(p, &m); err != nil {
		return clip(strings.TrimSpace(string(p)), telegramMaxLen)
	}

	var b strings.Builder
	if lvl, _ := m["level"].(string); lvl != "" {
		b.WriteString("[" + strings.ToUpper(lvl) + "] ")
	}
	msg, _ := m["message"].(string)
	b.WriteString(msg)

	keys := make([]string, 0, len(m))
	for k := range m {
		switch k {
		case "time", "level", "message":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "\n- %s=%s", k, clip(fmt.Sprint(m[k]), 600))
	}
	return clip(b.String(), telegramMaxLen)
}

func clip(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
