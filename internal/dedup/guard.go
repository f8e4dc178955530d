// Package dedup suppresses re-delivered updates. Keys are remembered until
// the next full Reset, which the scheduler triggers on a fixed interval.
package dedup

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

type Guard struct {
	mu   sync.Mutex
	seen map[string]struct{}

	dropped atomic.Uint64
	resets  atomic.Uint64
}

func New() *Guard { return &Guard{seen: make(map[string]struct{})} }

// Seen records key and reports whether it was already recorded since the
// last Reset. An empty key is never considered a duplicate.
func (g *Guard) Seen(key string) bool {
	if key == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.seen[key]; ok {
		g.dropped.Add(1)
		return true
	}
	g.seen[key] = struct{}{}
	return false
}

// Reset forgets every key and returns how many were held.
func (g *Guard) Reset() int {
	g.mu.Lock()
	n := len(g.seen)
	g.seen = make(map[string]struct{}, n)
	g.mu.Unlock()
	g.resets.Add(1)
	return n
}

func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}

func (g *Guard) Dropped() uint64 { return g.dropped.Load() }

// MessageKey is "<messageId>_<chatId>_<unixDate>".
func MessageKey(messageID int, chatID int64, date time.Time) string {
	return fmt.Sprintf("%d_%d_%d", messageID, chatID, date.Unix())
}

// CallbackKey is "<callbackId>_<data>".
func CallbackKey(callbackID, data string) string {
	if callbackID == "" {
		return ""
	}
	return callbackID + "_" + data
}
