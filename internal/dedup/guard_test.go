package dedup

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSeenSuppressesUntilReset(t *testing.T) {
	g := New()
	key := MessageKey(10, -100, time.Unix(1700000000, 0))
	if key != "10_-100_1700000000" {
		t.Fatalf("MessageKey = %q", key)
	}
	if g.Seen(key) {
		t.Fatal("first delivery reported as duplicate")
	}
	if !g.Seen(key) {
		t.Fatal("replay not suppressed")
	}
	if n := g.Reset(); n != 1 {
		t.Fatalf("Reset() = %d, want 1", n)
	}
	if g.Seen(key) {
		t.Fatal("key still suppressed after reset")
	}
	if g.Dropped() != 1 {
		t.Fatalf("Dropped() = %d", g.Dropped())
	}
}

func TestConcurrentReplayHasOneWinner(t *testing.T) {
	g := New()
	key := CallbackKey("cb1", "draft:send")
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !g.Seen(key) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("winners = %d, want 1", wins.Load())
	}
}

func TestEmptyKeyIsNeverDuplicate(t *testing.T) {
	g := New()
	if g.Seen("") || g.Seen("") {
		t.Fatal("empty key suppressed")
	}
	if CallbackKey("", "x") != "" {
		t.Fatal("CallbackKey without id should be empty")
	}
}
