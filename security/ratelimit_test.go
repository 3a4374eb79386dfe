package security

import (
	"fmt"
	"testing"
	"time"
)

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("allows within burst", func(t *testing.T) {
		rl := NewRateLimiter(10, 5, nil)
		defer rl.Stop()

		for i := 0; i < 5; i++ {
			if !rl.Allow("1.2.3.4") {
				t.Errorf("request %d should be allowed within burst", i)
			}
		}
	})

	t.Run("denies beyond burst", func(t *testing.T) {
		rl := NewRateLimiter(1, 2, nil)
		defer rl.Stop()

		rl.Allow("1.2.3.4")
		rl.Allow("1.2.3.4")
		if rl.Allow("1.2.3.4") {
			t.Error("third immediate request should be denied")
		}
	})

	t.Run("separate buckets per identifier", func(t *testing.T) {
		rl := NewRateLimiter(1, 1, nil)
		defer rl.Stop()

		if !rl.Allow("1.2.3.4") {
			t.Error("first client should be allowed")
		}
		if rl.Allow("1.2.3.4") {
			t.Error("first client burst is exhausted")
		}
		if !rl.Allow("5.6.7.8") {
			t.Error("second client has its own bucket")
		}
	})

	t.Run("refills over time", func(t *testing.T) {
		rl := NewRateLimiter(100, 1, nil)
		defer rl.Stop()

		rl.Allow("1.2.3.4")
		time.Sleep(50 * time.Millisecond) // 100/s refills well within this
		if !rl.Allow("1.2.3.4") {
			t.Error("bucket should have refilled")
		}
	})
}

func TestRateLimiter_LRUEviction(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 10, 3, nil)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		rl.Allow(fmt.Sprintf("ip-%d", i))
	}
	if rl.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", rl.Len())
	}

	// ip-0 becomes most recent; ip-1 is now LRU.
	rl.Allow("ip-0")
	rl.Allow("ip-new")

	if rl.Len() != 3 {
		t.Errorf("Len() = %d after eviction, want 3", rl.Len())
	}

	rl.mu.RLock()
	_, has0 := rl.limiters["ip-0"]
	_, has1 := rl.limiters["ip-1"]
	_, hasNew := rl.limiters["ip-new"]
	rl.mu.RUnlock()

	if !has0 || !hasNew {
		t.Error("recently used entries should survive eviction")
	}
	if has1 {
		t.Error("least recently used entry should have been evicted")
	}
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl := NewRateLimiter(10, 10, nil)
	defer rl.Stop()

	rl.Allow("1.2.3.4")
	rl.Allow("5.6.7.8")
	if rl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rl.Len())
	}

	// Everything is younger than an hour: nothing removed.
	rl.Cleanup(time.Hour)
	if rl.Len() != 2 {
		t.Errorf("Len() = %d after no-op cleanup, want 2", rl.Len())
	}

	// Zero idle tolerance: everything removed.
	time.Sleep(time.Millisecond)
	rl.Cleanup(0)
	if rl.Len() != 0 {
		t.Errorf("Len() = %d after cleanup, want 0", rl.Len())
	}
}

func TestRateLimiter_UnlimitedEntries(t *testing.T) {
	rl := NewRateLimiterWithConfig(10, 10, 0, nil)
	defer rl.Stop()

	for i := 0; i < 100; i++ {
		rl.Allow(fmt.Sprintf("ip-%d", i))
	}
	if rl.Len() != 100 {
		t.Errorf("Len() = %d, want 100 with no cap", rl.Len())
	}
}
