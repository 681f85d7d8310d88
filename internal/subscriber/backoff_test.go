package subscriber

import (
	"testing"
	"time"
)

func TestBackoffGrowsAndCaps(t *testing.T) {
	b := NewBackoff(time.Second, 8*time.Second, 2.0)

	prevMax := time.Duration(0)
	for i := 0; i < 10; i++ {
		wait := b.Next()
		if wait < time.Second {
			t.Fatalf("attempt %d: wait %v below floor", i, wait)
		}
		// Cap plus the 20% jitter headroom.
		if wait > 8*time.Second+8*time.Second/5 {
			t.Fatalf("attempt %d: wait %v above cap", i, wait)
		}
		if wait > prevMax {
			prevMax = wait
		}
	}
	if b.Attempts() != 10 {
		t.Fatalf("attempts = %d, want 10", b.Attempts())
	}
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 2.0)
	for i := 0; i < 5; i++ {
		b.Next()
	}
	b.Reset()
	if b.Attempts() != 0 {
		t.Fatalf("attempts after reset = %d", b.Attempts())
	}
	// After a reset the next delay starts over from the floor.
	if wait := b.Next(); wait > time.Second+time.Second/5 {
		t.Fatalf("post-reset wait %v, want near %v", wait, time.Second)
	}
}
