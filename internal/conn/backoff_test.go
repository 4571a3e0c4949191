package conn

import (
	"math/rand"
	"testing"
	"time"
)

func TestNextDelayDoublesAndCaps(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	base := time.Second
	max := 8 * time.Second

	for attempt := 1; attempt <= 8; attempt++ {
		got := nextDelay(attempt, base, max, rnd)

		expected := base
		for i := 1; i < attempt; i++ {
			expected *= 2
			if expected >= max {
				expected = max
				break
			}
		}

		lo := time.Duration(float64(expected) * 0.8)
		hi := time.Duration(float64(expected) * 1.2)
		if got < lo || got > hi {
			t.Fatalf("attempt %d: delay %v outside [%v, %v]", attempt, got, lo, hi)
		}
	}
}

func TestNextDelayJitterVaries(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	seen := make(map[time.Duration]struct{})
	for i := 0; i < 16; i++ {
		seen[nextDelay(3, time.Second, time.Minute, rnd)] = struct{}{}
	}
	if len(seen) < 2 {
		t.Fatalf("expected jittered delays to vary, got %d distinct values", len(seen))
	}
}

func TestNextDelayClampsAttempt(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))

	got := nextDelay(0, time.Second, time.Minute, rnd)
	if got < 800*time.Millisecond || got > 1200*time.Millisecond {
		t.Fatalf("attempt 0 should behave like attempt 1, got %v", got)
	}

	// Large attempts must not overflow past the cap.
	got = nextDelay(200, time.Second, time.Minute, rnd)
	if got > time.Duration(float64(time.Minute)*1.2) {
		t.Fatalf("delay %v exceeded jittered cap", got)
	}
}
