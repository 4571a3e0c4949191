package conn

import (
	"math/rand"
	"time"
)

// nextDelay computes the reconnect delay for the given 1-based attempt:
// exponential doubling from base, capped at max, with ±20% jitter so retry
// storms from many clients do not synchronize.
func nextDelay(attempt int, base, max time.Duration, rnd *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= max {
			d = max
			break
		}
	}
	if d > max {
		d = max
	}

	factor := 0.8 + 0.4*rnd.Float64()
	return time.Duration(float64(d) * factor)
}
