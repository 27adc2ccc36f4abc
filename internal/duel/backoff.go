package duel

import (
	"math/rand"
	"time"
)

// backoffDelay returns a full-jitter exponential delay for the given attempt
// (1-based): a uniform draw from [0, min(ceil, base*2^(attempt-1))].
func backoffDelay(attempt int, base, ceil time.Duration, rnd *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceil {
			d = ceil
			break
		}
	}
	if d > ceil {
		d = ceil
	}
	if d <= 0 {
		return 0
	}
	return time.Duration(rnd.Int63n(int64(d) + 1))
}
