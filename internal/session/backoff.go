package session

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 500 * time.Millisecond
	backoffCap  = 30 * time.Second
)

// backoff returns the sleep before reconnect attempt n (0-based), using full
// jitter over an exponential ceiling: random in [0, min(2^n * 500ms, 30s)].
func backoff(n int) time.Duration {
	ceiling := backoffCap
	if n < 6 {
		// 2^6 * 500ms already exceeds the cap.
		ceiling = backoffBase << uint(n)
		if ceiling > backoffCap {
			ceiling = backoffCap
		}
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}
