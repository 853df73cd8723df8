package infra

import (
	"math/rand"
	"time"
)

const (
	backoffBase = 1 * time.Second
	backoffMax  = 60 * time.Second
)

// CalculateBackoff returns an exponential reconnect delay for the given
// attempt, capped at one minute, with up to 20% jitter.
func CalculateBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 6 {
		attempt = 6
	}
	d := backoffBase << attempt
	if d > backoffMax {
		d = backoffMax
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5))
	return d + jitter
}
