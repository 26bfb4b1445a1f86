package poller

import "time"

// backoff counts consecutive failed ticks. Reaching the threshold buys one
// cool-down sleep and starts the count over; there is no escalation.
type backoff struct {
	threshold int
	interval  time.Duration
	coolDown  time.Duration
	failures  int
}

func newBackoff(threshold int, interval, coolDown time.Duration) *backoff {
	if threshold < 1 {
		threshold = 1
	}
	return &backoff{
		threshold: threshold,
		interval:  interval,
		coolDown:  coolDown,
	}
}

// next records the outcome of a tick and returns the pause before the next one
func (b *backoff) next(ok bool) (delay time.Duration, coolingDown bool) {
	if ok {
		b.failures = 0
		return b.interval, false
	}
	b.failures++
	if b.failures >= b.threshold {
		b.failures = 0
		return b.coolDown, true
	}
	return b.interval, false
}
