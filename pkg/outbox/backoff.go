package outbox

import "time"

// BackoffDelay computes the exponential delay before the next publish
// attempt: initial doubled per completed retry, capped at max. retryCount
// is the number of attempts already failed, so the first retry waits the
// initial delay.
func BackoffDelay(initial, max time.Duration, retryCount int) time.Duration {
	if initial <= 0 {
		return 0
	}
	if max > 0 && initial > max {
		return max
	}
	delay := initial
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	return delay
}
