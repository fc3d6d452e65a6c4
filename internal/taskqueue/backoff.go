package taskqueue

import "time"

// RetryDelay computes the deferral before a task's next attempt: the base
// delay doubled per completed attempt, capped at max. The result is
// deterministic so persisted next_run_at values can be reasoned about.
func RetryDelay(attempt int, base, max time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}
	if max > 0 && delay > max {
		return max
	}
	return delay
}
