package usecase

import "time"

// NextRetryDelay computes the transient-retry delay after the given attempt:
// base * 2^(attempt-1), capped.
func NextRetryDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if base <= 0 {
		return cap
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap || delay <= 0 {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
