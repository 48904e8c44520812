package ble

import "time"

// maxBackoffShift keeps base<<n from overflowing; the cap is reached long before.
const maxBackoffShift = 20

// backoffDelay returns min(base * 2^attempt, limit).
func backoffDelay(base, limit time.Duration, attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > maxBackoffShift {
		attempt = maxBackoffShift
	}
	d := base << uint(attempt)
	if d > limit || d <= 0 {
		return limit
	}
	return d
}

// backoff counts consecutive failed connection attempts. Owned by the connection loop.
type backoff struct {
	base    time.Duration
	limit   time.Duration
	attempt int
}

// next returns the delay for the current attempt and advances the counter.
func (b *backoff) next() time.Duration {
	d := backoffDelay(b.base, b.limit, b.attempt)
	if b.attempt < maxBackoffShift {
		b.attempt++
	}
	return d
}

func (b *backoff) reset() {
	b.attempt = 0
}
