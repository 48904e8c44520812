package ble

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	base := 250 * time.Millisecond
	limit := 10 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -1, want: 250 * time.Millisecond},
		{attempt: 0, want: 250 * time.Millisecond},
		{attempt: 1, want: 500 * time.Millisecond},
		{attempt: 2, want: time.Second},
		// attempt 5 is the last doubling (8s); a shift capped at 5 would stop
		// here, while the 10s ceiling is only reached from attempt 6 on
		{attempt: 5, want: 8 * time.Second},
		{attempt: 6, want: 10 * time.Second},
		{attempt: 7, want: 10 * time.Second},
		{attempt: 40, want: 10 * time.Second},
		{attempt: 1000, want: 10 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, backoffDelay(base, limit, tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoff_NextAndReset(t *testing.T) {
	b := backoff{base: 10 * time.Millisecond, limit: 50 * time.Millisecond}

	assert.Equal(t, 10*time.Millisecond, b.next())
	assert.Equal(t, 20*time.Millisecond, b.next())
	assert.Equal(t, 40*time.Millisecond, b.next())
	assert.Equal(t, 50*time.Millisecond, b.next())
	assert.Equal(t, 50*time.Millisecond, b.next())

	b.reset()
	assert.Equal(t, 10*time.Millisecond, b.next())
}
