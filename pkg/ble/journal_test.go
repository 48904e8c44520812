package ble

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJournal_DrainOldestFirst(t *testing.T) {
	j := newJournal(8)
	j.record(WriteOutcome{Target: LedSet, Size: 1})
	j.record(WriteOutcome{Target: BrightSet, Size: 2, Err: ErrAckTimeout})

	got := j.drain()
	require.Len(t, got, 2)
	assert.Equal(t, LedSet, got[0].Target)
	assert.True(t, got[0].Succeeded())
	assert.Equal(t, BrightSet, got[1].Target)
	assert.False(t, got[1].Succeeded())

	assert.Empty(t, j.drain())
	assert.Zero(t, j.dropped())
}

func TestJournal_EmptyDrain(t *testing.T) {
	j := newJournal(0)
	assert.Empty(t, j.drain())
}
