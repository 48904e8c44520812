package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingChannel_OverwritesOldest(t *testing.T) {
	rc := New[int](3)

	for i := 0; i < 10; i++ {
		rc.Send(i)
	}

	require.Len(t, rc.C(), 3)
	assert.Equal(t, 7, <-rc.C())
	assert.Equal(t, 8, <-rc.C())
	assert.Equal(t, 9, <-rc.C())

	m := rc.GetMetrics()
	assert.Equal(t, int64(10), m.Written)
	assert.Equal(t, int64(7), m.Overwritten)
}

func TestRingChannel_SendAfterClose(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	assert.NotPanics(t, func() { rc.Send(2) })
	assert.Equal(t, int64(1), rc.GetMetrics().Overwritten, "a send after close counts as dropped")

	v, ok := <-rc.C()
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	_, ok = <-rc.C()
	assert.False(t, ok)
}

func TestNew_PanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
