package ble

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadinessGate_Resolve(t *testing.T) {
	g := newReadinessGate()
	assert.False(t, g.isReady())

	done := make(chan error, 1)
	go func() { done <- g.wait(context.Background()) }()

	require.True(t, g.resolve())
	assert.False(t, g.resolve(), "second resolve is a no-op")
	assert.True(t, g.isReady())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by resolve")
	}
}

func TestReadinessGate_PoisonReleasesWaiters(t *testing.T) {
	g := newReadinessGate()

	done := make(chan error, 1)
	go func() { done <- g.wait(context.Background()) }()

	require.True(t, g.poison("link lost"))
	assert.False(t, g.poison("again"))
	assert.False(t, g.resolve(), "a poisoned gate never becomes ready")

	select {
	case err := <-done:
		var poisoned *errGatePoisoned
		require.True(t, errors.As(err, &poisoned))
		assert.Equal(t, "link lost", poisoned.reason)
	case <-time.After(time.Second):
		t.Fatal("waiter not released by poison")
	}

	select {
	case <-g.Poisoned():
	default:
		t.Fatal("Poisoned channel should be closed")
	}

	state, reason := g.status()
	assert.Equal(t, gatePoisoned, state)
	assert.Equal(t, "link lost", reason)
	assert.Equal(t, "Poisoned", state.String())
}

func TestReadinessGate_PoisonAfterReady(t *testing.T) {
	g := newReadinessGate()
	require.True(t, g.resolve())
	require.True(t, g.poison("write timeout"))

	assert.False(t, g.isReady())
	err := g.wait(context.Background())
	assert.ErrorContains(t, err, "write timeout")
}

func TestReadinessGate_WaitHonorsContext(t *testing.T) {
	g := newReadinessGate()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := g.wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
