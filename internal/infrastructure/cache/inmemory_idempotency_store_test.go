package cache

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestInMemoryIdempotencyStore_MarkProcessed(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewInMemoryIdempotencyStore(clock)
	defer store.Close()

	ctx := context.Background()

	t.Run("marks new event as processed", func(t *testing.T) {
		isNew, err := store.MarkProcessed(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("returns false for a redelivery", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "evt_2", time.Hour)
		require.NoError(t, err)

		isNew, err := store.MarkProcessed(ctx, "evt_2", time.Hour)
		require.NoError(t, err)
		assert.False(t, isNew)
	})

	t.Run("allows reprocessing after expiration", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "evt_3", time.Minute)
		require.NoError(t, err)

		clock.Advance(time.Minute)

		isNew, err := store.MarkProcessed(ctx, "evt_3", time.Minute)
		require.NoError(t, err)
		assert.True(t, isNew)
	})

	t.Run("forget allows a retry", func(t *testing.T) {
		_, err := store.MarkProcessed(ctx, "evt_4", time.Hour)
		require.NoError(t, err)
		require.NoError(t, store.Forget(ctx, "evt_4"))

		isNew, err := store.MarkProcessed(ctx, "evt_4", time.Hour)
		require.NoError(t, err)
		assert.True(t, isNew)
	})
}

func TestInMemoryIdempotencyStore_Cleanup(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewInMemoryIdempotencyStore(clock)
	defer store.Close()

	ctx := context.Background()
	_, _ = store.MarkProcessed(ctx, "short-1", time.Minute)
	_, _ = store.MarkProcessed(ctx, "short-2", time.Minute)
	_, _ = store.MarkProcessed(ctx, "long", time.Hour)
	assert.Equal(t, 3, store.Size())

	clock.Advance(2 * time.Minute)
	store.cleanup()

	assert.Equal(t, 1, store.Size())
}

func TestInMemoryIdempotencyStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryIdempotencyStore(nil)
	defer store.Close()

	ctx := context.Background()
	const numGoroutines = 100

	results := make(chan bool, numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			isNew, err := store.MarkProcessed(ctx, "evt_concurrent", time.Hour)
			results <- err == nil && isNew
		}()
	}

	newCount := 0
	for i := 0; i < numGoroutines; i++ {
		if <-results {
			newCount++
		}
	}
	assert.Equal(t, 1, newCount, "exactly one goroutine should mark as new")
}

func TestInMemoryIdempotencyStore_Close(t *testing.T) {
	store := NewInMemoryIdempotencyStore(nil)
	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestInMemoryIdempotencyStore_CloseStopsSweeper(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewInMemoryIdempotencyStore(clock)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1), "sweeper ticker should be running")

	require.NoError(t, store.Close())
	assert.NoError(t, clock.BlockUntilContext(ctx, 0), "sweeper ticker should be stopped")
}

func TestNewIdempotencyStore(t *testing.T) {
	logger := zaptest.NewLogger(t)

	store, err := NewIdempotencyStore(context.Background(), "", "", logger)
	require.NoError(t, err)
	assert.IsType(t, &InMemoryIdempotencyStore{}, store)
	_ = store.Close()

	_, err = NewIdempotencyStore(context.Background(), "::not-a-url", "", logger)
	assert.Error(t, err)
}
