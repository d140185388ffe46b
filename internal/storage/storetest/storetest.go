// Package storetest holds the behavioural suite shared by every
// storage.Store implementation.
package storetest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vanishbin/internal/storage"
)

// Opener returns a fresh, empty store for a single subtest.
type Opener func(t *testing.T) storage.Store

// Run exercises the storage.Store contract against stores returned by open.
func Run(t *testing.T, open Opener) {
	t.Helper()

	t.Run("CreateGet", func(t *testing.T) { testCreateGet(t, open(t)) })
	t.Run("OptionalFieldsRoundTrip", func(t *testing.T) { testOptionalFields(t, open(t)) })
	t.Run("DuplicateID", func(t *testing.T) { testDuplicateID(t, open(t)) })
	t.Run("NotFound", func(t *testing.T) { testNotFound(t, open(t)) })
	t.Run("UpdateDeadline", func(t *testing.T) { testUpdateDeadline(t, open(t)) })
	t.Run("IncrementViewsUnbounded", func(t *testing.T) { testIncrementUnbounded(t, open(t)) })
	t.Run("IncrementViewsLimit", func(t *testing.T) { testIncrementLimit(t, open(t)) })
	t.Run("IncrementViewsConcurrent", func(t *testing.T) { testIncrementConcurrent(t, open(t)) })
	t.Run("Ping", func(t *testing.T) { testPing(t, open(t)) })
}

// Sample returns a paste with millisecond-precision timestamps, which every
// backend round-trips exactly.
func Sample(id string) *storage.Paste {
	return &storage.Paste{
		ID:         id,
		Content:    "hello <world>\nsecond line",
		TTLSeconds: 60,
		MaxViews:   3,
		CreatedAt:  time.Date(2025, 3, 14, 15, 9, 26, 535_000_000, time.UTC),
	}
}

func testCreateGet(t *testing.T, s storage.Store) {
	ctx := context.Background()
	in := Sample("abc123")
	require.NoError(t, s.Create(ctx, in))

	out, err := s.Get(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Content, out.Content)
	assert.Equal(t, 60, out.TTLSeconds)
	assert.Equal(t, 3, out.MaxViews)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt), "created_at %v != %v", in.CreatedAt, out.CreatedAt)
	assert.False(t, out.HasExpiration())
	assert.Zero(t, out.Views)
}

func testOptionalFields(t *testing.T, s storage.Store) {
	ctx := context.Background()
	in := &storage.Paste{
		ID:        "immortal",
		Content:   "forever",
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, s.Create(ctx, in))

	out, err := s.Get(ctx, "immortal")
	require.NoError(t, err)
	assert.False(t, out.HasTTL())
	assert.False(t, out.HasViewLimit())
	assert.False(t, out.HasExpiration())
}

func testDuplicateID(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, Sample("dup")))

	other := Sample("dup")
	other.Content = "replacement"
	err := s.Create(ctx, other)
	require.ErrorIs(t, err, storage.ErrDuplicateID)

	out, err := s.Get(ctx, "dup")
	require.NoError(t, err)
	assert.Equal(t, Sample("dup").Content, out.Content, "original paste must survive a collision")
}

func testNotFound(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = s.UpdateDeadline(ctx, "missing", time.Now())
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.IncrementViews(ctx, "missing", 0)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUpdateDeadline(t *testing.T, s storage.Store) {
	ctx := context.Background()
	in := Sample("deadline")
	require.NoError(t, s.Create(ctx, in))

	first := in.CreatedAt.Add(90 * time.Second)
	require.NoError(t, s.UpdateDeadline(ctx, "deadline", first))
	out, err := s.Get(ctx, "deadline")
	require.NoError(t, err)
	assert.True(t, first.Equal(out.ExpiresAt), "expires_at %v != %v", first, out.ExpiresAt)

	// Overwrites are unconditional, even when moving the deadline backwards.
	second := in.CreatedAt.Add(30 * time.Second)
	require.NoError(t, s.UpdateDeadline(ctx, "deadline", second))
	out, err = s.Get(ctx, "deadline")
	require.NoError(t, err)
	assert.True(t, second.Equal(out.ExpiresAt), "expires_at %v != %v", second, out.ExpiresAt)
	assert.Equal(t, in.Content, out.Content)
}

func testIncrementUnbounded(t *testing.T, s storage.Store) {
	ctx := context.Background()
	in := Sample("unbounded")
	in.MaxViews = 0
	require.NoError(t, s.Create(ctx, in))

	for want := 1; want <= 5; want++ {
		got, err := s.IncrementViews(ctx, "unbounded", 0)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	out, err := s.Get(ctx, "unbounded")
	require.NoError(t, err)
	assert.Equal(t, 5, out.Views)
}

func testIncrementLimit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, Sample("limited")))

	for want := 1; want <= 3; want++ {
		got, err := s.IncrementViews(ctx, "limited", 3)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := s.IncrementViews(ctx, "limited", 3)
	require.ErrorIs(t, err, storage.ErrViewLimitReached)

	out, err := s.Get(ctx, "limited")
	require.NoError(t, err)
	assert.Equal(t, 3, out.Views, "a refused increment must not change the counter")
}

func testIncrementConcurrent(t *testing.T, s storage.Store) {
	ctx := context.Background()
	in := Sample("race")
	in.MaxViews = 5
	require.NoError(t, s.Create(ctx, in))

	const workers = 16
	var (
		wg       sync.WaitGroup
		served   atomic.Int32
		refused  atomic.Int32
		failures = make(chan error, workers)
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementViews(ctx, "race", 5)
			switch {
			case err == nil:
				served.Add(1)
			case errors.Is(err, storage.ErrViewLimitReached):
				refused.Add(1)
			default:
				failures <- err
			}
		}()
	}
	wg.Wait()
	close(failures)
	for err := range failures {
		t.Errorf("unexpected increment error: %v", err)
	}

	assert.EqualValues(t, 5, served.Load())
	assert.EqualValues(t, workers-5, refused.Load())
	out, err := s.Get(ctx, "race")
	require.NoError(t, err)
	assert.Equal(t, 5, out.Views)
}

func testPing(t *testing.T, s storage.Store) {
	assert.NoError(t, s.Ping(context.Background()))
}
