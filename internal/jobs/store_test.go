package jobs

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvcoi/ytdl-web/internal/apperr"
)

func TestStoreCreateAndGet(t *testing.T) {
	s := NewStore()
	rec, err := s.Create("a", "https://example.com/v", "18")
	require.NoError(t, err)
	assert.Equal(t, StatusStarting, rec.Status)
	assert.Zero(t, rec.Progress)
	assert.Empty(t, rec.Error)

	_, err = s.Create("a", "u", "f")
	assert.ErrorIs(t, err, ErrDuplicateJob)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, apperr.Is(err, apperr.CategoryNotFound))
}

func TestStoreUpdateClampsProgress(t *testing.T) {
	s := NewStore()
	_, err := s.Create("a", "u", "f")
	require.NoError(t, err)

	for _, tc := range []struct {
		in, want float64
	}{
		{-5, 0},
		{42.5, 42.5},
		{250, 100},
		{math.NaN(), 0},
	} {
		rec, err := s.Update("a", func(r *Record) { r.Progress = tc.in })
		require.NoError(t, err)
		assert.Equal(t, tc.want, rec.Progress)
	}
}

func TestStoreRejectsUpdatesToTerminalRecords(t *testing.T) {
	s := NewStore()
	_, err := s.Create("a", "u", "f")
	require.NoError(t, err)

	done, err := s.Update("a", func(r *Record) {
		r.Status = StatusError
		r.Error = "boom"
	})
	require.NoError(t, err)
	assert.False(t, done.CompletedAt.IsZero())

	_, err = s.Update("a", func(r *Record) {
		r.Status = StatusDownloading
		r.Progress = 50
	})
	assert.ErrorIs(t, err, ErrTerminal)

	got, err := s.Get("a")
	require.NoError(t, err)
	assert.Equal(t, done, got)

	_, err = s.Update("missing", func(*Record) {})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUpdateCannotChangeID(t *testing.T) {
	s := NewStore()
	_, err := s.Create("a", "u", "f")
	require.NoError(t, err)
	rec, err := s.Update("a", func(r *Record) { r.ID = "b" })
	require.NoError(t, err)
	assert.Equal(t, "a", rec.ID)
}

func TestStoreCounts(t *testing.T) {
	s := NewStore()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Create(id, "u", "f")
		require.NoError(t, err)
	}
	_, err := s.Update("b", func(r *Record) { r.Status = StatusFinished })
	require.NoError(t, err)

	assert.Equal(t, 2, s.ActiveCount())
	assert.Equal(t, 3, s.Len())
}

func TestStoreRemoveExpired(t *testing.T) {
	s := NewStore()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return base }

	for _, id := range []string{"done", "failed", "running"} {
		_, err := s.Create(id, "u", "f")
		require.NoError(t, err)
	}
	_, err := s.Update("done", func(r *Record) { r.Status = StatusFinished })
	require.NoError(t, err)
	_, err = s.Update("failed", func(r *Record) { r.Status = StatusError })
	require.NoError(t, err)

	assert.Zero(t, s.RemoveExpired(base.Add(time.Minute), 5*time.Minute, 10*time.Minute))
	assert.Equal(t, 1, s.RemoveExpired(base.Add(6*time.Minute), 5*time.Minute, 10*time.Minute))
	_, err = s.Get("done")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Zero(t, s.RemoveExpired(base.Add(time.Hour), 5*time.Minute, 0), "zero ttl keeps errored jobs")
	assert.Equal(t, 1, s.RemoveExpired(base.Add(time.Hour), 5*time.Minute, 10*time.Minute))

	_, err = s.Get("running")
	assert.NoError(t, err, "active jobs are never evicted")
}

func TestStoreStartCleanup(t *testing.T) {
	s := NewStore()
	s.now = func() time.Time { return time.Now().Add(-time.Hour) }
	_, err := s.Create("old", "u", "f")
	require.NoError(t, err)
	_, err = s.Update("old", func(r *Record) { r.Status = StatusFinished })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.StartCleanup(ctx, 10*time.Millisecond, time.Minute, time.Minute)

	require.Eventually(t, func() bool { return s.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}
