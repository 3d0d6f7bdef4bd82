package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ownlytics/mcptix-sub000/internal/persistence"
	"github.com/ownlytics/mcptix-sub000/internal/testfixtures"
)

type countingRenormalizer struct {
	calls atomic.Int32
	err   error
}

func (r *countingRenormalizer) RenormalizeCrowded(context.Context) (map[persistence.Status]int, error) {
	r.calls.Add(1)
	if r.err != nil {
		return nil, r.err
	}
	return map[persistence.Status]int{persistence.StatusBacklog: 3}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew(t *testing.T) {
	t.Parallel()

	s, err := New("", &countingRenormalizer{}, discardLogger())
	require.NoError(t, err)
	assert.False(t, s.Enabled())
	s.Start(context.Background())
	assert.NoError(t, s.Stop(context.Background()))

	s, err = New("0 3 * * *", &countingRenormalizer{}, nil)
	require.NoError(t, err)
	assert.True(t, s.Enabled())

	_, err = New("every night", &countingRenormalizer{}, nil)
	assert.Error(t, err)
}

func TestScheduler_RunOnce(t *testing.T) {
	t.Parallel()

	target := &countingRenormalizer{}
	s, err := New("@daily", target, discardLogger())
	require.NoError(t, err)

	require.NoError(t, s.RunOnce(context.Background()))
	assert.EqualValues(t, 1, target.calls.Load())

	target.err = errors.New("database is locked")
	assert.ErrorIs(t, s.RunOnce(context.Background()), target.err)
}

func TestScheduler_StartStop(t *testing.T) {
	t.Parallel()

	target := &countingRenormalizer{}
	s, err := New("@every 1s", target, discardLogger())
	require.NoError(t, err)

	s.Start(context.Background())
	s.Start(context.Background())
	require.Eventually(t, func() bool { return target.calls.Load() > 0 }, 5*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	require.NoError(t, s.Stop(ctx))

	calls := target.calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, calls, target.calls.Load())
}

func TestScheduler_RenormalizesStorage(t *testing.T) {
	t.Parallel()

	harness := testfixtures.NewSQLiteHarness(t)
	ctx := context.Background()

	ids := testfixtures.SeedColumn(t, harness.Tickets, persistence.StatusBacklog, "a", "b")
	for i, position := range []float64{2e-12, 1e-12} {
		ok, err := harness.Tickets.ReorderTicket(ctx, ids[i], position)
		require.NoError(t, err)
		require.True(t, ok)
	}

	s, err := New("@hourly", harness.Storage, discardLogger())
	require.NoError(t, err)
	require.NoError(t, s.RunOnce(ctx))

	crowded, err := harness.Tickets.NeedsRenormalize(ctx, persistence.StatusBacklog)
	require.NoError(t, err)
	assert.False(t, crowded)

	next, ok, err := harness.Tickets.GetNextTicket(ctx, persistence.StatusBacklog)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ids[0], next.ID)
}
