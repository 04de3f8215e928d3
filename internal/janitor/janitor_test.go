package janitor

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlkit/crawld/internal/crawler"
	"github.com/crawlkit/crawld/internal/manager"
	"github.com/crawlkit/crawld/internal/metrics"
	queueMemory "github.com/crawlkit/crawld/internal/queue/memory"
	storeMemory "github.com/crawlkit/crawld/internal/store/memory"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type staticIDGen struct{}

func (staticIDGen) NewID() (string, error) {
	return "unused", nil
}

func newTestJanitor(retention time.Duration) (*Janitor, *storeMemory.JobStore, *fakeClock) {
	store := storeMemory.NewJobStore()
	queue := queueMemory.NewQueue(4)
	clock := &fakeClock{now: time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)}
	mgr := manager.New(store, queue, staticIDGen{}, clock, 100, zap.NewNop())
	j := New(store, mgr, time.Hour, retention, clock, zap.NewNop())
	return j, store, clock
}

func TestSweepDeletesOnlyExpiredJobs(t *testing.T) {
	t.Parallel()

	j, store, clock := newTestJanitor(48 * time.Hour)
	ctx := context.Background()

	stale := crawler.Job{
		ID:        "stale",
		Status:    crawler.JobStatusCompleted,
		CreatedAt: clock.now.Add(-72 * time.Hour),
	}
	fresh := crawler.Job{
		ID:        "fresh",
		Status:    crawler.JobStatusCompleted,
		CreatedAt: clock.now.Add(-time.Hour),
	}
	require.NoError(t, store.Put(ctx, stale))
	require.NoError(t, store.Put(ctx, fresh))
	require.NoError(t, store.AppendResult(ctx, "stale", crawler.Result{URL: "https://example.com"}))

	deleted := j.Sweep(ctx)
	require.Equal(t, 1, deleted)

	_, ok, err := store.Get(ctx, "stale")
	require.NoError(t, err)
	require.False(t, ok, "expired job must be deleted")

	count, err := store.CountResults(ctx, "stale")
	require.NoError(t, err)
	require.Zero(t, count, "expired job's results must go with it")

	_, ok, err = store.Get(ctx, "fresh")
	require.NoError(t, err)
	require.True(t, ok, "fresh job must survive the sweep")
}

func TestSweepBoundaryAgeSurvives(t *testing.T) {
	t.Parallel()

	j, store, clock := newTestJanitor(48 * time.Hour)
	ctx := context.Background()

	// Exactly at the cutoff: not strictly older, so it stays.
	boundary := crawler.Job{
		ID:        "boundary",
		CreatedAt: clock.now.Add(-48 * time.Hour),
	}
	require.NoError(t, store.Put(ctx, boundary))

	require.Zero(t, j.Sweep(ctx))
	_, ok, err := store.Get(ctx, "boundary")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestSweepEmptyStore(t *testing.T) {
	t.Parallel()

	j, _, _ := newTestJanitor(48 * time.Hour)
	require.Zero(t, j.Sweep(context.Background()))
}

func TestSweepReclaimsStuckRunningJob(t *testing.T) {
	t.Parallel()

	j, store, clock := newTestJanitor(48 * time.Hour)
	ctx := context.Background()

	// Retention is age-based regardless of status; a long-stuck running job
	// is reclaimed like any other.
	stuck := crawler.Job{
		ID:        "stuck",
		Status:    crawler.JobStatusRunning,
		CreatedAt: clock.now.Add(-100 * time.Hour),
	}
	require.NoError(t, store.Put(ctx, stuck))

	require.Equal(t, 1, j.Sweep(ctx))
	_, ok, err := store.Get(ctx, "stuck")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	j, _, _ := newTestJanitor(48 * time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Run(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop on cancel")
	}
}
