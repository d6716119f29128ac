package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReleaseSweeper struct {
	calls     atomic.Int32
	processed int
	failed    int
	err       error
}

func (f *fakeReleaseSweeper) ProcessScheduledReleases(ctx context.Context) (int, int, error) {
	f.calls.Add(1)
	return f.processed, f.failed, f.err
}

type fakeDeadlineSweeper struct {
	calls     atomic.Int32
	processed int
	failed    int
	err       error
}

func (f *fakeDeadlineSweeper) ProcessExpiredEvidenceDeadlines(ctx context.Context) (int, int, error) {
	f.calls.Add(1)
	return f.processed, f.failed, f.err
}

type fakeCacheCleaner struct {
	calls   atomic.Int32
	removed int64
}

func (f *fakeCacheCleaner) CleanExpired(ctx context.Context) (int64, error) {
	f.calls.Add(1)
	return f.removed, nil
}

func TestRunOnce_RunsBothSweeps(t *testing.T) {
	releases := &fakeReleaseSweeper{processed: 3}
	deadlines := &fakeDeadlineSweeper{processed: 1, failed: 2}

	r := NewRunner(releases, deadlines, time.Hour, slog.Default())
	r.RunOnce(context.Background())

	assert.Equal(t, int32(1), releases.calls.Load())
	assert.Equal(t, int32(1), deadlines.calls.Load())
}

func TestRunOnce_SweepErrorDoesNotAbortSibling(t *testing.T) {
	releases := &fakeReleaseSweeper{err: errors.New("listing query failed")}
	deadlines := &fakeDeadlineSweeper{}

	r := NewRunner(releases, deadlines, time.Hour, slog.Default())
	r.RunOnce(context.Background())

	assert.Equal(t, int32(1), releases.calls.Load())
	assert.Equal(t, int32(1), deadlines.calls.Load())
}

func TestRunOnce_RunsCacheCleanupWhenSet(t *testing.T) {
	releases := &fakeReleaseSweeper{}
	deadlines := &fakeDeadlineSweeper{}
	cache := &fakeCacheCleaner{removed: 5}

	r := NewRunner(releases, deadlines, time.Hour, slog.Default())
	r.RunOnce(context.Background())
	assert.Equal(t, int32(0), cache.calls.Load())

	r.SetCacheCleaner(cache)
	r.RunOnce(context.Background())
	assert.Equal(t, int32(1), cache.calls.Load())
}

func TestStart_TicksUntilCancelled(t *testing.T) {
	releases := &fakeReleaseSweeper{}
	deadlines := &fakeDeadlineSweeper{}

	r := NewRunner(releases, deadlines, 10*time.Millisecond, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	require.Eventually(t, func() bool {
		return releases.calls.Load() >= 2 && deadlines.calls.Load() >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	r.Wait()

	after := releases.calls.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, releases.calls.Load())
}
