package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mskaar/renovasjon/internal/config"
	"github.com/mskaar/renovasjon/internal/models"
)

// fakeFetcher is a controllable api.ScheduleFetcher double.
type fakeFetcher struct {
	mu    sync.Mutex
	calls int32

	snapshot *models.ScheduleSnapshot
	err      error

	// When set, GetSchedule signals started and blocks until release is
	// closed (or ctx is done).
	started chan struct{}
	release chan struct{}
}

func (f *fakeFetcher) GetSchedule(ctx context.Context, addressID string) (*models.ScheduleSnapshot, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.started != nil {
		f.started <- struct{}{}
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, f.err
}

func (f *fakeFetcher) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testAddress() config.AddressConfig {
	return config.AddressConfig{ID: "addr-1", Name: "Storgata 1", Municipality: "Oslo"}
}

func testSnapshot() *models.ScheduleSnapshot {
	return models.NewScheduleSnapshot("addr-1", []models.Disposal{
		{Date: models.NewDate(2025, time.June, 1), Fraction: "Restavfall"},
	}, time.Now())
}

func TestRefreshSuccess(t *testing.T) {
	fetcher := &fakeFetcher{snapshot: testSnapshot()}
	coord := New(context.Background(), fetcher, testAddress(), testLogger())

	assert.Nil(t, coord.Snapshot())
	assert.Equal(t, StateIdle, coord.Status().State)

	snap, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)

	// Address identity from config is stamped onto the snapshot.
	assert.Equal(t, "Storgata 1", snap.AddressName)
	assert.Equal(t, "Oslo", snap.Municipality)

	status := coord.Status()
	assert.Equal(t, StateReady, status.State)
	assert.False(t, status.UpdateFailed)
	assert.Equal(t, uint64(1), status.SnapshotVersion)
	assert.Same(t, snap, coord.Snapshot())
}

func TestFailedRefreshKeepsSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{snapshot: testSnapshot()}
	coord := New(context.Background(), fetcher, testAddress(), testLogger())

	good, err := coord.Refresh(context.Background())
	require.NoError(t, err)

	fetcher.mu.Lock()
	fetcher.snapshot = nil
	fetcher.err = errors.New("upstream down")
	fetcher.mu.Unlock()

	_, err = coord.Refresh(context.Background())
	require.Error(t, err)

	// Previous snapshot is retained and the failure is recorded.
	assert.Same(t, good, coord.Snapshot())
	status := coord.Status()
	assert.Equal(t, StateFailed, status.State)
	assert.True(t, status.UpdateFailed)
	assert.Contains(t, status.LastError, "upstream down")
	assert.Equal(t, uint64(1), status.SnapshotVersion)

	// A later success fully replaces the snapshot and clears the flag.
	fetcher.mu.Lock()
	fetcher.snapshot = testSnapshot()
	fetcher.err = nil
	fetcher.mu.Unlock()

	replaced, err := coord.Refresh(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, good, replaced)
	assert.Same(t, replaced, coord.Snapshot())
	assert.False(t, coord.Status().UpdateFailed)
	assert.Equal(t, uint64(2), coord.Status().SnapshotVersion)
}

func TestConcurrentRefreshesCoalesce(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshot: testSnapshot(),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	coord := New(context.Background(), fetcher, testAddress(), testLogger())

	results := make(chan *models.ScheduleSnapshot, 6)
	errs := make(chan error, 6)

	// Leader starts and blocks inside the fetcher.
	go func() {
		snap, err := coord.Refresh(context.Background())
		results <- snap
		errs <- err
	}()
	<-fetcher.started
	assert.Equal(t, StateFetching, coord.Status().State)

	// Followers arrive mid-fetch and must join the in-flight call.
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := coord.Refresh(context.Background())
			results <- snap
			errs <- err
		}()
	}

	// Give the followers a moment to park on the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(fetcher.release)
	wg.Wait()

	var first *models.ScheduleSnapshot
	for i := 0; i < 6; i++ {
		require.NoError(t, <-errs)
		snap := <-results
		require.NotNil(t, snap)
		if first == nil {
			first = snap
		} else {
			assert.Same(t, first, snap)
		}
	}

	// One round trip for all six requests.
	assert.Equal(t, 1, fetcher.callCount())
}

func TestShutdownAbortsFetchWithoutCorruption(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshot: testSnapshot(),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	coord := New(baseCtx, fetcher, testAddress(), testLogger())

	// Seed a good snapshot, then make the next fetch hang.
	fetcher.started = nil
	good, err := coord.Refresh(context.Background())
	require.NoError(t, err)

	fetcher.started = make(chan struct{}, 1)
	go func() {
		_, _ = coord.Refresh(context.Background())
	}()
	<-fetcher.started

	// Shutdown mid-fetch.
	cancel()

	require.Eventually(t, func() bool {
		return coord.Status().State == StateFailed
	}, time.Second, 10*time.Millisecond)

	assert.Same(t, good, coord.Snapshot())
}

func TestRefreshWaiterHonorsContext(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshot: testSnapshot(),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	coord := New(context.Background(), fetcher, testAddress(), testLogger())

	go func() {
		_, _ = coord.Refresh(context.Background())
	}()
	<-fetcher.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := coord.Refresh(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(fetcher.release)
}
