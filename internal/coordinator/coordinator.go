// Package coordinator owns the last-known disposal schedule and mediates
// all fetches against the upstream API.
//
// At most one fetch runs at a time. Refresh requests arriving while a fetch
// is in flight are coalesced into it and share its result, so any number of
// concurrent triggers cost exactly one network round trip. A failed fetch
// never discards the previous snapshot; consumers keep reading
// stale-but-valid data with the failure recorded in Status.
package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mskaar/renovasjon/internal/api"
	"github.com/mskaar/renovasjon/internal/config"
	"github.com/mskaar/renovasjon/internal/models"
)

// State is the coordinator's position in its fetch cycle.
type State string

const (
	StateIdle     State = "idle"
	StateFetching State = "fetching"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// Fetch outcome metrics, registered by the server setup.
var (
	FetchSuccesses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renovasjon_fetch_successes_total",
		Help: "Number of successful schedule fetches.",
	})
	FetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "renovasjon_fetch_failures_total",
		Help: "Number of failed schedule fetches.",
	})
	LastSuccessTimestamp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "renovasjon_last_success_timestamp_seconds",
		Help: "Unix time of the last successful schedule fetch.",
	})
)

// Status is a read-only view of the coordinator for diagnostics.
type Status struct {
	State           State     `json:"state"`
	LastAttempt     time.Time `json:"last_attempt,omitempty"`
	LastSuccess     time.Time `json:"last_success,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	UpdateFailed    bool      `json:"update_failed"`
	SnapshotVersion uint64    `json:"snapshot_version"`
}

// Coordinator triggers fetches and holds the last good snapshot.
type Coordinator struct {
	fetcher api.ScheduleFetcher
	address config.AddressConfig
	logger  *logrus.Logger

	// baseCtx bounds the lifetime of fetches; canceling it aborts an
	// in-flight fetch at shutdown without touching the last good snapshot.
	baseCtx context.Context

	mu          sync.Mutex
	state       State
	snapshot    *models.ScheduleSnapshot
	version     uint64
	lastAttempt time.Time
	lastSuccess time.Time
	lastErr     error
	inflight    *fetchCall
}

type fetchCall struct {
	done     chan struct{}
	snapshot *models.ScheduleSnapshot
	err      error
}

// New returns a Coordinator in the idle state. ctx bounds all fetches.
func New(ctx context.Context, fetcher api.ScheduleFetcher, address config.AddressConfig, logger *logrus.Logger) *Coordinator {
	return &Coordinator{
		fetcher: fetcher,
		address: address,
		logger:  logger,
		baseCtx: ctx,
		state:   StateIdle,
	}
}

// Refresh triggers a fetch, or joins the one already in flight. It returns
// the fetch's snapshot on success. The caller's ctx only bounds how long
// this call waits; the fetch itself runs under the coordinator's lifetime
// context so one impatient caller cannot cancel a shared fetch.
func (c *Coordinator) Refresh(ctx context.Context) (*models.ScheduleSnapshot, error) {
	c.mu.Lock()
	if call := c.inflight; call != nil {
		c.mu.Unlock()
		select {
		case <-call.done:
			return call.snapshot, call.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	call := &fetchCall{done: make(chan struct{})}
	c.inflight = call
	c.state = StateFetching
	c.lastAttempt = time.Now()
	c.mu.Unlock()

	snapshot, err := c.fetcher.GetSchedule(c.baseCtx, c.address.ID)
	if snapshot != nil {
		snapshot.AddressName = c.address.Name
		snapshot.Municipality = c.address.Municipality
	}

	c.mu.Lock()
	c.inflight = nil
	if err != nil {
		c.state = StateFailed
		c.lastErr = err
		FetchFailures.Inc()
		c.logger.WithError(err).WithField("address_id", c.address.ID).
			Error("Schedule fetch failed, keeping previous snapshot")
	} else {
		c.state = StateReady
		c.snapshot = snapshot
		c.version++
		c.lastSuccess = time.Now()
		c.lastErr = nil
		FetchSuccesses.Inc()
		LastSuccessTimestamp.SetToCurrentTime()
		c.logger.WithFields(logrus.Fields{
			"address_id": c.address.ID,
			"fractions":  len(snapshot.Fractions),
		}).Info("Schedule updated")
	}
	c.mu.Unlock()

	call.snapshot, call.err = snapshot, err
	close(call.done)

	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Snapshot returns the last good snapshot, or nil before the first
// successful fetch. The returned snapshot is immutable and stays
// consistent for the reader even if a newer one replaces it.
func (c *Coordinator) Snapshot() *models.ScheduleSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// SnapshotVersion increases by one on every successful fetch. Used by the
// response cache to key entries to the current snapshot.
func (c *Coordinator) SnapshotVersion() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Status reports the coordinator state for the diagnostics endpoint.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := Status{
		State:           c.state,
		LastAttempt:     c.lastAttempt,
		LastSuccess:     c.lastSuccess,
		UpdateFailed:    c.lastErr != nil,
		SnapshotVersion: c.version,
	}
	if c.lastErr != nil {
		status.LastError = c.lastErr.Error()
	}
	return status
}

// AddressID returns the configured address id this coordinator polls.
func (c *Coordinator) AddressID() string {
	return c.address.ID
}
