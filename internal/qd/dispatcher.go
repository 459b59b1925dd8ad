// Package qd is the Priority Queue Dispatcher: it decouples order creation
// from execution, enforces backpressure, and fans claimed work out to a
// fixed-size worker pool (spec §4.2). It knows nothing about order semantics;
// Handler is supplied by main wiring (BA for live orders, MME for paper).
package qd

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
	"github.com/jai-bhardwaj/tradecore/internal/hotstore"
)

// Handler processes one dequeued item. A Retryable error (errs.Retryable)
// nacks with requeue until the item has been requeued maxAttempts times;
// after that, and for any other error, the item fails to the dead-letter
// stream.
type Handler func(ctx context.Context, item domain.QueueItem) error

// priorities is the fixed dispatch order: high, then normal, then low,
// consulted every claim attempt except on a fairness tick.
var priorities = []domain.Priority{domain.PriorityHigh, domain.PriorityNormal, domain.PriorityLow}

// Dispatcher owns the worker pool and the fairness/rebalance background
// loops. One Dispatcher serves the whole process; it is not per-user.
type Dispatcher struct {
	store   *hotstore.Store
	handle  Handler
	id      string
	workers int
	maxSize int

	fairnessEveryM int
	staleThreshold time.Duration
	rebalanceEvery time.Duration

	stats *statsRegistry
}

// New builds a Dispatcher. handle is invoked by every worker for every
// claimed item; it must be safe for concurrent use.
func New(store *hotstore.Store, handle Handler, workers, maxSize, fairnessEveryM int, staleThreshold, rebalanceEvery time.Duration) *Dispatcher {
	return &Dispatcher{
		store:          store,
		handle:         handle,
		id:             uuid.NewString(),
		workers:        workers,
		maxSize:        maxSize,
		fairnessEveryM: fairnessEveryM,
		staleThreshold: staleThreshold,
		rebalanceEvery: rebalanceEvery,
		stats:          newStatsRegistry(),
	}
}

// Enqueue writes item to its priority stream, rejecting with errs.KindQueueFull
// once the sum of all three streams' pending length reaches max_queue_size.
func (d *Dispatcher) Enqueue(ctx context.Context, orderID string, priority domain.Priority, meta map[string]string) error {
	var total int64
	for _, p := range priorities {
		n, err := d.store.StreamLen(ctx, p)
		if err != nil {
			return err
		}
		total += n
	}
	if total >= int64(d.maxSize) {
		return errs.New(errs.KindQueueFull, "qd.enqueue", "global pending queue at capacity").WithOrder(orderID)
	}

	_, err := d.store.Enqueue(ctx, domain.QueueItem{
		OrderID:    orderID,
		Priority:   priority,
		Meta:       meta,
		EnqueuedAt: time.Now(),
	})
	return err
}

// Run starts the worker pool and background rebalancer, blocking until ctx is
// cancelled. On cancellation it waits for in-flight handlers to return before
// returning itself (errgroup-based graceful shutdown).
func (d *Dispatcher) Run(ctx context.Context) error {
	for _, p := range priorities {
		if err := d.store.EnsureStreamGroup(ctx, p); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		workerID := uuid.NewString()
		g.Go(func() error {
			d.runWorker(ctx, workerID)
			return nil
		})
	}
	g.Go(func() error {
		d.runRebalancer(ctx)
		return nil
	})

	log.Info().Int("workers", d.workers).Msg("dispatcher started")
	return g.Wait()
}

// Stats returns a point-in-time snapshot of every worker's counters, the
// per-worker health export spec §4.2 asks for.
func (d *Dispatcher) Stats() []WorkerStats {
	return d.stats.snapshot()
}
