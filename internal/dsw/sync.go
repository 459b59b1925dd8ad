package dsw

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/clause"

	"github.com/jai-bhardwaj/tradecore/internal/config"
	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
	"github.com/jai-bhardwaj/tradecore/internal/eventbus"
	"github.com/jai-bhardwaj/tradecore/internal/hotstore"
	"github.com/jai-bhardwaj/tradecore/internal/om"
)

// Worker drains order state changes out of the hot store into SQL, batching
// and diffing writes per spec §4.5.
type Worker struct {
	sql   *Store
	store *hotstore.Store
	om    *om.Manager

	batchSize         int
	intervalMin       time.Duration
	intervalMax       time.Duration
	highWater         int
	lowWater          int
	compressThreshold int
	maxRetries        int

	mu       sync.Mutex
	dirty    map[string]bool
	lastSnap map[string]snapshot
	stalled  bool

	posMu     sync.Mutex
	positions map[string]*domain.Position

	bus *eventbus.Bus
}

// NewWorker builds a Worker and subscribes it to bus for dirty-order tracking.
func NewWorker(sql *Store, store *hotstore.Store, mgr *om.Manager, bus *eventbus.Bus, cfg *config.Config) *Worker {
	w := &Worker{
		sql:               sql,
		store:             store,
		om:                mgr,
		batchSize:         cfg.DSWBatchSize,
		intervalMin:       time.Duration(cfg.DSWIntervalMinMs) * time.Millisecond,
		intervalMax:       time.Duration(cfg.DSWIntervalMaxMs) * time.Millisecond,
		highWater:         cfg.DSWHighWaterMark,
		lowWater:          cfg.DSWLowWaterMark,
		compressThreshold: cfg.DSWCompressThresholdByte,
		maxRetries:        cfg.DSWMaxSQLRetries,
		dirty:             make(map[string]bool),
		lastSnap:          make(map[string]snapshot),
		positions:         make(map[string]*domain.Position),
		bus:               bus,
	}

	ch, _ := bus.SubscribeOrderEvents()
	go func() {
		for evt := range ch {
			w.markDirty(evt.Order.ID)
		}
	}()

	posCh, _ := bus.SubscribeOrderEvents()
	go w.trackPositionEvents(posCh)

	return w
}

func (w *Worker) trackPositionEvents(ch <-chan eventbus.OrderStateChanged) {
	for evt := range ch {
		if evt.To != domain.StateFilled {
			continue
		}
		w.applyPositionFill(evt.Order)
	}
}

func (w *Worker) markDirty(orderID string) {
	w.mu.Lock()
	w.dirty[orderID] = true
	w.mu.Unlock()
}

func (w *Worker) queueDepth() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirty)
}

func (w *Worker) drainBatch() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, w.batchSize)
	for id := range w.dirty {
		ids = append(ids, id)
		delete(w.dirty, id)
		if len(ids) >= w.batchSize {
			break
		}
	}
	return ids
}

// Run flushes dirty orders on an adaptively-sized interval until ctx is
// cancelled.
func (w *Worker) Run(ctx context.Context) {
	interval := w.intervalMin
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			depth := w.queueDepth()
			interval = w.nextInterval(interval, depth)

			if !w.stalled {
				w.flush(ctx)
				w.flushPositions(ctx)
			}
			timer.Reset(interval)
		}
	}
}

// nextInterval halves the interval when queue depth exceeds the high-water
// mark, doubles it when below the low-water mark, clamped to [min, max]
// (spec §4.5 adaptive interval).
func (w *Worker) nextInterval(current time.Duration, depth int) time.Duration {
	next := current
	switch {
	case depth > w.highWater:
		next = current / 2
	case depth < w.lowWater:
		next = current * 2
	}
	if next < w.intervalMin {
		next = w.intervalMin
	}
	if next > w.intervalMax {
		next = w.intervalMax
	}
	return next
}

func (w *Worker) flush(ctx context.Context) {
	ids := w.drainBatch()
	if len(ids) == 0 {
		return
	}

	start := time.Now()
	written := 0
	for _, id := range ids {
		if err := w.flushOrder(ctx, id); err != nil {
			log.Error().Err(err).Str("order_id", id).Msg("dsw: flush failed, re-queueing")
			w.markDirty(id)
			continue
		}
		written++
	}
	log.Debug().Int("batch", len(ids)).Int("written", written).Dur("elapsed", time.Since(start)).Msg("dsw: flush complete")
}

func (w *Worker) flushOrder(ctx context.Context, orderID string) error {
	order, err := w.om.Get(ctx, orderID)
	if err != nil {
		return err
	}

	metaBytes, compressed, err := encodeMetadata(order.Metadata, w.compressThreshold)
	if err != nil {
		return err
	}

	w.mu.Lock()
	old, hadSnap := w.lastSnap[orderID]
	w.mu.Unlock()

	rec := toRecord(order, metaBytes, compressed)

	op := func() error {
		if !hadSnap {
			return w.sql.db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				UpdateAll: true,
			}).Create(&rec).Error
		}
		cols := dirtyColumns(old, order)
		return w.sql.db.Model(&OrderRecord{}).Where("id = ?", orderID).Select(cols).Updates(&rec).Error
	}

	if err := w.withRetry(ctx, op); err != nil {
		return err
	}

	w.mu.Lock()
	w.lastSnap[orderID] = snapshotOf(order)
	w.mu.Unlock()

	return w.flushNewTransitions(ctx, orderID)
}

// flushNewTransitions replays any hot-store transitions not yet durably
// applied for orderID, tracking the bookmark in SyncOffset so recovery
// resumes from exactly where it left off (spec §4.5 catch-up replay).
func (w *Worker) flushNewTransitions(ctx context.Context, orderID string) error {
	var offset SyncOffset
	found := w.sql.db.First(&offset, "order_id = ?", orderID).Error == nil

	afterID := ""
	if found {
		afterID = offset.StreamID
	}

	transitions, streamIDs, err := w.om.History(ctx, orderID, afterID)
	if err != nil {
		return err
	}
	if len(transitions) == 0 {
		return nil
	}

	for i, t := range transitions {
		rec := TransitionRecord{
			OrderID:   t.OrderID,
			Seq:       t.Seq,
			From:      string(t.From),
			To:        string(t.To),
			Actor:     t.Actor,
			Reason:    t.Reason,
			Timestamp: t.Timestamp,
		}
		if err := w.sql.db.Create(&rec).Error; err != nil {
			return err
		}
		offset = SyncOffset{OrderID: orderID, StreamID: streamIDs[i]}
	}

	return w.sql.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		UpdateAll: true,
	}).Create(&offset).Error
}

func toRecord(o *domain.Order, metaBytes []byte, compressed bool) OrderRecord {
	return OrderRecord{
		ID:             o.ID,
		UserID:         o.UserID,
		StrategyID:     o.StrategyID,
		Symbol:         o.Symbol,
		Side:           string(o.Side),
		OrderType:      string(o.OrderType),
		Product:        string(o.Product),
		Mode:           string(o.Mode),
		RequestedQty:   o.RequestedQty,
		RequestedPrice: o.RequestedPrice,
		TriggerPrice:   o.TriggerPrice,
		FilledQty:      o.FilledQty,
		FilledAvg:      o.FilledAvg,
		State:          string(o.State),
		BrokerID:       o.BrokerID,
		Error:          o.Error,
		RetryCount:     o.RetryCount,
		Signature:      o.Signature,
		Metadata:       metaBytes,
		MetaCompressed: compressed,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}

// withRetry applies exponential backoff across op, halting the worker with
// DBSyncStalled after maxRetries consecutive failures (spec §4.5). Hot state
// keeps advancing while stalled; only SQL writes pause.
func (w *Worker) withRetry(ctx context.Context, op func() error) error {
	backoff := 100 * time.Millisecond
	var lastErr error
	for attempt := 0; attempt < w.maxRetries; attempt++ {
		if err := op(); err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}
		return nil
	}

	w.mu.Lock()
	w.stalled = true
	w.mu.Unlock()
	log.Error().Err(lastErr).Int("max_retries", w.maxRetries).Msg("dsw: SQL retries exhausted, halting flushes")
	return errs.Wrap(errs.KindDBSyncStalled, "dsw.flush", lastErr)
}

// Stalled reports whether the worker has halted new flushes after exhausting
// SQL retries.
func (w *Worker) Stalled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stalled
}

// Resume clears the stalled flag, letting an operator or automatic recovery
// restart flushing (the manual-or-automatic catch-up spec §4.5 describes).
func (w *Worker) Resume() {
	w.mu.Lock()
	w.stalled = false
	w.mu.Unlock()
}
