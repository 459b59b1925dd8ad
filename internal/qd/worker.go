package qd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
	"github.com/jai-bhardwaj/tradecore/internal/hotstore"
)

const claimPollInterval = 50 * time.Millisecond

func (d *Dispatcher) runWorker(ctx context.Context, workerID string) {
	var draws int64
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		draws++
		fairnessTick := d.fairnessEveryM > 0 && draws%int64(d.fairnessEveryM) == 0

		claimed := d.claimOne(ctx, workerID, fairnessTick)
		if claimed == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(claimPollInterval):
			}
			continue
		}

		d.process(ctx, workerID, *claimed)
	}
}

type claimResult struct {
	priority    hotstore.ClaimedItem
	stream      domain.Priority
	fromRequeue bool
}

// claimOne tries each priority stream in strict order, unless fairnessTick is
// set, in which case the order is reversed so a lower-priority stream gets
// first crack — the 1-in-M anti-starvation draw (spec §4.2). Within a given
// priority, a previously-nacked item is always claimed before a fresh one:
// the requeue list is drained first, so redelivery effectively jumps the
// stream's queue instead of landing behind whatever arrived while it was
// being retried.
func (d *Dispatcher) claimOne(ctx context.Context, workerID string, fairnessTick bool) *claimResult {
	order := priorities
	if fairnessTick {
		order = reversed(priorities)
	}
	for _, p := range order {
		item, err := d.store.ClaimRequeued(ctx, p)
		if err != nil {
			log.Error().Err(err).Int("priority", int(p)).Msg("claim requeued failed")
		} else if item != nil {
			return &claimResult{
				priority:    hotstore.ClaimedItem{Item: *item},
				stream:      p,
				fromRequeue: true,
			}
		}

		items, err := d.store.ReadGroup(ctx, p, workerID, 1)
		if err != nil {
			log.Error().Err(err).Int("priority", int(p)).Msg("claim failed")
			continue
		}
		if len(items) > 0 {
			return &claimResult{priority: items[0], stream: p}
		}
	}
	return nil
}

func reversed(ps []domain.Priority) []domain.Priority {
	out := make([]domain.Priority, len(ps))
	for i, p := range ps {
		out[len(ps)-1-i] = p
	}
	return out
}

func (d *Dispatcher) process(ctx context.Context, workerID string, cr claimResult) {
	start := time.Now()
	d.stats.recordClaim(workerID)

	err := d.handle(ctx, cr.priority.Item)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		d.stats.recordProcessed(workerID, elapsed)
		if cr.fromRequeue {
			return
		}
		if ackErr := d.store.Ack(ctx, cr.stream, cr.priority.StreamID); ackErr != nil {
			log.Error().Err(ackErr).Str("order_id", cr.priority.Item.OrderID).Msg("ack failed")
		}

	case errs.Retryable(err) && cr.priority.Item.Attempts < maxAttempts:
		d.stats.recordFailed(workerID)
		if cr.fromRequeue {
			if reqErr := d.store.RequeueAgain(ctx, cr.stream, cr.priority.Item); reqErr != nil {
				log.Error().Err(reqErr).Str("order_id", cr.priority.Item.OrderID).Msg("requeue failed")
			}
			return
		}
		if reqErr := d.store.Requeue(ctx, cr.stream, cr.priority.StreamID, cr.priority.Item); reqErr != nil {
			log.Error().Err(reqErr).Str("order_id", cr.priority.Item.OrderID).Msg("requeue failed")
		}

	default:
		d.stats.recordFailed(workerID)
		d.failToDLQ(ctx, cr, err)
	}
}

// maxAttempts bounds retryable requeue before an item is sent to the DLQ
// stream instead, so a persistently failing order cannot loop forever.
const maxAttempts = 5

func (d *Dispatcher) failToDLQ(ctx context.Context, cr claimResult, cause error) {
	log.Error().Err(cause).Str("order_id", cr.priority.Item.OrderID).Msg("item failed, routing to DLQ")
	if !cr.fromRequeue {
		if err := d.store.Ack(ctx, cr.stream, cr.priority.StreamID); err != nil {
			log.Error().Err(err).Msg("ack of failed item before DLQ failed")
		}
	}
	if err := d.store.PushDLQ(ctx, cr.priority.Item, cause.Error()); err != nil {
		log.Error().Err(err).Msg("dlq push failed")
	}
}
