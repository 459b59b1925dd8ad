package qd

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// runRebalancer reclaims entries stuck in a worker's pending list for longer
// than staleThreshold, every rebalanceEvery (defaults 60s / 5m, spec §4.2).
func (d *Dispatcher) runRebalancer(ctx context.Context) {
	ticker := time.NewTicker(d.rebalanceEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.rebalanceOnce(ctx)
		}
	}
}

func (d *Dispatcher) rebalanceOnce(ctx context.Context) {
	for _, p := range priorities {
		claimed, err := d.store.ClaimStale(ctx, p, d.id, d.staleThreshold.Milliseconds())
		if err != nil {
			log.Error().Err(err).Msg("rebalance claim-stale failed")
			continue
		}
		if len(claimed) == 0 {
			continue
		}
		log.Warn().Int("count", len(claimed)).Int("priority", int(p)).Msg("reclaimed stale queue items")
		for _, c := range claimed {
			if err := d.store.Requeue(ctx, p, c.StreamID, c.Item); err != nil {
				log.Error().Err(err).Str("order_id", c.Item.OrderID).Msg("requeue of reclaimed item failed")
			}
		}
	}
}
