package hotstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

// tickRingCap bounds the per-symbol tick history MME records on every Ingest
// (spec §4.4): old ticks fall off the list once it grows past this.
const tickRingCap = 256

// PushTick appends a tick to its symbol's bounded ring (a Redis list capped
// with LTRIM).
func (s *Store) PushTick(ctx context.Context, t domain.Tick) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	payload, err := marshal(t)
	if err != nil {
		return err
	}

	pipe := s.rdb.TxPipeline()
	pipe.LPush(ctx, ticksKey(t.Symbol), payload)
	pipe.LTrim(ctx, ticksKey(t.Symbol), 0, tickRingCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindTransient, "redis.push_tick", err)
	}
	return nil
}

// LatestTick returns the most recently pushed tick for symbol, or
// errs.ErrNotFound if none has arrived yet.
func (s *Store) LatestTick(ctx context.Context, symbol string) (domain.Tick, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	raw, err := s.rdb.LIndex(ctx, ticksKey(symbol), 0).Result()
	if err == redis.Nil {
		return domain.Tick{}, errs.ErrNotFound
	}
	if err != nil {
		return domain.Tick{}, errs.Wrap(errs.KindTransient, "redis.latest_tick", err)
	}
	var t domain.Tick
	if err := unmarshal(raw, &t); err != nil {
		return domain.Tick{}, err
	}
	return t, nil
}

// RecentTicks returns up to n of the most recent ticks for symbol, newest
// first.
func (s *Store) RecentTicks(ctx context.Context, symbol string, n int64) ([]domain.Tick, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	raws, err := s.rdb.LRange(ctx, ticksKey(symbol), 0, n-1).Result()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "redis.recent_ticks", err)
	}
	out := make([]domain.Tick, 0, len(raws))
	for _, raw := range raws {
		var t domain.Tick
		if err := unmarshal(raw, &t); err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}
