package hotstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

// QDConsumerGroup is the single consumer group every worker shares per
// priority stream, so XAUTOCLAIM (used by the dispatcher's stale-item
// reclaim) has one well-known group to scan.
const QDConsumerGroup = "qd-workers"

// EnsureStreamGroup creates the consumer group for a priority stream if it
// does not already exist. Safe to call repeatedly at startup.
func (s *Store) EnsureStreamGroup(ctx context.Context, priority domain.Priority) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	err := s.rdb.XGroupCreateMkStream(ctx, priority.StreamKey(), QDConsumerGroup, "0").Err()
	if err != nil && err.Error() != "BUSYGROUP Consumer Group name already exists" {
		return errs.Wrap(errs.KindTransient, "redis.ensure_group", err)
	}
	return nil
}

// StreamLen reports pending entries in a priority stream, used for QueueFull
// checks and rebalancing inspection.
func (s *Store) StreamLen(ctx context.Context, priority domain.Priority) (int64, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()
	n, err := s.rdb.XLen(ctx, priority.StreamKey()).Result()
	if err != nil {
		return 0, errs.Wrap(errs.KindTransient, "redis.stream_len", err)
	}
	return n, nil
}

// Enqueue appends a queue item to the priority stream (spec §4.2).
func (s *Store) Enqueue(ctx context.Context, item domain.QueueItem) (string, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	payload, err := marshal(item)
	if err != nil {
		return "", err
	}
	id, err := s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: item.Priority.StreamKey(),
		Values: map[string]any{"data": payload},
	}).Result()
	if err != nil {
		return "", errs.Wrap(errs.KindTransient, "redis.enqueue", err)
	}
	return id, nil
}

// ClaimedItem pairs a stream message id with the decoded QueueItem so the
// caller can Ack/Nack by id.
type ClaimedItem struct {
	StreamID string
	Item     domain.QueueItem
}

// ReadGroup claims up to count new entries for consumer from the given
// priority stream via the shared consumer group.
func (s *Store) ReadGroup(ctx context.Context, priority domain.Priority, consumer string, count int64) ([]ClaimedItem, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	res, err := s.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    QDConsumerGroup,
		Consumer: consumer,
		Streams:  []string{priority.StreamKey(), ">"},
		Count:    count,
		Block:    0,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "redis.read_group", err)
	}

	var out []ClaimedItem
	for _, stream := range res {
		for _, m := range stream.Messages {
			raw, _ := m.Values["data"].(string)
			var item domain.QueueItem
			if err := unmarshal(raw, &item); err != nil {
				continue
			}
			out = append(out, ClaimedItem{StreamID: m.ID, Item: item})
		}
	}
	return out, nil
}

// Ack acknowledges and trims a processed stream entry.
func (s *Store) Ack(ctx context.Context, priority domain.Priority, streamID string) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	pipe := s.rdb.TxPipeline()
	pipe.XAck(ctx, priority.StreamKey(), QDConsumerGroup, streamID)
	pipe.XDel(ctx, priority.StreamKey(), streamID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.Wrap(errs.KindTransient, "redis.ack", err)
	}
	return nil
}

// requeueListKey holds items nacked with requeue=true, ahead of the priority
// stream itself. Redis streams only ever grow at the tail (XAdd rejects an ID
// older than the stream's last entry), so there is no native way to put an
// entry back at the head of queue:p{n} — this list is the secondary structure
// that stands in for it, and claimOne drains it before ever reading the
// stream, which gets the same effect: a nacked item is redelivered before any
// entry that arrived after it.
func requeueListKey(priority domain.Priority) string {
	return priority.StreamKey() + ":requeue"
}

// Requeue acks the old stream entry and pushes a fresh copy with Attempts+1
// onto the priority's requeue list, ahead of the priority stream (spec §4.2
// nack/requeue).
func (s *Store) Requeue(ctx context.Context, priority domain.Priority, oldStreamID string, item domain.QueueItem) error {
	if err := s.Ack(ctx, priority, oldStreamID); err != nil {
		return err
	}
	item.Attempts++
	payload, err := marshal(item)
	if err != nil {
		return err
	}

	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()
	if err := s.rdb.LPush(ctx, requeueListKey(priority), payload).Err(); err != nil {
		return errs.Wrap(errs.KindTransient, "redis.requeue", err)
	}
	return nil
}

// RequeueAgain pushes an already-dequeued item (one claimed off the requeue
// list itself) back onto it with Attempts+1. There is no stream entry left to
// ack — Requeue already consumed it on the first nack.
func (s *Store) RequeueAgain(ctx context.Context, priority domain.Priority, item domain.QueueItem) error {
	item.Attempts++
	payload, err := marshal(item)
	if err != nil {
		return err
	}

	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()
	if err := s.rdb.LPush(ctx, requeueListKey(priority), payload).Err(); err != nil {
		return errs.Wrap(errs.KindTransient, "redis.requeue_again", err)
	}
	return nil
}

// ClaimRequeued pops the oldest nacked item for a priority, if any, ahead of
// reading new entries from the stream itself.
func (s *Store) ClaimRequeued(ctx context.Context, priority domain.Priority) (*domain.QueueItem, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	raw, err := s.rdb.RPop(ctx, requeueListKey(priority)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "redis.claim_requeued", err)
	}
	var item domain.QueueItem
	if err := unmarshal(raw, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// dlqStreamKey holds items a worker could not process after exhausting
// retries, for operator inspection (spec §4.2 worker loop's FatalError path).
const dlqStreamKey = "queue:dlq"

// PushDLQ appends a failed item plus its final error to the dead-letter
// stream.
func (s *Store) PushDLQ(ctx context.Context, item domain.QueueItem, reason string) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	payload, err := marshal(item)
	if err != nil {
		return err
	}
	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: dlqStreamKey,
		Values: map[string]any{"data": payload, "reason": reason},
	}).Err()
	if err != nil {
		return errs.Wrap(errs.KindTransient, "redis.dlq_push", err)
	}
	return nil
}

// ClaimStale reclaims entries idle for longer than minIdle in the consumer
// group, the dispatcher's rebalancing pass (spec §4.2).
func (s *Store) ClaimStale(ctx context.Context, priority domain.Priority, consumer string, minIdle int64) ([]ClaimedItem, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	msgs, _, err := s.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   priority.StreamKey(),
		Group:    QDConsumerGroup,
		Consumer: consumer,
		MinIdle:  durationFromMillis(minIdle),
		Start:    "0",
		Count:    100,
	}).Result()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "redis.claim_stale", err)
	}

	var out []ClaimedItem
	for _, m := range msgs {
		raw, _ := m.Values["data"].(string)
		var item domain.QueueItem
		if err := unmarshal(raw, &item); err != nil {
			continue
		}
		out = append(out, ClaimedItem{StreamID: m.ID, Item: item})
	}
	return out, nil
}
