// Package hotstore is the Redis-backed hot state layer shared by OM, QD, MME
// and DSW (spec §6 "Hot state layout"). It owns key naming, serialization and
// the distributed-lock primitive; it does not know about order semantics.
//
// Grounded on github.com/redis/go-redis/v9, the client used by the
// flyingrobots-go-redis-work-queue example's exactly-once idempotency
// manager (other_examples), which this package's dedup window borrows its
// SETNX-with-TTL shape from.
package hotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Store wraps a redis.UniversalClient (so *redis.Client and a miniredis-backed
// client are interchangeable in tests) with the key scheme of spec §6.
type Store struct {
	rdb redis.UniversalClient
}

// New dials Redis using addr/password/db exactly as config.Config carries
// them (REDIS_ADDR, REDIS_PASSWORD, REDIS_DB).
func New(addr, password string, db int) *Store {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &Store{rdb: rdb}
}

// NewWithClient wraps an already-constructed client, used by tests to inject
// a miniredis-backed client.
func NewWithClient(rdb redis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

// Ping verifies connectivity at startup.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Client exposes the raw client for components (like QD's consumer groups)
// that need operations this package does not wrap.
func (s *Store) Client() redis.UniversalClient {
	return s.rdb
}

func orderKey(id string) string      { return "order:" + id }
func orderTxKey(id string) string    { return "order:tx:" + id }
func dedupKey(userID string) string  { return "dedup:user:" + userID }
func ticksKey(symbol string) string  { return "ticks:" + symbol }
func sessionKey(userID, credID string) string {
	return fmt.Sprintf("session:%s:%s", userID, credID)
}

func marshal(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("hotstore: marshal: %w", err)
	}
	return string(b), nil
}

func unmarshal(raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("hotstore: unmarshal: %w", err)
	}
	return nil
}

// withDeadline applies the op-specific default (Redis op 5s per spec §5) when
// the caller's context has no earlier deadline.
func withDeadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

const defaultRedisTimeout = 5 * time.Second

func durationFromMillis(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func logRedisErr(op string, err error) {
	if err != nil && err != redis.Nil {
		log.Error().Err(err).Str("op", op).Msg("redis operation failed")
	}
}
