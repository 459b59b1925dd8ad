package hotstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewWithClient(client)
}

func TestSaveAndGetOrder(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	o := &domain.Order{ID: "ord-1", UserID: "u1", Symbol: "AAPL", State: domain.StateCreated}
	require.NoError(t, s.SaveOrder(ctx, o))

	got, err := s.GetOrder(ctx, "ord-1")
	require.NoError(t, err)
	require.Equal(t, o.UserID, got.UserID)
	require.Equal(t, o.State, got.State)
}

func TestGetOrderNotFound(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.GetOrder(context.Background(), "missing")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestIndexAndListUserOrders(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.IndexOrderForUser(ctx, "u1", "ord-1"))
	require.NoError(t, s.IndexOrderForUser(ctx, "u1", "ord-2"))
	require.NoError(t, s.IndexOrderForUser(ctx, "u2", "ord-3"))

	ids, err := s.ListUserOrders(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"ord-1", "ord-2"}, ids)
}

func TestAppendAndReadTransitions(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	t1 := domain.Transition{OrderID: "ord-1", Seq: 1, From: domain.StateCreated, To: domain.StatePending, Actor: "om"}
	t2 := domain.Transition{OrderID: "ord-1", Seq: 2, From: domain.StatePending, To: domain.StatePlacing, Actor: "worker:1"}
	require.NoError(t, s.AppendTransition(ctx, t1))
	require.NoError(t, s.AppendTransition(ctx, t2))

	all, ids, err := s.ReadTransitions(ctx, "ord-1", "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Len(t, ids, 2)
	require.Equal(t, domain.StatePlacing, all[1].To)

	// Reading after the first id should only return the second transition.
	after, _, err := s.ReadTransitions(ctx, "ord-1", ids[0])
	require.NoError(t, err)
	require.Len(t, after, 1)
	require.Equal(t, domain.StatePlacing, after[0].To)
}

func TestCheckAndReserveSignatureDedup(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	existing, dup, err := s.CheckAndReserveSignature(ctx, "u1", "fp-1", "ord-1", time.Minute)
	require.NoError(t, err)
	require.False(t, dup)
	require.Empty(t, existing)

	existing, dup, err = s.CheckAndReserveSignature(ctx, "u1", "fp-1", "ord-2", time.Minute)
	require.NoError(t, err)
	require.True(t, dup)
	require.Equal(t, "ord-1", existing)
}

func TestTryReserveRateLimit(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	allowed, err := s.TryReserveRateLimit(ctx, "u1", now, time.Second)
	require.NoError(t, err)
	require.True(t, allowed, "first reservation within an empty window should be allowed")

	allowed, err = s.TryReserveRateLimit(ctx, "u1", now.Add(10*time.Millisecond), time.Second)
	require.NoError(t, err)
	require.False(t, allowed, "a second reservation inside the interval should be rejected")

	allowed, err = s.TryReserveRateLimit(ctx, "u1", now.Add(2*time.Second), time.Second)
	require.NoError(t, err)
	require.True(t, allowed, "a reservation after the interval has elapsed should be allowed")
}

func TestAcquireAndReleaseLock(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	lock, err := s.AcquireLock(ctx, "order:ord-1", time.Minute, time.Second)
	require.NoError(t, err)

	_, err = s.AcquireLock(ctx, "order:ord-1", time.Minute, 100*time.Millisecond)
	require.ErrorIs(t, err, errs.ErrLockTimeout, "a held lock should block a second acquirer until timeout")

	require.NoError(t, lock.Release(ctx))

	second, err := s.AcquireLock(ctx, "order:ord-1", time.Minute, time.Second)
	require.NoError(t, err, "lock should be acquirable again once released")
	require.NoError(t, second.Release(ctx))
}

func TestPushAndReadTicks(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		tk := domain.Tick{Symbol: "AAPL", Last: decimal.NewFromInt(int64(100 + i))}
		require.NoError(t, s.PushTick(ctx, tk))
	}

	latest, err := s.LatestTick(ctx, "AAPL")
	require.NoError(t, err)
	require.True(t, latest.Last.Equal(decimal.NewFromInt(102)), "latest tick should be the most recently pushed")

	recent, err := s.RecentTicks(ctx, "AAPL", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestSaveGetDeleteSession(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := context.Background()

	sess := &domain.Session{UserID: "u1", CredentialID: "c1", Health: domain.HealthHealthy}
	require.NoError(t, s.SaveSession(ctx, sess))

	got, err := s.GetSession(ctx, "u1", "c1")
	require.NoError(t, err)
	require.Equal(t, domain.HealthHealthy, got.Health)

	require.NoError(t, s.DeleteSession(ctx, "u1", "c1"))
	_, err = s.GetSession(ctx, "u1", "c1")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
