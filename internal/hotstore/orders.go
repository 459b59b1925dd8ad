package hotstore

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

// SaveOrder writes the current order record to order:{id}. The whole record
// is stored as one JSON value: OM already serializes field-level mutation
// through its per-order lock, so there is no concurrent-writer race to guard
// against at this layer.
func (s *Store) SaveOrder(ctx context.Context, o *domain.Order) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	payload, err := marshal(o)
	if err != nil {
		return err
	}
	if err := s.rdb.Set(ctx, orderKey(o.ID), payload, 0).Err(); err != nil {
		return errs.Wrap(errs.KindTransient, "redis.save_order", err)
	}
	return nil
}

func userOrdersKey(userID string) string { return "user:orders:" + userID }

// IndexOrderForUser adds orderID to the user's order-id set, so ListUserOrders
// can answer list_by_user without a SQL round trip (spec §4.1).
func (s *Store) IndexOrderForUser(ctx context.Context, userID, orderID string) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()
	if err := s.rdb.SAdd(ctx, userOrdersKey(userID), orderID).Err(); err != nil {
		return errs.Wrap(errs.KindTransient, "redis.index_order", err)
	}
	return nil
}

// ListUserOrders returns every order id ever created for userID, unordered.
func (s *Store) ListUserOrders(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()
	ids, err := s.rdb.SMembers(ctx, userOrdersKey(userID)).Result()
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "redis.list_user_orders", err)
	}
	return ids, nil
}

// GetOrder reads the current order record, or errs.ErrNotFound.
func (s *Store) GetOrder(ctx context.Context, id string) (*domain.Order, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	raw, err := s.rdb.Get(ctx, orderKey(id)).Result()
	if err == redis.Nil {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindTransient, "redis.get_order", err)
	}
	var o domain.Order
	if err := unmarshal(raw, &o); err != nil {
		return nil, err
	}
	return &o, nil
}

// AppendTransition appends one row to the order's append-only transition
// stream (order:tx:{id}), the recovery oracle per spec §4.1/§4.5.
func (s *Store) AppendTransition(ctx context.Context, t domain.Transition) error {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	payload, err := marshal(t)
	if err != nil {
		return err
	}
	err = s.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: orderTxKey(t.OrderID),
		Values: map[string]any{"data": payload},
	}).Err()
	if err != nil {
		return errs.Wrap(errs.KindTransient, "redis.append_transition", err)
	}
	return nil
}

// ReadTransitions returns every transition appended for orderID, in log
// order, starting strictly after afterID ("0" to read from the beginning).
func (s *Store) ReadTransitions(ctx context.Context, orderID, afterID string) ([]domain.Transition, []string, error) {
	ctx, cancel := withDeadline(ctx, defaultRedisTimeout)
	defer cancel()

	if afterID == "" {
		afterID = "0"
	}
	msgs, err := s.rdb.XRange(ctx, orderTxKey(orderID), "("+afterID, "+").Result()
	if err != nil {
		return nil, nil, errs.Wrap(errs.KindTransient, "redis.read_transitions", err)
	}

	out := make([]domain.Transition, 0, len(msgs))
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		raw, _ := m.Values["data"].(string)
		var t domain.Transition
		if err := unmarshal(raw, &t); err != nil {
			continue
		}
		out = append(out, t)
		ids = append(ids, m.ID)
	}
	return out, ids, nil
}
