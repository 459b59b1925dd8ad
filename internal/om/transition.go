package om

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
	"github.com/jai-bhardwaj/tradecore/internal/eventbus"
)

func eventOf(o *domain.Order, from, to domain.State, reason string) eventbus.OrderStateChanged {
	return eventbus.OrderStateChanged{Order: o.Clone(), From: from, To: to, Reason: reason}
}

// applyFill folds a reported fill into the order's running average fill
// price before the state transition that carries it is recorded.
func applyFill(o *domain.Order, qty, price decimal.Decimal) {
	if qty.Sign() <= 0 {
		return
	}
	newFilled := o.FilledQty.Add(qty)
	if o.FilledQty.IsZero() {
		o.FilledAvg = price
	} else {
		totalCost := o.FilledAvg.Mul(o.FilledQty).Add(price.Mul(qty))
		o.FilledAvg = totalCost.Div(newFilled)
	}
	o.FilledQty = newFilled
}

// Transition moves orderID from its current state to `to`, rejecting the call
// with errs.KindInvalidTransition if the edge is not legal per
// domain.CanTransition. On a fill-bearing transition (to FILLING or FILLED),
// fillQty/fillPrice are folded into FilledQty/FilledAvg.
func (m *Manager) Transition(ctx context.Context, orderID string, to domain.State, actor, reason string, fillQty, fillPrice *decimal.Decimal) (*domain.Order, error) {
	ls, err := m.acquireLocks(ctx, orderLockKey(orderID))
	if err != nil {
		return nil, err
	}
	defer ls.release(ctx)

	order, err := m.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.State
	if !domain.CanTransition(from, to) {
		return nil, errs.New(errs.KindInvalidTransition, "om.transition", string(from)+" -> "+string(to)).WithOrder(orderID)
	}

	prior, _, err := m.store.ReadTransitions(ctx, orderID, "")
	if err != nil {
		return nil, err
	}

	if fillQty != nil {
		applyFill(order, *fillQty, *fillPrice)
	}

	now := time.Now()
	order.State = to
	order.UpdatedAt = now

	if err := m.store.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := m.store.AppendTransition(ctx, domain.Transition{
		Seq:       int64(len(prior)) + 1,
		OrderID:   order.ID,
		From:      from,
		To:        to,
		Actor:     actor,
		Reason:    reason,
		Timestamp: now,
	}); err != nil {
		return nil, err
	}

	log.Info().Str("order_id", order.ID).Str("from", string(from)).Str("to", string(to)).
		Str("actor", actor).Msg("order transitioned")

	m.bus.PublishOrderEvent(eventOf(order, from, to, reason))
	return order, nil
}

// Fill records a fill report against orderID and transitions it to `to`
// (FILLING for a partial fill, FILLED once RemainingQty reaches zero).
func (m *Manager) Fill(ctx context.Context, orderID string, to domain.State, actor string, qty, price decimal.Decimal) (*domain.Order, error) {
	return m.Transition(ctx, orderID, to, actor, "fill report", &qty, &price)
}

// Reject is a convenience wrapper for the common "mark this order REJECTED
// with a reason" path used by validation failures, broker rejects and
// matching timeouts.
func (m *Manager) Reject(ctx context.Context, orderID, actor, reason string) (*domain.Order, error) {
	return m.Transition(ctx, orderID, domain.StateRejected, actor, reason, nil, nil)
}

// Cancel requests cancellation of an in-flight order. It only succeeds from
// PENDING (straight to CANCELLING) or PLACED (straight to CANCELLING); BA/MME
// still owns confirming the venue actually cancelled, which lands the order
// in CANCELLED via a separate Transition call.
func (m *Manager) Cancel(ctx context.Context, orderID, reason string) (*domain.Order, error) {
	return m.Transition(ctx, orderID, domain.StateCancelling, "cancel", reason, nil, nil)
}
