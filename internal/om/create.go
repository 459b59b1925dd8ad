package om

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

// createGroup collapses concurrent Create calls carrying the same
// fingerprint into one winner; the losers get the winner's result instead of
// each racing the dedup script (spec's idempotent-create supplement, same
// shape as golang.org/x/sync/singleflight's canonical "one flight in, many
// callers out" use).
var createGroup singleflight.Group

// Create validates sig, checks the per-user cooldown and then the fingerprint
// dedup window, and if both pass, persists a new CREATED order and appends
// its first transition. A duplicate that reaches the dedup check fails with
// errs.KindDuplicate carrying the existing order's id, rather than creating a
// second order. The cooldown is checked first, so a repeat inside the cooldown
// fails with errs.KindRateLimited and does not name the existing order.
func (m *Manager) Create(ctx context.Context, sig domain.Signal) (*domain.Order, error) {
	if err := validateSignal(sig); err != nil {
		return nil, err
	}

	fp := sig.Fingerprint(m.dedupWindow)

	v, err, _ := createGroup.Do(fp, func() (any, error) {
		return m.createLocked(ctx, sig, fp)
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Order), nil
}

func (m *Manager) createLocked(ctx context.Context, sig domain.Signal, fp string) (*domain.Order, error) {
	ls, err := m.acquireLocks(ctx, userLockKey(sig.UserID), symbolLockKey(sig.Symbol))
	if err != nil {
		return nil, err
	}
	defer ls.release(ctx)

	allowed, err := m.store.TryReserveRateLimit(ctx, sig.UserID, time.Now(), m.minOrderInterval)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.New(errs.KindRateLimited, "om.create", "order rejected: minimum interval between orders not elapsed")
	}

	order := sig.ToOrder()
	order.ID = uuid.NewString()
	order.Signature = fp
	now := time.Now()
	order.CreatedAt = now
	order.UpdatedAt = now

	existingID, dup, err := m.store.CheckAndReserveSignature(ctx, sig.UserID, fp, order.ID, m.dedupWindow)
	if err != nil {
		return nil, err
	}
	if dup {
		existing, err := m.store.GetOrder(ctx, existingID)
		if err != nil {
			return nil, err
		}
		return existing, errs.New(errs.KindDuplicate, "om.create", "duplicate signal, returning existing order").WithOrder(existingID)
	}

	if err := m.store.SaveOrder(ctx, order); err != nil {
		return nil, err
	}
	if err := m.store.IndexOrderForUser(ctx, order.UserID, order.ID); err != nil {
		return nil, err
	}
	if err := m.store.AppendTransition(ctx, domain.Transition{
		Seq:       1,
		OrderID:   order.ID,
		From:      "",
		To:        domain.StateCreated,
		Actor:     "om",
		Reason:    "signal accepted",
		Timestamp: now,
	}); err != nil {
		return nil, err
	}

	log.Info().Str("order_id", order.ID).Str("user_id", order.UserID).Str("symbol", order.Symbol).
		Str("side", string(order.Side)).Msg("order created")

	m.bus.PublishOrderEvent(eventOf(order, "", domain.StateCreated, "signal accepted"))

	// Validation already happened above (signal shape, cooldown, dedup); the
	// order is immediately eligible for dispatch, so it advances straight to
	// PENDING here rather than making every caller remember a second step.
	pending, err := m.Transition(ctx, order.ID, domain.StatePending, "om", "validated", nil, nil)
	if err != nil {
		return order, err
	}
	return pending, nil
}

func validateSignal(sig domain.Signal) error {
	if sig.UserID == "" {
		return errs.New(errs.KindValidation, "om.create", "user_id required")
	}
	if sig.Symbol == "" {
		return errs.New(errs.KindValidation, "om.create", "symbol required")
	}
	if sig.Quantity.Sign() <= 0 {
		return errs.New(errs.KindValidation, "om.create", "quantity must be positive")
	}
	if sig.OrderType == domain.OrderTypeLimit && sig.LimitPrice.Sign() <= 0 {
		return errs.New(errs.KindValidation, "om.create", "limit orders require a positive limit_price")
	}
	if sig.OrderType == domain.OrderTypeStop && sig.TriggerPrice.Sign() <= 0 {
		return errs.New(errs.KindValidation, "om.create", "stop orders require a positive trigger_price")
	}
	if sig.Mode != domain.ModeLive && sig.Mode != domain.ModePaper {
		return errs.New(errs.KindValidation, "om.create", "mode must be explicit: LIVE or PAPER")
	}
	return nil
}
