// Package mme is the Mock Matching Engine: the paper-trading fill path that
// matches orders against a live tick stream instead of a broker (spec §4.4).
package mme

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
	"github.com/jai-bhardwaj/tradecore/internal/hotstore"
	"github.com/jai-bhardwaj/tradecore/internal/om"
)

// pendingOrder is a PAPER order waiting for a matching tick.
type pendingOrder struct {
	order    *domain.Order
	armed    bool // STOP orders: trigger crossed, now behaves as MARKET
	deadline time.Time
}

// Engine matches pending paper orders against ticks pushed via Ingest. One
// Engine instance serves every symbol; orders are bucketed internally.
type Engine struct {
	store *hotstore.Store
	om    *om.Manager

	matchTimeout time.Duration

	mu    sync.Mutex
	bySym map[string][]*pendingOrder
}

// New builds an Engine. matchTimeout is spec §4.4's paper_timeout (default 60s).
func New(store *hotstore.Store, mgr *om.Manager, matchTimeout time.Duration) *Engine {
	return &Engine{
		store:        store,
		om:           mgr,
		matchTimeout: matchTimeout,
		bySym:        make(map[string][]*pendingOrder),
	}
}

// Submit is the qd.Handler MME exposes to the dispatcher for PAPER-mode
// orders: it registers the order for matching and returns immediately;
// the actual fill (or timeout) happens asynchronously off tick arrival.
func (e *Engine) Submit(ctx context.Context, item domain.QueueItem) error {
	order, err := e.om.Get(ctx, item.OrderID)
	if err != nil {
		return err
	}
	if order.Mode != domain.ModePaper {
		return errs.New(errs.KindValidation, "mme.submit", "order is not in PAPER mode").WithOrder(order.ID)
	}

	if _, err := e.om.Transition(ctx, order.ID, domain.StatePlacing, "mme", "queued for paper match", nil, nil); err != nil {
		return err
	}
	if _, err := e.om.Transition(ctx, order.ID, domain.StatePlaced, "mme", "paper order armed", nil, nil); err != nil {
		return err
	}

	e.mu.Lock()
	e.bySym[order.Symbol] = append(e.bySym[order.Symbol], &pendingOrder{
		order:    order,
		deadline: time.Now().Add(e.matchTimeout),
	})
	e.mu.Unlock()
	return nil
}

// Ingest feeds one tick into the engine, checking it against every pending
// order on that symbol (spec §4.4: "checked on every incoming tick for the
// relevant symbol").
func (e *Engine) Ingest(ctx context.Context, t domain.Tick) {
	if err := e.store.PushTick(ctx, t); err != nil {
		log.Error().Err(err).Str("symbol", t.Symbol).Msg("tick push failed")
	}

	e.mu.Lock()
	pending := e.bySym[t.Symbol]
	var remaining []*pendingOrder
	var toFill []*pendingOrder
	for _, p := range pending {
		if matches(p, t) {
			toFill = append(toFill, p)
		} else {
			remaining = append(remaining, p)
		}
	}
	e.bySym[t.Symbol] = remaining
	e.mu.Unlock()

	for _, p := range toFill {
		e.fill(ctx, p, t)
	}
}

// matches implements spec §4.4's deterministic matching policy. STOP orders
// arm (and from then on behave as MARKET) once last crosses trigger, so the
// crossing tick itself already matches an armed STOP order.
func matches(p *pendingOrder, t domain.Tick) bool {
	o := p.order
	if o.OrderType == domain.OrderTypeStop && !p.armed {
		crossed := (o.Side == domain.SideBuy && t.Last.GreaterThanOrEqual(o.TriggerPrice)) ||
			(o.Side == domain.SideSell && t.Last.LessThanOrEqual(o.TriggerPrice))
		if !crossed {
			return false
		}
		p.armed = true
	}

	switch o.Side {
	case domain.SideBuy:
		if o.OrderType == domain.OrderTypeLimit {
			return t.Ask.LessThanOrEqual(o.RequestedPrice)
		}
		return true // MARKET or armed STOP
	case domain.SideSell:
		if o.OrderType == domain.OrderTypeLimit {
			return t.Bid.GreaterThanOrEqual(o.RequestedPrice)
		}
		return true
	default:
		return false
	}
}

func fillPrice(p *pendingOrder, t domain.Tick) decimal.Decimal {
	o := p.order
	if o.Side == domain.SideBuy {
		if o.OrderType == domain.OrderTypeLimit {
			return decimal.Min(t.Ask, o.RequestedPrice)
		}
		return t.Ask
	}
	if o.OrderType == domain.OrderTypeLimit {
		return decimal.Max(t.Bid, o.RequestedPrice)
	}
	return t.Bid
}

func (e *Engine) fill(ctx context.Context, p *pendingOrder, t domain.Tick) {
	price := fillPrice(p, t)
	if _, err := e.om.Transition(ctx, p.order.ID, domain.StateFilling, "mme", "tick matched", nil, nil); err != nil {
		log.Error().Err(err).Str("order_id", p.order.ID).Msg("paper fill: transition to FILLING failed")
		return
	}
	if _, err := e.om.Fill(ctx, p.order.ID, domain.StateFilled, "mme", p.order.RequestedQty, price); err != nil {
		log.Error().Err(err).Str("order_id", p.order.ID).Msg("paper fill: transition to FILLED failed")
	}
}

// RunTimeoutSweeper periodically rejects pending orders whose match_timeout
// has elapsed without a fill, independent of tick arrival (spec §4.4:
// "monotonic timer, independent of tick arrival").
func (e *Engine) RunTimeoutSweeper(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.sweepTimeouts(ctx)
		}
	}
}

func (e *Engine) sweepTimeouts(ctx context.Context) {
	now := time.Now()
	e.mu.Lock()
	var expired []*pendingOrder
	for sym, list := range e.bySym {
		var remaining []*pendingOrder
		for _, p := range list {
			if now.After(p.deadline) {
				expired = append(expired, p)
			} else {
				remaining = append(remaining, p)
			}
		}
		e.bySym[sym] = remaining
	}
	e.mu.Unlock()

	for _, p := range expired {
		if _, err := e.om.Reject(ctx, p.order.ID, "mme", "MatchTimeout"); err != nil {
			log.Error().Err(err).Str("order_id", p.order.ID).Msg("match timeout reject failed")
		}
	}
}
