// Package domain holds the record types shared across the Order Manager, Queue
// Dispatcher, Broker Adapter, Mock Matching Engine and DB Sync Worker. Nothing in
// this package talks to Redis, SQL or a broker; it is pure data plus small,
// side-effect-free helpers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// OrderType is how an order should be priced.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeStop   OrderType = "STOP"
)

// ProductType is the settlement/carry mode of an order.
type ProductType string

const (
	ProductIntraday ProductType = "INTRADAY"
	ProductDelivery ProductType = "DELIVERY"
	ProductBTST     ProductType = "BTST"
)

// State is a position in the Order state machine (spec §4.1). The arrows listed
// next to each constant are the only transitions OM.transition will accept out of
// that state.
type State string

const (
	StateCreated    State = "CREATED"    // -> PENDING, REJECTED
	StatePending    State = "PENDING"    // -> PLACING, REJECTED, CANCELLING
	StatePlacing    State = "PLACING"    // -> PLACED, REJECTED
	StatePlaced     State = "PLACED"     // -> FILLING, CANCELLING
	StateFilling    State = "FILLING"    // -> FILLING, FILLED, REJECTED
	StateCancelling State = "CANCELLING" // -> CANCELLED
	StateFilled     State = "FILLED"     // terminal
	StateRejected   State = "REJECTED"   // terminal
	StateCancelled  State = "CANCELLED"  // terminal
)

// IsTerminal reports whether no further transition out of s is legal.
func (s State) IsTerminal() bool {
	switch s {
	case StateFilled, StateRejected, StateCancelled:
		return true
	default:
		return false
	}
}

// transitions enumerates the §4.1 state diagram. Keep this the single source of
// truth: OM.transition consults nothing else to decide legality.
var transitions = map[State]map[State]bool{
	StateCreated:    {StatePending: true, StateRejected: true},
	StatePending:    {StatePlacing: true, StateRejected: true, StateCancelling: true},
	StatePlacing:    {StatePlaced: true, StateRejected: true},
	StatePlaced:     {StateFilling: true, StateCancelling: true},
	StateFilling:    {StateFilling: true, StateFilled: true, StateRejected: true},
	StateCancelling: {StateCancelled: true},
	StateFilled:     {},
	StateRejected:   {},
	StateCancelled:  {},
}

// CanTransition reports whether from -> to is a legal §4.1 edge.
func CanTransition(from, to State) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Mode selects whether an order is routed to a live broker or the paper matcher.
// Spec §9 forbids implicit fallback: this is decided once, at signal ingress.
type Mode string

const (
	ModeLive  Mode = "LIVE"
	ModePaper Mode = "PAPER"
)

// Order is the central state-machine entity (spec §3).
type Order struct {
	ID         string
	UserID     string
	StrategyID string
	Symbol     string
	Side       Side
	OrderType  OrderType
	Product    ProductType
	Mode       Mode

	RequestedQty   decimal.Decimal
	RequestedPrice decimal.Decimal // zero for MARKET
	TriggerPrice   decimal.Decimal // STOP trigger; zero otherwise

	FilledQty  decimal.Decimal
	FilledAvg  decimal.Decimal
	State      State
	BrokerID   string // external broker order id; BA sets it just before PLACED, PAPER orders never carry one
	Error      string
	RetryCount int

	Signature string // dedup fingerprint, see Signal.Fingerprint
	Metadata  map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep-enough copy safe to hand to a caller outside the OM lock.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	if o.Metadata != nil {
		cp.Metadata = make(map[string]any, len(o.Metadata))
		for k, v := range o.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// RemainingQty is RequestedQty - FilledQty, never negative by invariant.
func (o *Order) RemainingQty() decimal.Decimal {
	return o.RequestedQty.Sub(o.FilledQty)
}

// Transition is one row of the append-only transaction log (spec §4.1, §6).
type Transition struct {
	Seq       int64 // monotonically increasing per order, assigned by OM
	OrderID   string
	From      State
	To        State
	Actor     string // "om", "ba", "broker", "mme", "cancel"
	Reason    string
	Timestamp time.Time
}
