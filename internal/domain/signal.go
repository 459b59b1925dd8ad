package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Signal is a strategy-produced trade intent (spec §3). It is ephemeral: once
// turned into an Order (or rejected/collapsed) it is not retained.
type Signal struct {
	UserID     string
	StrategyID string
	Symbol     string
	Side       Side
	OrderType  OrderType
	Product    ProductType
	Mode       Mode

	Quantity     decimal.Decimal
	LimitPrice   decimal.Decimal // optional, zero means none
	TriggerPrice decimal.Decimal // optional, zero means none

	Metadata  map[string]any
	Timestamp time.Time
}

// timestampBucket rounds a signal's timestamp down to the rate-limit window so
// two signals submitted within the same bucket produce the same fingerprint.
func timestampBucket(ts time.Time, window time.Duration) int64 {
	if window <= 0 {
		window = time.Second
	}
	return ts.UnixNano() / window.Nanoseconds()
}

// Fingerprint computes the duplicate-collapse signature from
// {user, strategy, symbol, side, rounded_qty, order_type, timestamp_bucket}
// per spec §3/§4.1. roundedQty rounds to the nearest whole unit; strategies that need
// finer dedup granularity should bucket quantity themselves before signaling.
func (s Signal) Fingerprint(window time.Duration) string {
	roundedQty := s.Quantity.Round(0)
	bucket := timestampBucket(s.Timestamp, window)
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s|%d",
		s.UserID, s.StrategyID, s.Symbol, s.Side, roundedQty.String(), s.OrderType, bucket)
}

// ToOrder materializes a CREATED order from a validated signal. The caller (OM)
// still owns assigning ID, Signature and timestamps.
func (s Signal) ToOrder() *Order {
	return &Order{
		UserID:         s.UserID,
		StrategyID:     s.StrategyID,
		Symbol:         s.Symbol,
		Side:           s.Side,
		OrderType:      s.OrderType,
		Product:        s.Product,
		Mode:           s.Mode,
		RequestedQty:   s.Quantity,
		RequestedPrice: s.LimitPrice,
		TriggerPrice:   s.TriggerPrice,
		FilledQty:      decimal.Zero,
		FilledAvg:      decimal.Zero,
		State:          StateCreated,
		Metadata:       s.Metadata,
	}
}
