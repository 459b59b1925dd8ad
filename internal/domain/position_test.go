package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func filledOrder(userID, symbol string, side Side, qty, price string) *Order {
	return &Order{
		UserID:    userID,
		Symbol:    symbol,
		Side:      side,
		State:     StateFilled,
		FilledQty: decimal.RequireFromString(qty),
		FilledAvg: decimal.RequireFromString(price),
	}
}

func TestApplyFillOpensLongPosition(t *testing.T) {
	t.Parallel()
	var p Position
	p.ApplyFill(filledOrder("u1", "AAPL", SideBuy, "10", "100"))

	if !p.Qty.Equal(decimal.RequireFromString("10")) {
		t.Errorf("Qty = %s, want 10", p.Qty)
	}
	if !p.AvgPrice.Equal(decimal.RequireFromString("100")) {
		t.Errorf("AvgPrice = %s, want 100", p.AvgPrice)
	}
	if !p.Open {
		t.Error("Open = false, want true")
	}
}

func TestApplyFillBlendsAveragePriceOnAdd(t *testing.T) {
	t.Parallel()
	var p Position
	p.ApplyFill(filledOrder("u1", "AAPL", SideBuy, "10", "100"))
	p.ApplyFill(filledOrder("u1", "AAPL", SideBuy, "10", "120"))

	if !p.Qty.Equal(decimal.RequireFromString("20")) {
		t.Errorf("Qty = %s, want 20", p.Qty)
	}
	if !p.AvgPrice.Equal(decimal.RequireFromString("110")) {
		t.Errorf("AvgPrice = %s, want 110", p.AvgPrice)
	}
}

func TestApplyFillRealizesPnLOnReduce(t *testing.T) {
	t.Parallel()
	var p Position
	p.ApplyFill(filledOrder("u1", "AAPL", SideBuy, "10", "100"))
	p.ApplyFill(filledOrder("u1", "AAPL", SideSell, "4", "110"))

	if !p.Qty.Equal(decimal.RequireFromString("6")) {
		t.Errorf("Qty = %s, want 6", p.Qty)
	}
	wantPnL := decimal.RequireFromString("40") // (110-100)*4
	if !p.RealizedPnL.Equal(wantPnL) {
		t.Errorf("RealizedPnL = %s, want %s", p.RealizedPnL, wantPnL)
	}
}

func TestApplyFillFlat(t *testing.T) {
	t.Parallel()
	var p Position
	p.ApplyFill(filledOrder("u1", "AAPL", SideBuy, "10", "100"))
	p.ApplyFill(filledOrder("u1", "AAPL", SideSell, "10", "130"))

	if !p.Qty.IsZero() {
		t.Errorf("Qty = %s, want 0", p.Qty)
	}
	if p.Open {
		t.Error("Open = true, want false after flattening")
	}
}

func TestApplyFillZeroQtyIsNoop(t *testing.T) {
	t.Parallel()
	var p Position
	p.ApplyFill(&Order{UserID: "u1", Symbol: "AAPL", State: StateFilled, FilledQty: decimal.Zero})
	if !p.Qty.IsZero() || p.Open {
		t.Error("zero-qty fill should not change the position")
	}
}

func TestReconstructPositionMatchesIncrementalApply(t *testing.T) {
	t.Parallel()
	orders := []*Order{
		filledOrder("u1", "AAPL", SideBuy, "10", "100"),
		filledOrder("u1", "AAPL", SideBuy, "5", "110"),
		filledOrder("u1", "AAPL", SideSell, "8", "120"),
		// different user/symbol should be ignored by the filter
		filledOrder("u2", "AAPL", SideBuy, "100", "1"),
		filledOrder("u1", "MSFT", SideBuy, "100", "1"),
	}

	var incremental Position
	incremental.UserID, incremental.Symbol = "u1", "AAPL"
	for _, o := range orders {
		if o.UserID == "u1" && o.Symbol == "AAPL" {
			incremental.ApplyFill(o)
		}
	}

	reconstructed := ReconstructPosition("u1", "AAPL", orders)

	if !reconstructed.Qty.Equal(incremental.Qty) {
		t.Errorf("reconstructed Qty = %s, want %s", reconstructed.Qty, incremental.Qty)
	}
	if !reconstructed.RealizedPnL.Equal(incremental.RealizedPnL) {
		t.Errorf("reconstructed RealizedPnL = %s, want %s", reconstructed.RealizedPnL, incremental.RealizedPnL)
	}
}

func TestReconstructPositionSkipsNonFilled(t *testing.T) {
	t.Parallel()
	pending := filledOrder("u1", "AAPL", SideBuy, "10", "100")
	pending.State = StatePending

	pos := ReconstructPosition("u1", "AAPL", []*Order{pending})
	if !pos.Qty.IsZero() {
		t.Errorf("non-FILLED orders must not affect the position, got Qty = %s", pos.Qty)
	}
}

func TestSignalFingerprintStableWithinBucket(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s1 := Signal{UserID: "u1", StrategyID: "s1", Symbol: "AAPL", Side: SideBuy, OrderType: OrderTypeMarket, Quantity: decimal.RequireFromString("10"), Timestamp: now}
	s2 := s1
	s2.Timestamp = now.Add(100 * time.Millisecond)

	if s1.Fingerprint(time.Second) != s2.Fingerprint(time.Second) {
		t.Error("signals within the same timestamp bucket should fingerprint identically")
	}
}

func TestSignalFingerprintDiffersAcrossBuckets(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	s1 := Signal{UserID: "u1", StrategyID: "s1", Symbol: "AAPL", Side: SideBuy, OrderType: OrderTypeMarket, Quantity: decimal.RequireFromString("10"), Timestamp: now}
	s2 := s1
	s2.Timestamp = now.Add(5 * time.Second)

	if s1.Fingerprint(time.Second) == s2.Fingerprint(time.Second) {
		t.Error("signals in different timestamp buckets should fingerprint differently")
	}
}

func TestSignalToOrderStartsAtCreated(t *testing.T) {
	t.Parallel()
	sig := Signal{UserID: "u1", Symbol: "AAPL", Side: SideBuy, OrderType: OrderTypeLimit, Quantity: decimal.RequireFromString("5"), LimitPrice: decimal.RequireFromString("50")}
	o := sig.ToOrder()

	if o.State != StateCreated {
		t.Errorf("State = %s, want CREATED", o.State)
	}
	if !o.RequestedQty.Equal(sig.Quantity) {
		t.Errorf("RequestedQty = %s, want %s", o.RequestedQty, sig.Quantity)
	}
	if !o.FilledQty.IsZero() {
		t.Error("a freshly materialized order must have zero FilledQty")
	}
}
