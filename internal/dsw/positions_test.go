package dsw

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
)

func TestApplyPositionFillTracksPerUserSymbol(t *testing.T) {
	t.Parallel()
	w := &Worker{positions: make(map[string]*domain.Position)}

	o := &domain.Order{
		UserID:    "u1",
		Symbol:    "AAPL",
		Side:      domain.SideBuy,
		State:     domain.StateFilled,
		FilledQty: decimal.RequireFromString("10"),
		FilledAvg: decimal.RequireFromString("100"),
	}
	w.applyPositionFill(o)

	pos, ok := w.positions["u1|AAPL"]
	if !ok {
		t.Fatal("applyPositionFill did not create a tracked position")
	}
	if !pos.Qty.Equal(decimal.RequireFromString("10")) {
		t.Errorf("Qty = %s, want 10", pos.Qty)
	}
}

func TestApplyPositionFillAccumulatesAcrossCalls(t *testing.T) {
	t.Parallel()
	w := &Worker{positions: make(map[string]*domain.Position)}

	w.applyPositionFill(&domain.Order{UserID: "u1", Symbol: "AAPL", Side: domain.SideBuy, State: domain.StateFilled,
		FilledQty: decimal.RequireFromString("10"), FilledAvg: decimal.RequireFromString("100")})
	w.applyPositionFill(&domain.Order{UserID: "u1", Symbol: "AAPL", Side: domain.SideBuy, State: domain.StateFilled,
		FilledQty: decimal.RequireFromString("5"), FilledAvg: decimal.RequireFromString("110")})

	pos := w.positions["u1|AAPL"]
	if !pos.Qty.Equal(decimal.RequireFromString("15")) {
		t.Errorf("Qty = %s, want 15", pos.Qty)
	}
}

func TestApplyPositionFillKeyedSeparatelyPerSymbol(t *testing.T) {
	t.Parallel()
	w := &Worker{positions: make(map[string]*domain.Position)}

	w.applyPositionFill(&domain.Order{UserID: "u1", Symbol: "AAPL", Side: domain.SideBuy, State: domain.StateFilled,
		FilledQty: decimal.RequireFromString("10"), FilledAvg: decimal.RequireFromString("100")})
	w.applyPositionFill(&domain.Order{UserID: "u1", Symbol: "MSFT", Side: domain.SideBuy, State: domain.StateFilled,
		FilledQty: decimal.RequireFromString("3"), FilledAvg: decimal.RequireFromString("200")})

	if len(w.positions) != 2 {
		t.Fatalf("expected 2 tracked positions, got %d", len(w.positions))
	}
}
