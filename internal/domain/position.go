package domain

import "github.com/shopspring/decimal"

// Position is the derived, per user×symbol net holding (spec §3). It must be
// reconstructable from the ordered sequence of FILLED orders alone.
type Position struct {
	UserID       string
	Symbol       string
	Qty          decimal.Decimal // signed: positive long, negative short
	AvgPrice     decimal.Decimal
	RealizedPnL  decimal.Decimal
	Unrealized   decimal.Decimal
	Open         bool
}

// ApplyFill folds one FILLED order into the position, matching the
// volume-weighted-average-price rule the teacher's executor uses for
// its own position bookkeeping (execution/executor.go updatePosition).
// Orders must be applied in transition-log order for the result to be
// deterministic and reconstructable (property test #4).
func (p *Position) ApplyFill(o *Order) {
	if o.FilledQty.IsZero() {
		return
	}

	signedQty := o.FilledQty
	if o.Side == SideSell {
		signedQty = signedQty.Neg()
	}

	switch {
	case p.Qty.IsZero():
		p.Qty = signedQty
		p.AvgPrice = o.FilledAvg
	case sameSign(p.Qty, signedQty):
		// Adding to the position: blend the average price.
		totalCost := p.AvgPrice.Mul(p.Qty.Abs()).Add(o.FilledAvg.Mul(signedQty.Abs()))
		newQty := p.Qty.Add(signedQty)
		if !newQty.IsZero() {
			p.AvgPrice = totalCost.Div(newQty.Abs())
		}
		p.Qty = newQty
	default:
		// Reducing or flipping the position: realize P&L on the closed portion.
		closingQty := decimal.Min(p.Qty.Abs(), signedQty.Abs())
		pnlPerUnit := o.FilledAvg.Sub(p.AvgPrice)
		if p.Qty.IsNegative() {
			pnlPerUnit = pnlPerUnit.Neg()
		}
		p.RealizedPnL = p.RealizedPnL.Add(pnlPerUnit.Mul(closingQty))
		p.Qty = p.Qty.Add(signedQty)
		if sameSign(p.Qty, signedQty) && !p.Qty.IsZero() && signedQty.Abs().GreaterThan(closingQty) {
			// Position flipped direction; remainder opens a new average at the fill price.
			p.AvgPrice = o.FilledAvg
		}
	}

	p.Open = !p.Qty.IsZero()
}

func sameSign(a, b decimal.Decimal) bool {
	return (a.IsPositive() && b.IsPositive()) || (a.IsNegative() && b.IsNegative())
}

// ReconstructPosition folds a sorted (by transition order) sequence of FILLED
// orders for one user×symbol into a Position, from scratch. Used by property
// test #4 ("position reconstructed from the order log equals the live
// Position record"); no startup path calls it.
func ReconstructPosition(userID, symbol string, filledOrdersInOrder []*Order) Position {
	pos := Position{UserID: userID, Symbol: symbol, Qty: decimal.Zero, AvgPrice: decimal.Zero, RealizedPnL: decimal.Zero}
	for _, o := range filledOrdersInOrder {
		if o.UserID != userID || o.Symbol != symbol || o.State != StateFilled {
			continue
		}
		pos.ApplyFill(o)
	}
	return pos
}
