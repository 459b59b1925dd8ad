package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tick is a point-in-time market-data record for one symbol (spec §3, §4.4).
type Tick struct {
	Symbol string
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Last   decimal.Decimal
	Ts     time.Time
}
