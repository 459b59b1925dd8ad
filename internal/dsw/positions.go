package dsw

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm/clause"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
)

// applyPositionFill folds one FILLED order into the running in-memory
// position, so flushPositions can upsert durable rows without re-deriving
// them from the whole transition log each time. The in-memory positions start
// empty on each process start; domain.ReconstructPosition, the from-scratch
// fold, is not called from this package.
func (w *Worker) applyPositionFill(o *domain.Order) {
	key := o.UserID + "|" + o.Symbol

	w.posMu.Lock()
	pos, ok := w.positions[key]
	if !ok {
		pos = &domain.Position{UserID: o.UserID, Symbol: o.Symbol, Open: true}
	}
	pos.ApplyFill(o)
	w.positions[key] = pos
	w.posMu.Unlock()
}

// flushPositions upserts every tracked position to SQL, called on the same
// cadence as order flushes.
func (w *Worker) flushPositions(_ context.Context) {
	w.posMu.Lock()
	snap := make([]*domain.Position, 0, len(w.positions))
	for _, p := range w.positions {
		snap = append(snap, p)
	}
	w.posMu.Unlock()

	for _, p := range snap {
		rec := PositionRecord{
			UserID:      p.UserID,
			Symbol:      p.Symbol,
			Qty:         p.Qty,
			AvgPrice:    p.AvgPrice,
			RealizedPnL: p.RealizedPnL,
			UpdatedAt:   time.Now(),
		}
		err := w.sql.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
			UpdateAll: true,
		}).Create(&rec).Error
		if err != nil {
			log.Error().Err(err).Str("user_id", p.UserID).Str("symbol", p.Symbol).Msg("dsw: position flush failed")
		}
	}
}
