package om

import (
	"context"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
)

// Get returns the current record for orderID, or errs.ErrNotFound.
func (m *Manager) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	return m.store.GetOrder(ctx, orderID)
}

// History returns every transition recorded for orderID since afterID ("" for
// the full log), the recovery/replay primitive DSW's catch-up pass uses.
func (m *Manager) History(ctx context.Context, orderID, afterID string) ([]domain.Transition, []string, error) {
	return m.store.ReadTransitions(ctx, orderID, afterID)
}

// OrderFilter narrows ListByUser to orders matching non-zero fields.
type OrderFilter struct {
	Symbol string
	State  domain.State
}

func (f OrderFilter) matches(o *domain.Order) bool {
	if f.Symbol != "" && o.Symbol != f.Symbol {
		return false
	}
	if f.State != "" && o.State != f.State {
		return false
	}
	return true
}

// ListByUser returns every order belonging to userID matching filter. Orders
// that fail to load (evicted from the hot store) are skipped rather than
// failing the whole call.
func (m *Manager) ListByUser(ctx context.Context, userID string, filter OrderFilter) ([]*domain.Order, error) {
	ids, err := m.store.ListUserOrders(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Order, 0, len(ids))
	for _, id := range ids {
		o, err := m.store.GetOrder(ctx, id)
		if err != nil {
			continue
		}
		if filter.matches(o) {
			out = append(out, o)
		}
	}
	return out, nil
}
