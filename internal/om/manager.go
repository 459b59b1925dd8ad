// Package om is the Order Manager: the only component allowed to mutate an
// order's state machine (spec §4.1). It owns signal ingestion, duplicate and
// rate-limit enforcement, per-key locking, transition legality, and the
// append-only transition log. Everything else (QD, BA, MME, DSW) only reads
// orders or asks OM to transition one.
package om

import (
	"time"

	"github.com/jai-bhardwaj/tradecore/internal/config"
	"github.com/jai-bhardwaj/tradecore/internal/eventbus"
	"github.com/jai-bhardwaj/tradecore/internal/hotstore"
)

// Manager is the Order Manager service. It is safe for concurrent use; all
// mutation paths fence themselves with hotstore's distributed locks before
// touching an order.
type Manager struct {
	store *hotstore.Store
	bus   *eventbus.Bus

	minOrderInterval time.Duration
	lockTTL          time.Duration
	lockTimeout      time.Duration
	dedupWindow      time.Duration
}

// New builds a Manager from config. dedupWindow is the fingerprint collapse
// window signals are bucketed into (spec §3); it is a separate field from
// minOrderInterval, the flat per-user cooldown (spec §4.1), but New sets both
// from cfg.MinOrderIntervalMs.
func New(store *hotstore.Store, bus *eventbus.Bus, cfg *config.Config) *Manager {
	return &Manager{
		store:            store,
		bus:              bus,
		minOrderInterval: time.Duration(cfg.MinOrderIntervalMs) * time.Millisecond,
		lockTTL:          30 * time.Second,
		lockTimeout:      time.Duration(cfg.LockTimeoutMs) * time.Millisecond,
		dedupWindow:      time.Duration(cfg.MinOrderIntervalMs) * time.Millisecond,
	}
}
