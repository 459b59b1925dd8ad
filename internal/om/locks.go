package om

import (
	"context"
	"fmt"

	"github.com/jai-bhardwaj/tradecore/internal/errs"
	"github.com/jai-bhardwaj/tradecore/internal/hotstore"
)

// keyScope names a lockable resource; lockSet always acquires in the fixed
// order order -> user -> symbol (spec §5), regardless of the order callers
// list them in, so two goroutines contending for overlapping sets can never
// deadlock on each other.
type keyScope int

const (
	scopeOrder keyScope = iota
	scopeUser
	scopeSymbol
)

type lockKey struct {
	scope keyScope
	id    string
}

func orderLockKey(orderID string) lockKey { return lockKey{scopeOrder, orderID} }
func userLockKey(userID string) lockKey   { return lockKey{scopeUser, userID} }
func symbolLockKey(symbol string) lockKey { return lockKey{scopeSymbol, symbol} }

func (k lockKey) redisKey() string {
	switch k.scope {
	case scopeOrder:
		return fmt.Sprintf("order:%s", k.id)
	case scopeUser:
		return fmt.Sprintf("user:%s", k.id)
	default:
		return fmt.Sprintf("symbol:%s", k.id)
	}
}

// lockSet holds the distributed locks acquired for one mutation, in scope
// order, so Release can hand them back in the reverse order it took them.
type lockSet struct {
	locks []*hotstore.DistLock
}

// acquireLocks takes the union of keys, de-duplicated, sorted into the fixed
// order -> user -> symbol scope ordering. Any acquisition failure releases
// everything already held before returning.
func (m *Manager) acquireLocks(ctx context.Context, keys ...lockKey) (*lockSet, error) {
	ordered := dedupAndOrder(keys)
	ls := &lockSet{}
	for _, k := range ordered {
		lock, err := m.store.AcquireLock(ctx, k.redisKey(), m.lockTTL, m.lockTimeout)
		if err != nil {
			ls.release(ctx)
			return nil, errs.Wrap(errs.KindLockTimeout, "om.lock", err)
		}
		ls.locks = append(ls.locks, lock)
	}
	return ls, nil
}

func (ls *lockSet) release(ctx context.Context) {
	for i := len(ls.locks) - 1; i >= 0; i-- {
		_ = ls.locks[i].Release(ctx)
	}
}

func dedupAndOrder(keys []lockKey) []lockKey {
	seen := make(map[lockKey]bool, len(keys))
	var uniq []lockKey
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	for i := 0; i < len(uniq); i++ {
		for j := i + 1; j < len(uniq); j++ {
			if uniq[j].scope < uniq[i].scope {
				uniq[i], uniq[j] = uniq[j], uniq[i]
			}
		}
	}
	return uniq
}
