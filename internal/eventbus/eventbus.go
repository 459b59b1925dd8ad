// Package eventbus breaks the cyclic references between OM, QD, BA and MME
// (design note in spec §9) with a small typed pub/sub bus instead of having
// components reach into each other's state directly.
package eventbus

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
)

// OrderStateChanged is published by OM whenever a transition commits.
type OrderStateChanged struct {
	Order  *domain.Order
	From   domain.State
	To     domain.State
	Reason string
}

// BrokerEvent is published by BA when the external venue pushes something
// about a previously submitted LIVE order. MME does not publish BrokerEvents;
// paper fills are visible only as OrderStateChanged.
type BrokerEvent struct {
	OrderID   string
	BrokerID  string
	Event     string // the broker's event type as pushed; BA acts on "fill", "reject", "cancel"
	FilledQty decimal.Decimal
	FillPrice decimal.Decimal
	Reason    string
}

// Bus is a process-wide fan-out of typed events. Each Subscribe call gets its
// own buffered channel; a slow subscriber does not block Publish for others -
// instead Publish drops the new event for that subscriber and logs a warning.
// (BA's per-user event stream drops the oldest pending event instead.)
type Bus struct {
	mu                 sync.RWMutex
	orderSubs          map[int]chan OrderStateChanged
	brokerSubs         map[int]chan BrokerEvent
	nextID             int
	subscriberBufSize  int
}

// New creates a Bus whose subscriber channels are buffered to bufSize.
func New(bufSize int) *Bus {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Bus{
		orderSubs:         make(map[int]chan OrderStateChanged),
		brokerSubs:        make(map[int]chan BrokerEvent),
		subscriberBufSize: bufSize,
	}
}

// SubscribeOrderEvents registers a new subscriber and returns its channel plus
// an unsubscribe func.
func (b *Bus) SubscribeOrderEvents() (<-chan OrderStateChanged, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan OrderStateChanged, b.subscriberBufSize)
	b.orderSubs[id] = ch
	return ch, func() { b.unsubscribeOrder(id) }
}

func (b *Bus) unsubscribeOrder(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.orderSubs[id]; ok {
		delete(b.orderSubs, id)
		close(ch)
	}
}

// PublishOrderEvent fans an OrderStateChanged out to every live subscriber.
func (b *Bus) PublishOrderEvent(evt OrderStateChanged) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.orderSubs {
		select {
		case ch <- evt:
		default:
			log.Warn().Int("subscriber", id).Str("order_id", evt.Order.ID).Msg("order event dropped, subscriber buffer full")
		}
	}
}

// SubscribeBrokerEvents registers a new subscriber for BA/MME fill events.
func (b *Bus) SubscribeBrokerEvents() (<-chan BrokerEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	ch := make(chan BrokerEvent, b.subscriberBufSize)
	b.brokerSubs[id] = ch
	return ch, func() { b.unsubscribeBroker(id) }
}

func (b *Bus) unsubscribeBroker(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.brokerSubs[id]; ok {
		delete(b.brokerSubs, id)
		close(ch)
	}
}

// PublishBrokerEvent fans a BrokerEvent out to every live subscriber.
func (b *Bus) PublishBrokerEvent(evt BrokerEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, ch := range b.brokerSubs {
		select {
		case ch <- evt:
		default:
			log.Warn().Int("subscriber", id).Str("order_id", evt.OrderID).Msg("broker event dropped, subscriber buffer full")
		}
	}
}
