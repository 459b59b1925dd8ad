package ba

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/jai-bhardwaj/tradecore/internal/eventbus"
)

// wireEvent is the broker's wire shape for a fill/reject push, decoded off
// the websocket exactly the way the teacher's feeds/polymarket_ws.go decodes
// its market-data frames.
type wireEvent struct {
	OrderID   string `json:"order_id"`
	BrokerID  string `json:"broker_order_id"`
	Event     string `json:"event"`
	FilledQty string `json:"filled_qty"`
	FillPrice string `json:"fill_price"`
	Reason    string `json:"reason"`
	EventID   string `json:"event_id"` // broker-assigned idempotency key, if sent
}

// idempotencyKey is the key duplicate-ack folding dedups on: the broker's own
// event id when present, otherwise a composite of the fields that make a
// redelivered push indistinguishable from the original.
func (we wireEvent) idempotencyKey() string {
	if we.EventID != "" {
		return we.EventID
	}
	return we.OrderID + "|" + we.Event + "|" + we.BrokerID + "|" + we.FilledQty + "|" + we.FillPrice
}

// userEventStream is one user's bounded pending-event buffer (bufSize
// entries, 1024 when unset); overflow drops the oldest pending event with a
// logged warning (spec §4.3).
type userEventStream struct {
	userID string
	buf    chan eventbus.BrokerEvent
}

func newUserEventStream(userID string, bufSize int) *userEventStream {
	if bufSize <= 0 {
		bufSize = 1024
	}
	return &userEventStream{userID: userID, buf: make(chan eventbus.BrokerEvent, bufSize)}
}

// push enqueues evt, dropping the oldest buffered event to make room rather
// than blocking the websocket read loop.
func (s *userEventStream) push(evt eventbus.BrokerEvent) {
	for {
		select {
		case s.buf <- evt:
			return
		default:
			select {
			case <-s.buf:
				log.Warn().Str("user_id", s.userID).Msg("broker event buffer full, dropping oldest")
			default:
			}
		}
	}
}

// RunEventStream dials wsURL and forwards decoded broker events into the
// adapter's event bus until ctx is cancelled, reconnecting with a fixed
// backoff on disconnect.
func (a *Adapter) RunEventStream(ctx context.Context, wsURL string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := a.consumeEventStream(ctx, wsURL); err != nil {
			log.Error().Err(err).Msg("broker event stream disconnected, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
		}
	}
}

func (a *Adapter) consumeEventStream(ctx context.Context, wsURL string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		var we wireEvent
		if err := json.Unmarshal(raw, &we); err != nil {
			log.Warn().Err(err).Msg("malformed broker event frame")
			continue
		}
		a.handleWireEvent(ctx, we)
	}
}
