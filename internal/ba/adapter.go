package ba

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/tradecore/internal/config"
	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
	"github.com/jai-bhardwaj/tradecore/internal/eventbus"
	"github.com/jai-bhardwaj/tradecore/internal/hotstore"
	"github.com/jai-bhardwaj/tradecore/internal/om"
)

// Adapter is the Broker Adapter service: session registry, HTTP submission
// client, and per-user event fan-out (spec §4.3).
type Adapter struct {
	registry *Registry
	store    *hotstore.Store
	bus      *eventbus.Bus
	om       *om.Manager
	wire     *wireClient
	retry    retryPolicy

	submitTimeout time.Duration
	idleTTL       time.Duration
	healthWin     time.Duration
	errorRatePct  float64
	authFailMax   int
	eventBufSize  int
	secretKey     [32]byte

	streamsMu sync.Mutex
	streams   map[string]*userEventStream

	healthMu sync.Mutex
	health   map[sessionKey]*healthWindow
}

// New builds an Adapter. brokerBaseURL is the abstracted external broker HTTP
// endpoint (the event-stream URL is passed to RunEventStream); in PAPER mode BA is simply never consulted
// (QD routes paper orders to MME instead, per spec §9's explicit mode flag).
func New(store *hotstore.Store, bus *eventbus.Bus, mgr *om.Manager, cfg *config.Config, brokerBaseURL string) *Adapter {
	return &Adapter{
		registry:      newRegistry(),
		store:         store,
		bus:           bus,
		om:            mgr,
		wire:          newWireClient(brokerBaseURL, time.Duration(cfg.BrokerSubmitTimeoutMs)*time.Millisecond),
		retry: retryPolicy{
			base:   time.Duration(cfg.BrokerRetryBaseMs) * time.Millisecond,
			cap:    time.Duration(cfg.BrokerRetryCapMs) * time.Millisecond,
			maxTry: cfg.BrokerRetryMax,
		},
		submitTimeout: time.Duration(cfg.BrokerSubmitTimeoutMs) * time.Millisecond,
		idleTTL:       time.Duration(cfg.SessionInactiveTTLMs) * time.Millisecond,
		healthWin:     cfg.SessionHealthWindow,
		errorRatePct:  cfg.SessionErrorRatePct,
		authFailMax:   cfg.SessionAuthFailMax,
		eventBufSize:  cfg.BrokerEventBufferSize,
		secretKey:     deriveSessionKey(cfg.SessionEncryptionKey),
		streams:       make(map[string]*userEventStream),
		health:        make(map[sessionKey]*healthWindow),
	}
}

// AddUser authenticates credentials and registers a HEALTHY session for
// (userID, credentialID).
func (a *Adapter) AddUser(ctx context.Context, userID, credentialID, brokerType string, creds domain.BrokerCredentials) error {
	now := time.Now()
	sess := &domain.Session{
		ID:           credentialID,
		UserID:       userID,
		CredentialID: credentialID,
		BrokerType:   brokerType,
		Creds:        creds,
		LastActivity: now,
		Health:       domain.HealthAuthenticating,
		CreatedAt:    now,
	}
	a.registry.add(userID, credentialID, sess)

	refreshed, err := a.wire.authenticate(ctx, creds)
	if err != nil {
		a.recordAuthFailure(userID, credentialID)
		return err
	}
	sess.Creds.AccessToken = refreshed.AccessToken
	sess.Creds.RefreshToken = refreshed.RefreshToken
	sess.Creds.TokenExpiry = refreshed.TokenExpiry
	sess.Health = domain.HealthHealthy
	return a.saveSessionEncrypted(ctx, sess)
}

// saveSessionEncrypted mirrors sess into hotstore with every credential field
// sealed under the adapter's session key (spec §3: credentials encrypted at
// rest). The in-memory registry copy (sess itself) is left in plaintext —
// that copy never leaves the process and is what every broker call needs.
func (a *Adapter) saveSessionEncrypted(ctx context.Context, sess *domain.Session) error {
	enc := sess.Clone()
	creds, err := encryptCredentials(a.secretKey, sess.Creds)
	if err != nil {
		return errs.Wrap(errs.KindFatal, "ba.encrypt_session", err)
	}
	enc.Creds = creds
	return a.store.SaveSession(ctx, enc)
}

// RemoveUser tears down a session.
func (a *Adapter) RemoveUser(ctx context.Context, userID, credentialID string) error {
	a.registry.remove(userID, credentialID)
	return a.store.DeleteSession(ctx, userID, credentialID)
}

// ListSessions returns a snapshot of every session registered for userID.
func (a *Adapter) ListSessions(userID string) []*domain.Session {
	return a.registry.listByUser(userID)
}

// SubscribeEvents returns the bounded, drop-oldest event buffer for userID,
// creating it lazily on first subscription.
func (a *Adapter) SubscribeEvents(userID string) <-chan eventbus.BrokerEvent {
	a.streamsMu.Lock()
	defer a.streamsMu.Unlock()
	s, ok := a.streams[userID]
	if !ok {
		s = newUserEventStream(userID, a.eventBufSize)
		a.streams[userID] = s
	}
	return s.buf
}

func (a *Adapter) fanOut(userID string, evt eventbus.BrokerEvent) {
	a.streamsMu.Lock()
	s, ok := a.streams[userID]
	a.streamsMu.Unlock()
	if ok {
		s.push(evt)
	}
	a.bus.PublishBrokerEvent(evt)
}

// brokerAckDedupWindow bounds how long a wire event's idempotency key is
// remembered for duplicate-ack folding. A push redelivered after this window
// is treated as a new event, which is fine in practice: the broker's own
// redelivery window for a dropped ack is measured in minutes, not hours.
const brokerAckDedupWindow = 24 * time.Hour

// handleWireEvent folds a broker-pushed fill/reject/cancel push back through
// OM, the piece that actually lands a LIVE order in FILLED/REJECTED/CANCELLED
// — Submit only ever drives PLACING -> PLACED, and has no way to observe a
// fill that happens after the HTTP response (spec §4.3).
func (a *Adapter) handleWireEvent(ctx context.Context, we wireEvent) {
	first, err := a.store.ReserveBrokerAck(ctx, "event:"+we.idempotencyKey(), brokerAckDedupWindow)
	if err != nil {
		log.Error().Err(err).Str("order_id", we.OrderID).Msg("broker event dedup check failed")
	} else if !first {
		log.Info().Str("order_id", we.OrderID).Str("event", we.Event).Msg("duplicate broker event folded")
		return
	}

	filledQty, _ := decimal.NewFromString(we.FilledQty)
	fillPrice, _ := decimal.NewFromString(we.FillPrice)
	evt := eventbus.BrokerEvent{
		OrderID:   we.OrderID,
		BrokerID:  we.BrokerID,
		Event:     we.Event,
		FilledQty: filledQty,
		FillPrice: fillPrice,
		Reason:    we.Reason,
	}

	order, err := a.om.Get(ctx, we.OrderID)
	if err != nil {
		log.Error().Err(err).Str("order_id", we.OrderID).Msg("broker event for unknown order")
		a.bus.PublishBrokerEvent(evt)
		return
	}
	a.fanOut(order.UserID, evt)

	switch we.Event {
	case "fill":
		if err := a.applyFillEvent(ctx, order, filledQty, fillPrice); err != nil {
			log.Error().Err(err).Str("order_id", we.OrderID).Msg("applying broker fill failed")
		}
	case "reject":
		if _, err := a.om.Reject(ctx, we.OrderID, "broker", we.Reason); err != nil {
			log.Error().Err(err).Str("order_id", we.OrderID).Msg("broker reject transition failed")
		}
	case "cancel":
		if _, err := a.om.Transition(ctx, we.OrderID, domain.StateCancelled, "broker", we.Reason, nil, nil); err != nil {
			log.Error().Err(err).Str("order_id", we.OrderID).Msg("broker cancel-confirm transition failed")
		}
	default:
		log.Warn().Str("order_id", we.OrderID).Str("event", we.Event).Msg("unrecognized broker event type")
	}
}

// applyFillEvent folds qty/price into order, moving PLACED -> FILLING on the
// first report and FILLING -> FILLED once nothing remains, using FILLING's
// self-edge to accumulate further partial fills in between.
func (a *Adapter) applyFillEvent(ctx context.Context, order *domain.Order, qty, price decimal.Decimal) error {
	if order.State == domain.StatePlaced {
		updated, err := a.om.Fill(ctx, order.ID, domain.StateFilling, "broker", qty, price)
		if err != nil {
			return err
		}
		order = updated
		qty = decimal.Zero
	}
	if order.RemainingQty().Sub(qty).Sign() <= 0 {
		_, err := a.om.Fill(ctx, order.ID, domain.StateFilled, "broker", qty, price)
		return err
	}
	if qty.Sign() > 0 {
		_, err := a.om.Fill(ctx, order.ID, domain.StateFilling, "broker", qty, price)
		return err
	}
	return nil
}

// Submit is the qd.Handler BA exposes to the dispatcher: it loads the order,
// finds its session, submits with retry, and folds the result back through
// OM as the appropriate transition.
func (a *Adapter) Submit(ctx context.Context, item domain.QueueItem) error {
	ctx, cancel := context.WithTimeout(ctx, a.submitTimeout)
	defer cancel()

	order, err := a.om.Get(ctx, item.OrderID)
	if err != nil {
		return err
	}

	userID := order.UserID
	credentialID := item.Meta["credential_id"]
	hs, err := a.registry.get(userID, credentialID)
	if err != nil {
		return err
	}

	hs.mu.Lock()
	sess := hs.sess
	hs.mu.Unlock()
	if sess.Health == domain.HealthExpired {
		return errs.New(errs.KindBrokerReject, "ba.submit", "session expired").WithOrder(order.ID)
	}

	placing, err := a.om.Transition(ctx, order.ID, domain.StatePlacing, "ba", "submitting to broker", nil, nil)
	if err != nil {
		return err
	}
	order = placing

	ack, err := submitWithRetry(ctx, a.wire, order, order.ID, a.retry)
	a.recordOutcome(userID, credentialID, err == nil)
	if err != nil {
		// Persist the retry count the loop above recorded on order before
		// Reject's internal re-fetch overwrites our in-memory copy.
		if saveErr := a.store.SaveOrder(ctx, order); saveErr != nil {
			log.Error().Err(saveErr).Str("order_id", order.ID).Msg("persisting retry count before reject failed")
		}
		if _, rErr := a.om.Reject(ctx, order.ID, "ba", err.Error()); rErr != nil {
			log.Error().Err(rErr).Str("order_id", order.ID).Msg("reject after exhausted retries failed")
		}
		if errs.Retryable(err) {
			return err
		}
		return nil
	}

	// order.ID doubles as the submit idempotency key (client.go's
	// Idempotency-Key header): a second ack recorded under the same key is
	// folded instead of re-transitioning the order. A redelivered queue item
	// for an order already past PENDING does not get here; the PLACING
	// transition above refuses it.
	firstAck, dedupErr := a.store.ReserveBrokerAck(ctx, "submit:"+order.ID, brokerAckDedupWindow)
	if dedupErr != nil {
		log.Error().Err(dedupErr).Str("order_id", order.ID).Msg("submit ack dedup check failed")
	} else if !firstAck {
		log.Info().Str("order_id", order.ID).Msg("duplicate broker submit ack folded")
		return nil
	}

	order.BrokerID = ack.BrokerOrderID
	if err := a.store.SaveOrder(ctx, order); err != nil {
		return err
	}
	_, err = a.om.Transition(ctx, order.ID, domain.StatePlaced, "ba", "broker acked", nil, nil)
	return err
}

// Cancel requests cancellation at the broker for a PLACED order.
func (a *Adapter) Cancel(ctx context.Context, userID, credentialID string, order *domain.Order) error {
	if order.BrokerID == "" {
		return errs.New(errs.KindValidation, "ba.cancel", "order has no broker id yet")
	}
	return a.wire.cancelOrder(ctx, order.BrokerID)
}

func (a *Adapter) recordOutcome(userID, credentialID string, success bool) {
	key := sessionKey{userID, credentialID}
	a.healthMu.Lock()
	hw, ok := a.health[key]
	if !ok {
		hw = newHealthWindow(a.healthWin)
		a.health[key] = hw
	}
	a.healthMu.Unlock()

	now := time.Now()
	hw.record(success, now)

	hs, err := a.registry.get(userID, credentialID)
	if err != nil {
		return
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.sess.LastActivity = now
	if success {
		hs.sess.Health = domain.HealthHealthy
		hs.sess.ErrorCount = 0
		return
	}
	hs.sess.ErrorCount++
	if hw.errorRatePct(now) > a.errorRatePct {
		hs.sess.Health = domain.HealthDegraded
	}
}

func (a *Adapter) recordAuthFailure(userID, credentialID string) {
	hs, err := a.registry.get(userID, credentialID)
	if err != nil {
		return
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.sess.ErrorCount++
	if hs.sess.ErrorCount >= a.authFailMax {
		hs.sess.Health = domain.HealthExpired
	} else {
		hs.sess.Health = domain.HealthError
	}
}

// RunTokenRefresh periodically re-authenticates any session for which
// NeedsRefresh holds, measured from the session's CreatedAt (a refresh does
// not move that start point), until ctx is cancelled.
func (a *Adapter) RunTokenRefresh(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.refreshDueSessions(ctx)
		}
	}
}

func (a *Adapter) refreshDueSessions(ctx context.Context) {
	a.registry.mu.Lock()
	var due []*heldSession
	for _, hs := range a.registry.sessions {
		hs.mu.Lock()
		if hs.sess.NeedsRefresh(time.Now(), hs.sess.CreatedAt) {
			due = append(due, hs)
		}
		hs.mu.Unlock()
	}
	a.registry.mu.Unlock()

	for _, hs := range due {
		hs.mu.Lock()
		creds := hs.sess.Creds
		userID, credentialID := hs.sess.UserID, hs.sess.CredentialID
		hs.mu.Unlock()

		refreshed, err := a.wire.authenticate(ctx, creds)
		if err != nil {
			a.recordAuthFailure(userID, credentialID)
			continue
		}
		hs.mu.Lock()
		hs.sess.Creds.AccessToken = refreshed.AccessToken
		hs.sess.Creds.RefreshToken = refreshed.RefreshToken
		hs.sess.Creds.TokenExpiry = refreshed.TokenExpiry
		hs.sess.Health = domain.HealthHealthy
		sessCopy := hs.sess.Clone()
		hs.mu.Unlock()
		if err := a.saveSessionEncrypted(ctx, sessCopy); err != nil {
			log.Error().Err(err).Str("user_id", userID).Str("credential_id", credentialID).Msg("persisting refreshed session failed")
		}
	}
}
