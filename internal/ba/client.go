package ba

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

// BrokerAck is what the external broker returns for a successful submit.
type BrokerAck struct {
	BrokerOrderID string
	FilledQty     decimal.Decimal
	FilledPrice   decimal.Decimal
}

// wireClient talks to the (abstracted) broker HTTP API. It is the one place
// resty.Client is used, mirroring the teacher's exec/client.go shape: a thin
// wrapper with a base URL and a timeout per call.
type wireClient struct {
	http *resty.Client
}

func newWireClient(baseURL string, timeout time.Duration) *wireClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &wireClient{http: c}
}

func (w *wireClient) authenticate(ctx context.Context, creds domain.BrokerCredentials) (domain.BrokerCredentials, error) {
	var out domain.BrokerCredentials
	resp, err := w.http.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"api_key":   creds.APIKey,
			"client_id": creds.ClientID,
			"password":  creds.Password,
			"totp_seed": creds.TOTPSeed,
		}).
		SetResult(&out).
		Post("/session/authenticate")
	if err != nil {
		return out, errs.Wrap(errs.KindTransient, "ba.authenticate", err)
	}
	if resp.IsError() {
		return out, errs.New(errs.KindBrokerReject, "ba.authenticate", resp.Status())
	}
	return out, nil
}

func (w *wireClient) placeOrder(ctx context.Context, o *domain.Order, idempotencyKey string) (BrokerAck, error) {
	var ack BrokerAck
	resp, err := w.http.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", idempotencyKey).
		SetBody(map[string]any{
			"symbol":    o.Symbol,
			"side":      o.Side,
			"qty":       o.RequestedQty.String(),
			"price":     o.RequestedPrice.String(),
			"order_type": o.OrderType,
			"product":   o.Product,
		}).
		SetResult(&ack).
		Post("/orders")
	if err != nil {
		return ack, errs.Wrap(errs.KindTransient, "ba.submit", err)
	}
	if resp.StatusCode() >= 500 {
		return ack, errs.New(errs.KindTransient, "ba.submit", resp.Status())
	}
	if resp.IsError() {
		return ack, errs.New(errs.KindBrokerReject, "ba.submit", resp.Status())
	}
	return ack, nil
}

func (w *wireClient) cancelOrder(ctx context.Context, brokerOrderID string) error {
	resp, err := w.http.R().SetContext(ctx).Delete("/orders/" + brokerOrderID)
	if err != nil {
		return errs.Wrap(errs.KindTransient, "ba.cancel", err)
	}
	if resp.IsError() {
		return errs.New(errs.KindBrokerReject, "ba.cancel", resp.Status())
	}
	return nil
}

// retryPolicy is base 500ms, cap 10s, max 3 attempts with full jitter
// (spec §4.3).
type retryPolicy struct {
	base   time.Duration
	cap    time.Duration
	maxTry int
}

func (p retryPolicy) backoff(attempt int) time.Duration {
	d := p.base << attempt
	if d > p.cap || d <= 0 {
		d = p.cap
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// submitWithRetry retries Transient errors up to maxTry attempts; a
// BrokerReject is terminal and returned immediately.
func submitWithRetry(ctx context.Context, w *wireClient, o *domain.Order, idemKey string, p retryPolicy) (BrokerAck, error) {
	var lastErr error
	for attempt := 0; attempt < p.maxTry; attempt++ {
		o.RetryCount = attempt
		ack, err := w.placeOrder(ctx, o, idemKey)
		if err == nil {
			return ack, nil
		}
		lastErr = err
		if !errs.Retryable(err) {
			return ack, err
		}
		log.Warn().Err(err).Str("order_id", o.ID).Int("attempt", attempt+1).Msg("broker submit retrying")

		select {
		case <-ctx.Done():
			return ack, errs.Wrap(errs.KindTimeout, "ba.submit", ctx.Err())
		case <-time.After(p.backoff(attempt)):
		}
	}
	return BrokerAck{}, lastErr
}
