package ba

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
)

func testOrder() *domain.Order {
	return &domain.Order{
		ID:             "ord-1",
		Symbol:         "AAPL",
		Side:           domain.SideBuy,
		OrderType:      domain.OrderTypeMarket,
		RequestedQty:   decimal.RequireFromString("10"),
		RequestedPrice: decimal.Zero,
	}
}

func TestSubmitWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"BrokerOrderID":"bo-1"}`))
	}))
	defer srv.Close()

	client := newWireClient(srv.URL, time.Second)
	order := testOrder()
	policy := retryPolicy{base: time.Millisecond, cap: 10 * time.Millisecond, maxTry: 5}

	ack, err := submitWithRetry(context.Background(), client, order, order.ID, policy)
	if err != nil {
		t.Fatalf("submitWithRetry: %v", err)
	}
	if ack.BrokerOrderID != "bo-1" {
		t.Errorf("BrokerOrderID = %q, want bo-1", ack.BrokerOrderID)
	}
	if order.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2 (zero-indexed attempt that finally succeeded)", order.RetryCount)
	}
}

func TestSubmitWithRetryStopsImmediatelyOnBrokerReject(t *testing.T) {
	t.Parallel()
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := newWireClient(srv.URL, time.Second)
	order := testOrder()
	policy := retryPolicy{base: time.Millisecond, cap: 10 * time.Millisecond, maxTry: 5}

	_, err := submitWithRetry(context.Background(), client, order, order.ID, policy)
	if err == nil {
		t.Fatal("expected an error for a 400 broker reject")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (a terminal reject must not retry)", attempts)
	}
}

func TestSubmitWithRetryExhaustsAttemptsOnPersistentFailure(t *testing.T) {
	t.Parallel()
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newWireClient(srv.URL, time.Second)
	order := testOrder()
	policy := retryPolicy{base: time.Millisecond, cap: 10 * time.Millisecond, maxTry: 3}

	_, err := submitWithRetry(context.Background(), client, order, order.ID, policy)
	if err == nil {
		t.Fatal("expected an error once attempts are exhausted")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3 (maxTry)", attempts)
	}
	if order.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2 (last attempt index before giving up)", order.RetryCount)
	}
}
