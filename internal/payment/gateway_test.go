package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chefbook/internal/domain"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGateway_CreateOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		var body createOrderBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, int64(360000), body.Amount)
		assert.Equal(t, "b1", body.Receipt)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":360000,"currency":"INR"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(GatewayConfig{BaseURL: srv.URL + "/", KeyID: "key", KeySecret: "secret"})
	order, err := gw.CreateOrder(context.Background(), domain.OrderRequest{AmountMinor: 360000, Currency: "INR", ReceiptRef: "b1"})
	require.NoError(t, err)
	assert.Equal(t, "order_abc", order.ID)
	assert.Equal(t, int64(360000), order.AmountMinor)
}

func TestHTTPGateway_Refund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay_1/refund", r.URL.Path)
		_, _ = w.Write([]byte(`{"id":"rfnd_1"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(GatewayConfig{BaseURL: srv.URL})
	refund, err := gw.Refund(context.Background(), domain.RefundRequest{PaymentRef: "pay_1", AmountMinor: 1000})
	require.NoError(t, err)
	assert.Equal(t, "rfnd_1", refund.ID)

	_, err = gw.Refund(context.Background(), domain.RefundRequest{})
	var ge *domain.GatewayError
	assert.True(t, errors.As(err, &ge))
}

func TestHTTPGateway_RefundEscapesPaymentRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pay%2F..%2Forders%3Fx=1/refund", r.URL.EscapedPath())
		assert.Empty(t, r.URL.RawQuery)
		_, _ = w.Write([]byte(`{"id":"rfnd_2"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(GatewayConfig{BaseURL: srv.URL})
	refund, err := gw.Refund(context.Background(), domain.RefundRequest{PaymentRef: "pay/../orders?x=1", AmountMinor: 1000})
	require.NoError(t, err)
	assert.Equal(t, "rfnd_2", refund.ID)
}

func TestHTTPGateway_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"description":"amount too small"}}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(GatewayConfig{BaseURL: srv.URL})
	_, err := gw.CreateOrder(context.Background(), domain.OrderRequest{AmountMinor: 1})

	var ge *domain.GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, http.StatusBadRequest, ge.StatusCode)
	assert.Contains(t, err.Error(), "amount too small")
	assert.Equal(t, gobreaker.StateClosed, gw.BreakerState())
}

func TestHTTPGateway_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	gw := NewHTTPGateway(GatewayConfig{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := gw.CreateOrder(context.Background(), domain.OrderRequest{AmountMinor: 100})
	var ge *domain.GatewayError
	assert.True(t, errors.As(err, &ge))
}

func TestHTTPGateway_BreakerOpensWithoutRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	gw := NewHTTPGateway(GatewayConfig{BaseURL: srv.URL, FailureThreshold: 2, OpenTimeout: time.Minute})
	for i := 0; i < 4; i++ {
		_, err := gw.CreateOrder(context.Background(), domain.OrderRequest{AmountMinor: 100})
		var ge *domain.GatewayError
		assert.True(t, errors.As(err, &ge))
	}

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, gobreaker.StateOpen, gw.BreakerState())
}
