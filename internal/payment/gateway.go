package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chefbook/internal/domain"
	"chefbook/internal/metrics"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"
)

// GatewayConfig configures HTTPGateway.
type GatewayConfig struct {
	BaseURL   string
	KeyID     string
	KeySecret string
	Timeout   time.Duration
	// RatePerSecond and Burst bound outgoing calls. Zero disables limiting.
	RatePerSecond float64
	Burst         int
	// FailureThreshold consecutive failures open the breaker for OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

// HTTPGateway talks to the payment provider's REST API. Calls are never retried.
type HTTPGateway struct {
	baseURL    string
	keyID      string
	keySecret  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]
}

var _ domain.Gateway = (*HTTPGateway)(nil)

// NewHTTPGateway constructs a gateway client.
func NewHTTPGateway(cfg GatewayConfig) *HTTPGateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	threshold := cfg.FailureThreshold
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// 4xx answers mean the provider is healthy.
			var ge *domain.GatewayError
			if errors.As(err, &ge) && ge.StatusCode >= 400 && ge.StatusCode < 500 {
				return true
			}
			return err == nil
		},
	})

	return &HTTPGateway{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		keyID:      cfg.KeyID,
		keySecret:  cfg.KeySecret,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		limiter:    limiter,
		breaker:    breaker,
	}
}

type createOrderBody struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type refundBody struct {
	Amount int64             `json:"amount"`
	Notes  map[string]string `json:"notes,omitempty"`
}

// CreateOrder opens a payment order for the given amount in minor units.
func (g *HTTPGateway) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.Order, error) {
	body := createOrderBody{
		Amount:   req.AmountMinor,
		Currency: req.Currency,
		Receipt:  req.ReceiptRef,
		Notes:    req.Metadata,
	}
	var order domain.Order
	if err := g.doPost(ctx, "create_order", g.baseURL+"/v1/orders", body, &order); err != nil {
		return nil, err
	}
	if order.ID == "" {
		return nil, &domain.GatewayError{Op: "create_order", Err: errors.New("empty order id")}
	}
	return &order, nil
}

// Refund refunds part or all of a captured payment.
func (g *HTTPGateway) Refund(ctx context.Context, req domain.RefundRequest) (*domain.Refund, error) {
	if req.PaymentRef == "" {
		return nil, &domain.GatewayError{Op: "refund", Err: errors.New("payment reference is required")}
	}
	body := refundBody{Amount: req.AmountMinor, Notes: req.Metadata}
	endpoint := fmt.Sprintf("%s/v1/payments/%s/refund", g.baseURL, url.PathEscape(req.PaymentRef))
	var refund domain.Refund
	if err := g.doPost(ctx, "refund", endpoint, body, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (g *HTTPGateway) doPost(ctx context.Context, op, endpoint string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return &domain.GatewayError{Op: op, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.limiter.Wait(ctx); err != nil {
		metrics.IncGateway(op, "rate_limited")
		return &domain.GatewayError{Op: op, Err: fmt.Errorf("rate limit: %w", err)}
	}

	raw, err := g.breaker.Execute(func() ([]byte, error) {
		return g.do(ctx, op, endpoint, data)
	})
	if err != nil {
		metrics.IncGateway(op, "error")
		var ge *domain.GatewayError
		if errors.As(err, &ge) {
			return err
		}
		return &domain.GatewayError{Op: op, Err: err}
	}
	metrics.IncGateway(op, "ok")

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &domain.GatewayError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (g *HTTPGateway) do(ctx context.Context, op, endpoint string, data []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if g.keyID != "" {
		req.SetBasicAuth(g.keyID, g.keySecret)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, &domain.GatewayError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode >= 300 {
		return nil, &domain.GatewayError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(providerMessage(raw))}
	}
	return raw, nil
}

func providerMessage(raw []byte) string {
	var wrap struct {
		Error struct {
			Description string `json:"description"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &wrap); err == nil && wrap.Error.Description != "" {
		return wrap.Error.Description
	}
	msg := strings.TrimSpace(string(raw))
	if msg == "" {
		return "empty response"
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

// BreakerState reports the circuit breaker state.
func (g *HTTPGateway) BreakerState() gobreaker.State {
	return g.breaker.State()
}
