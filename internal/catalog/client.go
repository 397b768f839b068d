// Package catalog resolves chefs from the external chef catalog service and
// add-ons from configuration.
package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chefbook/internal/cache"
	"chefbook/internal/domain"

	"github.com/rs/zerolog"
)

// Client fetches chefs from the catalog API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client

	cache    cache.Cache
	cacheTTL time.Duration
	logger   zerolog.Logger
}

var _ domain.ChefCatalog = (*Client)(nil)

// NewClient constructs a client with baseURL and API key.
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "catalog").Logger()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     l,
	}
}

// UseCache configures optional caching of chef lookups.
func (c *Client) UseCache(store cache.Cache, ttl time.Duration) {
	c.cache = store
	c.cacheTTL = ttl
}

// GetChef returns the chef or *domain.NotFoundError.
func (c *Client) GetChef(ctx context.Context, chefID string) (*domain.Chef, error) {
	if chefID == "" {
		return nil, domain.NewValidationError("chef_id", "is required")
	}
	cacheKey := "chef:" + chefID

	var chef domain.Chef
	if c.readCache(ctx, cacheKey, &chef) {
		return &chef, nil
	}

	endpoint := fmt.Sprintf("%s/api/v1/chefs/%s", c.baseURL, url.PathEscape(chefID))
	if err := c.doGet(ctx, endpoint, &chef); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, &domain.NotFoundError{Resource: "chef", ID: chefID}
		}
		return nil, fmt.Errorf("get chef %s: %w", chefID, err)
	}
	if chef.ID == "" {
		chef.ID = chefID
	}
	c.writeCache(ctx, cacheKey, chef)
	return &chef, nil
}

// Invalidate drops a cached chef.
func (c *Client) Invalidate(ctx context.Context, chefID string) {
	if c.cache == nil {
		return
	}
	_ = c.cache.Delete(ctx, "chef:"+chefID)
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.cache == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrMiss) {
			c.logger.Debug().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.cache == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, data, c.cacheTTL); err != nil {
		c.logger.Debug().Err(err).Str("key", key).Msg("cache write failed")
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d", e.code)
}

func (c *Client) doGet(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return &statusError{code: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// HealthCheck checks if the catalog API is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: %d", resp.StatusCode)
	}
	return nil
}
