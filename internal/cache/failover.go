package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"chefbook/internal/metrics"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// Failover serves from primary and switches to fallback while primary errors.
// Once down, primary is tried again after recoveryInterval.
type Failover struct {
	primary  Cache
	fallback Cache
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

// NewFailover wraps primary and fallback.
func NewFailover(primary, fallback Cache, logger *zerolog.Logger) *Failover {
	return &Failover{primary: primary, fallback: fallback, logger: logger}
}

func (f *Failover) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if time.Since(f.lastCheck) > recoveryInterval {
		f.lastCheck = time.Now()
		return true
	}
	return false
}

func (f *Failover) markDown(err error) {
	if !f.isDown.Swap(true) && f.logger != nil {
		f.logger.Warn().Err(err).Msg("cache primary unavailable, switching to fallback")
	}
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
}

func (f *Failover) markUp() {
	if f.isDown.Swap(false) && f.logger != nil {
		f.logger.Info().Msg("cache primary recovered")
	}
}

// Get reads from primary, or from fallback while primary is down.
func (f *Failover) Get(ctx context.Context, key string) ([]byte, error) {
	if f.usePrimary() {
		val, err := f.primary.Get(ctx, key)
		if err == nil || errors.Is(err, ErrMiss) {
			f.markUp()
			return val, err
		}
		f.markDown(err)
	}
	metrics.IncCacheFallback()
	return f.fallback.Get(ctx, key)
}

// Set writes to primary, or to fallback while primary is down.
func (f *Failover) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.usePrimary() {
		err := f.primary.Set(ctx, key, value, ttl)
		if err == nil {
			f.markUp()
			return nil
		}
		f.markDown(err)
	}
	metrics.IncCacheFallback()
	return f.fallback.Set(ctx, key, value, ttl)
}

// Delete removes key from both backends.
func (f *Failover) Delete(ctx context.Context, key string) error {
	fbErr := f.fallback.Delete(ctx, key)
	if f.usePrimary() {
		if err := f.primary.Delete(ctx, key); err != nil {
			f.markDown(err)
		} else {
			f.markUp()
		}
	}
	return fbErr
}

// Down reports whether the fallback is currently serving.
func (f *Failover) Down() bool {
	return f.isDown.Load()
}
