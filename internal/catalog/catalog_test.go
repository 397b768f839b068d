package catalog

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chefbook/internal/cache"
	"chefbook/internal/domain"
	"chefbook/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))
		switch r.URL.Path {
		case "/api/v1/chefs/chef-1":
			_, _ = w.Write([]byte(`{"id":"chef-1","hourly_rate":1000,"active":true}`))
		case "/api/v1/chefs/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_GetChef(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, &hits)
	logger := zerolog.New(io.Discard)
	c := NewClient(srv.URL, "secret", time.Second, &logger)
	ctx := context.Background()

	chef, err := c.GetChef(ctx, "chef-1")
	require.NoError(t, err)
	assert.Equal(t, &domain.Chef{ID: "chef-1", HourlyRate: 1000, Active: true}, chef)

	_, err = c.GetChef(ctx, "nobody")
	assert.True(t, domain.IsNotFound(err))

	_, err = c.GetChef(ctx, "broken")
	require.Error(t, err)
	assert.False(t, domain.IsNotFound(err))

	_, err = c.GetChef(ctx, "")
	var ve *domain.ValidationError
	assert.True(t, errors.As(err, &ve))
}

func TestClient_CachesInRedis(t *testing.T) {
	var hits atomic.Int32
	srv := newCatalogServer(t, &hits)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	logger := zerolog.New(io.Discard)
	c := NewClient(srv.URL, "secret", time.Second, &logger)
	c.UseCache(cache.NewRedisCache(rdb, "test:"), time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		chef, err := c.GetChef(ctx, "chef-1")
		require.NoError(t, err)
		assert.Equal(t, int64(1000), chef.HourlyRate)
	}
	assert.Equal(t, int32(1), hits.Load())

	c.Invalidate(ctx, "chef-1")
	_, err := c.GetChef(ctx, "chef-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	mr.FastForward(2 * time.Minute)
	_, err = c.GetChef(ctx, "chef-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())
}

func TestAddOns_Resolve(t *testing.T) {
	a := NewAddOns(nil)

	got, err := a.Resolve(models.ServiceBirthday, []string{"Cake", "dessert"})
	require.NoError(t, err)
	assert.Equal(t, []models.AddOn{{Name: "cake", Price: 800}, {Name: "dessert", Price: 600}}, got)

	_, err = a.Resolve(models.ServiceDaily, []string{"cake"})
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "add_ons", ve.Field)

	_, err = a.Resolve(models.ServiceBirthday, []string{"cake", "cake"})
	assert.True(t, errors.As(err, &ve))

	got, err = a.Resolve(models.ServiceMarriage, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAddOns_ConfiguredPrices(t *testing.T) {
	a := NewAddOns(map[models.ServiceType]map[string]int64{
		models.ServiceDaily: {" Tiffin ": 250},
	})
	assert.Equal(t, []models.AddOn{{Name: "tiffin", Price: 250}}, a.List(models.ServiceDaily))
	assert.Empty(t, a.List(models.ServiceBirthday))
}
