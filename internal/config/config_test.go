package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"chefbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_ExpandsEnvAndDefaults(t *testing.T) {
	t.Setenv("TEST_WEBHOOK_SECRET", "s3cret")
	dbPath := filepath.Join(t.TempDir(), "nested", "chefbook.db")
	path := writeConfig(t, `
database:
  path: `+dbPath+`
catalog:
  base_url: http://catalog.local
  cache_ttl_seconds: 60
payment:
  webhook_secret: ${TEST_WEBHOOK_SECRET}
sweeper:
  timezone: Asia/Kolkata
add_ons:
  daily:
    tiffin: 250
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Payment.WebhookSecret)
	assert.DirExists(t, filepath.Dir(dbPath))
	assert.Equal(t, 8080, cfg.HTTPPort())
	assert.Equal(t, 5*time.Minute, cfg.SweepTimeout())
	assert.Equal(t, 10*time.Second, cfg.GatewayTimeout())
	assert.Equal(t, time.Minute, cfg.CatalogCacheTTL())
	assert.Equal(t, 2*time.Second, cfg.AMQPPublishTimeout())
	assert.True(t, cfg.SweeperEnabled())
	assert.Equal(t, "Asia/Kolkata", cfg.Location().String())
	assert.Equal(t, map[models.ServiceType]map[string]int64{
		models.ServiceDaily: {"tiffin": 250},
	}, cfg.AddOnPrices())
}

func TestLoad_Overrides(t *testing.T) {
	path := writeConfig(t, `
database:
  path: `+filepath.Join(t.TempDir(), "c.db")+`
http:
  port: 9000
catalog:
  base_url: http://catalog.local
payment:
  webhook_secret: x
sweeper:
  enabled: false
  timeout_seconds: 30
gateway:
  timeout_seconds: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.HTTPPort())
	assert.False(t, cfg.SweeperEnabled())
	assert.Equal(t, 30*time.Second, cfg.SweepTimeout())
	assert.Equal(t, 3*time.Second, cfg.GatewayTimeout())
	assert.Nil(t, cfg.AddOnPrices())
	assert.Equal(t, time.Local, cfg.Location())
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"MissingSecret", "catalog:\n  base_url: http://x\n"},
		{"MissingCatalog", "payment:\n  webhook_secret: x\n"},
		{"BadTimezone", "catalog:\n  base_url: http://x\npayment:\n  webhook_secret: x\nsweeper:\n  timezone: Mars/Olympus\n"},
		{"BadAddOnService", "catalog:\n  base_url: http://x\npayment:\n  webhook_secret: x\nadd_ons:\n  funeral:\n    flowers: 10\n"},
		{"BadYAML", "catalog: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
