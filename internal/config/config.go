package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"chefbook/internal/models"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when CHEFBOOK_CONFIG_PATH is unset.
const DefaultPath = "configs/config.yaml"

type Config struct {
	HTTP struct {
		Port                int `yaml:"port"`
		ReadTimeoutSeconds  int `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int `yaml:"write_timeout_seconds"`
	} `yaml:"http"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`

	Catalog struct {
		BaseURL         string `yaml:"base_url"`
		APIKey          string `yaml:"api_key"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"catalog"`

	Gateway struct {
		BaseURL            string  `yaml:"base_url"`
		KeyID              string  `yaml:"key_id"`
		KeySecret          string  `yaml:"key_secret"`
		TimeoutSeconds     int     `yaml:"timeout_seconds"`
		RatePerSecond      float64 `yaml:"rate_per_second"`
		Burst              int     `yaml:"burst"`
		FailureThreshold   uint32  `yaml:"failure_threshold"`
		OpenTimeoutSeconds int     `yaml:"open_timeout_seconds"`
	} `yaml:"gateway"`

	Payment struct {
		WebhookSecret string `yaml:"webhook_secret"`
		Currency      string `yaml:"currency"`
	} `yaml:"payment"`

	Sweeper struct {
		Enabled        *bool  `yaml:"enabled"`
		Schedule       string `yaml:"schedule"`
		Timezone       string `yaml:"timezone"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"sweeper"`

	AMQP struct {
		URL                   string `yaml:"url"`
		Exchange              string `yaml:"exchange"`
		PublishTimeoutSeconds int    `yaml:"publish_timeout_seconds"`
	} `yaml:"amqp"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	// AddOns maps service type to add-on name to price. Empty uses built-in prices.
	AddOns map[string]map[string]int64 `yaml:"add_ons"`
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/chefbook.db"
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Payment.WebhookSecret == "" {
		return fmt.Errorf("payment.webhook_secret is required")
	}
	if c.Catalog.BaseURL == "" {
		return fmt.Errorf("catalog.base_url is required")
	}
	if c.Sweeper.Timezone != "" {
		if _, err := time.LoadLocation(c.Sweeper.Timezone); err != nil {
			return fmt.Errorf("sweeper.timezone: %w", err)
		}
	}
	for st := range c.AddOns {
		if !models.ServiceType(st).Valid() {
			return fmt.Errorf("add_ons: unknown service type %q", st)
		}
	}
	return nil
}

func (c *Config) HTTPPort() int {
	if c.HTTP.Port <= 0 {
		return 8080
	}
	return c.HTTP.Port
}

func (c *Config) HTTPReadTimeout() time.Duration {
	return seconds(c.HTTP.ReadTimeoutSeconds, 15*time.Second)
}

func (c *Config) HTTPWriteTimeout() time.Duration {
	return seconds(c.HTTP.WriteTimeoutSeconds, 15*time.Second)
}

func (c *Config) CatalogTimeout() time.Duration {
	return seconds(c.Catalog.TimeoutSeconds, 10*time.Second)
}

// CatalogCacheTTL is zero when caching is disabled.
func (c *Config) CatalogCacheTTL() time.Duration {
	if c.Catalog.CacheTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Catalog.CacheTTLSeconds) * time.Second
}

func (c *Config) GatewayTimeout() time.Duration {
	return seconds(c.Gateway.TimeoutSeconds, 10*time.Second)
}

func (c *Config) GatewayOpenTimeout() time.Duration {
	return seconds(c.Gateway.OpenTimeoutSeconds, 30*time.Second)
}

func (c *Config) SweeperEnabled() bool {
	return c.Sweeper.Enabled == nil || *c.Sweeper.Enabled
}

func (c *Config) SweepTimeout() time.Duration {
	return seconds(c.Sweeper.TimeoutSeconds, 5*time.Minute)
}

// Location returns the business timezone used by the sweeper and refunds.
func (c *Config) Location() *time.Location {
	if c.Sweeper.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Sweeper.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

func (c *Config) AMQPPublishTimeout() time.Duration {
	return seconds(c.AMQP.PublishTimeoutSeconds, 2*time.Second)
}

func (c *Config) HealthCheckPort() int {
	if c.Monitoring.HealthCheckPort <= 0 {
		return 8090
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort <= 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

// AddOnPrices returns the configured add-on prices keyed by service type, or nil.
func (c *Config) AddOnPrices() map[models.ServiceType]map[string]int64 {
	if len(c.AddOns) == 0 {
		return nil
	}
	out := make(map[models.ServiceType]map[string]int64, len(c.AddOns))
	for st, items := range c.AddOns {
		out[models.ServiceType(st)] = items
	}
	return out
}

func seconds(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}
