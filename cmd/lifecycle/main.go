package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"chefbook/internal/api"
	"chefbook/internal/cache"
	"chefbook/internal/catalog"
	"chefbook/internal/config"
	"chefbook/internal/database"
	"chefbook/internal/events"
	"chefbook/internal/lifecycle"
	"chefbook/internal/metrics"
	"chefbook/internal/payment"
	"chefbook/internal/repository"
	"chefbook/internal/sweeper"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	// Initialize logger
	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	logger := zerolog.New(output).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load(os.Getenv("CHEFBOOK_CONFIG_PATH"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open db error")
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo := repository.NewBookingRepository(db)

	// Chef lookups are cached in redis with an in-memory fallback.
	chefs := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.APIKey, cfg.CatalogTimeout(), &logger)
	var rdb *redis.Client
	if ttl := cfg.CatalogCacheTTL(); ttl > 0 {
		memory := cache.NewMemoryCache()
		go memory.StartCleanup(ctx, time.Minute)

		var store cache.Cache = memory
		if cfg.Redis.Address != "" {
			rdb = redis.NewClient(&redis.Options{Addr: cfg.Redis.Address, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
			defer rdb.Close()
			prefix := cfg.Redis.Prefix
			if prefix == "" {
				prefix = "chefbook:"
			}
			store = cache.NewFailover(cache.NewRedisCache(rdb, prefix), memory, &logger)
		}
		chefs.UseCache(store, ttl)
	}

	bus := events.NewEventBus(&logger)
	if cfg.AMQP.URL != "" {
		exchange := cfg.AMQP.Exchange
		if exchange == "" {
			exchange = "chefbook.events"
		}
		pub, err := events.NewAMQPPublisher(cfg.AMQP.URL, exchange)
		if err != nil {
			logger.Error().Err(err).Msg("amqp unavailable, lifecycle events stay in-process")
		} else {
			defer pub.Close()
			events.NewForwarder(pub, cfg.AMQPPublishTimeout(), &logger).Attach(bus)
		}
	}

	bookings := lifecycle.NewService(repo, chefs, catalog.NewAddOns(cfg.AddOnPrices()), bus, &logger)

	gateway := payment.NewHTTPGateway(payment.GatewayConfig{
		BaseURL:          cfg.Gateway.BaseURL,
		KeyID:            cfg.Gateway.KeyID,
		KeySecret:        cfg.Gateway.KeySecret,
		Timeout:          cfg.GatewayTimeout(),
		RatePerSecond:    cfg.Gateway.RatePerSecond,
		Burst:            cfg.Gateway.Burst,
		FailureThreshold: cfg.Gateway.FailureThreshold,
		OpenTimeout:      cfg.GatewayOpenTimeout(),
	})
	payments := payment.NewReconciler(bookings, repo, gateway, payment.Config{
		Secret:          cfg.Payment.WebhookSecret,
		ProviderKey:     cfg.Gateway.KeyID,
		DefaultCurrency: cfg.Payment.Currency,
		Location:        cfg.Location(),
	}, &logger)

	var wg sync.WaitGroup

	if cfg.SweeperEnabled() {
		sw := sweeper.New(repo, bus, cfg.Location(), &logger)
		scheduler, err := sweeper.NewScheduler(sweeper.SchedulerConfig{
			Schedule: cfg.Sweeper.Schedule,
			Timezone: cfg.Sweeper.Timezone,
			Timeout:  cfg.SweepTimeout(),
		}, sw, &logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid sweeper config")
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Start(ctx)
		}()
	}

	backup := database.NewBackupService(db, cfg.Backup, &logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := backup.Start(ctx); err != nil {
			logger.Error().Err(err).Msg("backup service stopped")
		}
	}()

	go startHealthServer(ctx, cfg.HealthCheckPort(), db, rdb, &logger)

	if cfg.Monitoring.PrometheusEnabled {
		metrics.Register()
		go startMetricsServer(ctx, cfg.PrometheusPort(), &logger)
	}

	server := api.NewHTTPServer(fmt.Sprintf(":%d", cfg.HTTPPort()), bookings, payments,
		cfg.HTTPReadTimeout(), cfg.HTTPWriteTimeout(), &logger)

	logger.Info().Msg("chefbook lifecycle service started")
	if err := server.Start(ctx); err != nil {
		logger.Error().Err(err).Msg("api server error")
		stop()
	}

	wg.Wait()
	logger.Info().Msg("chefbook lifecycle service stopped")
}

func startHealthServer(ctx context.Context, port int, db *database.DB, rdb *redis.Client, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if err := db.Ready(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		if rdb != nil {
			ctxPing, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()
			if err := rdb.Ping(ctxPing).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
