package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vidgen/internal/adapter/repo"
	"vidgen/internal/generation"
	"vidgen/internal/http/handlers"
	"vidgen/internal/http/httpapi"
	"vidgen/internal/infra"
	"vidgen/internal/infra/credentials"
	"vidgen/internal/infra/geoip"
	"vidgen/internal/middleware"
	"vidgen/internal/providers/video"
	"vidgen/internal/ratelimit"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "api").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := infra.SetupTelemetry(cfg, "vidgen-api", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to install telemetry")
	}
	if telemetry != nil {
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := telemetry.Shutdown(flushCtx); err != nil {
				logger.Error().Err(err).Msg("telemetry shutdown")
			}
		}()
	}

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if err := infra.EnsureSchema(ctx, runner, logger); err != nil {
		logger.Fatal().Err(err).Msg("failed to prepare schema")
	}

	var counters ratelimit.CounterStore = ratelimit.NewMemoryStore(nil)
	redisClient, err := infra.NewRedisClient(ctx, cfg.RedisURL)
	switch {
	case err != nil:
		// Admission fails open, so a missing Redis degrades to per-instance counting.
		logger.Error().Err(err).Msg("redis unavailable, using in-process rate limit counters")
	case redisClient != nil:
		defer redisClient.Close()
		counters = ratelimit.NewRedisStore(redisClient)
	default:
		logger.Warn().Msg("REDIS_URL not set, using in-process rate limit counters")
	}
	limiter := ratelimit.New(counters, ratelimit.WithLogger(logger))

	policy, err := infra.NewPolicySource(cfg.PolicyFile, infra.PolicyFromConfig(cfg), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load policy")
	}

	provider, err := video.NewFromConfig(ctx, cfg, credentials.NewStore(runner), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure video provider")
	}

	jobs, err := generation.NewService(generation.Options{
		Store:                repo.NewStore(runner),
		Limiter:              limiter,
		Provider:             provider,
		Policy:               policy,
		Logger:               logger,
		CallbackURL:          cfg.CallbackURL(),
		ProviderTimeout:      cfg.ProviderTimeout,
		StaleQueuedAfter:     cfg.StaleQueuedAfter,
		StaleProcessingAfter: cfg.StaleProcessingAfter,
		MaxJobAge:            cfg.MaxJobAge,
		BatchSize:            cfg.ReconcileBatchSize,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build job service")
	}

	var lookup middleware.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		defer resolver.Close()
		lookup = resolver.CountryCode
	}

	app := &handlers.App{
		Jobs:           jobs,
		Logger:         logger,
		CallbackSecret: []byte(cfg.CallbackSecret),
		Ready:          pool.Ping,
	}
	if cfg.CallbackSecret == "" {
		logger.Warn().Msg("CALLBACK_SIGNING_SECRET not set, provider callbacks are not verified")
	}
	router := httpapi.NewRouter(app, httpapi.RouterOptions{
		JWTSecret:     cfg.JWTSecret,
		CORSOrigins:   cfg.CORSOrigins,
		DefaultLocale: "en",
		CountryLookup: lookup,
		Logger:        logger,
	})

	server := infra.NewHTTPServer(cfg, router, logger)
	go func() {
		logger.Info().Str("port", cfg.Port).Str("callback_url", cfg.CallbackURL()).Msg("API listening")
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
