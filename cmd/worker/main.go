package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"vidgen/internal/adapter/repo"
	"vidgen/internal/generation"
	"vidgen/internal/infra"
	"vidgen/internal/infra/credentials"
	"vidgen/internal/providers/video"
	"vidgen/internal/ratelimit"
)

// The worker runs the reconciliation sweep: it repairs jobs whose provider
// callback or refund never landed.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	telemetry, err := infra.SetupTelemetry(cfg, "vidgen-worker", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: telemetry")
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
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	if err := infra.EnsureSchema(ctx, runner, logger); err != nil {
		logger.Fatal().Err(err).Msg("worker: schema")
	}

	provider, err := video.NewFromConfig(ctx, cfg, credentials.NewStore(runner), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: video provider")
	}
	policy, err := infra.NewPolicySource(cfg.PolicyFile, infra.PolicyFromConfig(cfg), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: policy")
	}

	jobs, err := generation.NewService(generation.Options{
		Store: repo.NewStore(runner),
		// The worker never admits submissions.
		Limiter:              ratelimit.New(ratelimit.NewMemoryStore(nil)),
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
		logger.Fatal().Err(err).Msg("worker: job service")
	}

	logger.Info().Dur("interval", cfg.ReconcileInterval).Msg("worker started")
	ticker := time.NewTicker(cfg.ReconcileInterval)
	defer ticker.Stop()
	for {
		sweep(ctx, jobs, logger)
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker stopped")
			return
		case <-ticker.C:
		}
	}
}

func sweep(ctx context.Context, jobs *generation.Service, logger infra.Logger) {
	start := time.Now()
	report, err := jobs.Reconcile(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile sweep failed")
		return
	}
	ev := logger.Debug()
	if report != (generation.ReconcileReport{}) {
		ev = logger.Info()
	}
	ev.Int("stale_queued", report.StaleQueued).
		Int("polled", report.Polled).
		Int("completed", report.Completed).
		Int("failed", report.Failed).
		Int("timed_out", report.TimedOut).
		Int("refunded", report.Refunded).
		Dur("took", time.Since(start)).
		Msg("reconcile sweep")
}
