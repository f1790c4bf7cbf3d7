package video

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vidgen/internal/infra"
)

// KeySource supplies the provider API key when it is not in the environment.
type KeySource interface {
	VideoAPIKey(ctx context.Context) (string, error)
}

// NewFromConfig builds the provider client from configuration. Without a
// PROVIDER_BASE_URL, non-production environments get the synthetic provider
// which calls back into PUBLIC_BASE_URL.
func NewFromConfig(ctx context.Context, cfg *infra.Config, keys KeySource, logger infra.Logger) (Generator, error) {
	if cfg.ProviderBaseURL == "" {
		if cfg.AppEnv == "production" {
			return nil, errors.New("PROVIDER_BASE_URL is required in production")
		}
		logger.Warn().Msg("PROVIDER_BASE_URL not set, using synthetic video provider")
		return NewSynthetic(3*time.Second, []byte(cfg.CallbackSecret), logger), nil
	}

	apiKey := cfg.ProviderAPIKey
	if apiKey == "" && keys != nil {
		stored, err := keys.VideoAPIKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("load stored provider key: %w", err)
		}
		apiKey = stored
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	return NewClient(Options{
		APIKey:         apiKey,
		BaseURL:        cfg.ProviderBaseURL,
		Model:          cfg.ProviderModel,
		Logger:         &logger,
		RequestTimeout: cfg.ProviderTimeout,
		RatePerSecond:  cfg.ProviderRatePerSecond,
	})
}
