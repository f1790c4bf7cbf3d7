package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv        string
	Port          string
	DatabaseURL   string
	DBMaxConns    int
	JWTSecret     string
	PublicBaseURL string
	RedisURL      string
	GeoIPDBPath   string
	PolicyFile    string
	CORSOrigins   []string
	OTelExporter  string

	ProviderBaseURL       string
	ProviderAPIKey        string
	ProviderModel         string
	ProviderTimeout       time.Duration
	ProviderRatePerSecond float64
	CallbackSecret        string

	GenerationCost          int64
	RateLimitFreePerMin     int
	RateLimitElevatedPerMin int
	RateLimitWindow         time.Duration

	ReconcileInterval    time.Duration
	StaleQueuedAfter     time.Duration
	StaleProcessingAfter time.Duration
	MaxJobAge            time.Duration
	ReconcileBatchSize   int

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		Port:          port,
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		DBMaxConns:    getEnvInt("DB_MAX_CONNS", 10),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		RedisURL:      os.Getenv("REDIS_URL"),
		GeoIPDBPath:   os.Getenv("GEOIP_DB_PATH"),
		PolicyFile:    os.Getenv("POLICY_FILE"),
		CORSOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		OTelExporter:  strings.ToLower(getEnv("OTEL_EXPORTER", TelemetryExporterNone)),

		ProviderBaseURL:       strings.TrimRight(os.Getenv("PROVIDER_BASE_URL"), "/"),
		ProviderAPIKey:        os.Getenv("PROVIDER_API_KEY"),
		ProviderModel:         getEnv("PROVIDER_MODEL", "wan2.2-i2v"),
		ProviderTimeout:       time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 20)),
		ProviderRatePerSecond: getEnvFloat("PROVIDER_RATE_PER_SECOND", 5),
		CallbackSecret:        os.Getenv("CALLBACK_SIGNING_SECRET"),

		GenerationCost:          int64(getEnvInt("GENERATION_COST", 10)),
		RateLimitFreePerMin:     getEnvInt("RATE_LIMIT_FREE_PER_MINUTE", 3),
		RateLimitElevatedPerMin: getEnvInt("RATE_LIMIT_ELEVATED_PER_MINUTE", 10),
		RateLimitWindow:         time.Second * time.Duration(getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)),

		ReconcileInterval:    time.Second * time.Duration(getEnvInt("RECONCILE_INTERVAL_SECONDS", 30)),
		StaleQueuedAfter:     time.Second * time.Duration(getEnvInt("STALE_QUEUED_AFTER_SECONDS", 120)),
		StaleProcessingAfter: time.Second * time.Duration(getEnvInt("STALE_PROCESSING_AFTER_SECONDS", 300)),
		MaxJobAge:            time.Second * time.Duration(getEnvInt("MAX_JOB_AGE_SECONDS", 3600)),
		ReconcileBatchSize:   getEnvInt("RECONCILE_BATCH_SIZE", 50),

		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.GenerationCost <= 0 {
		return nil, fmt.Errorf("GENERATION_COST must be positive")
	}

	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW_SECONDS must be positive")
	}

	switch cfg.OTelExporter {
	case TelemetryExporterNone, TelemetryExporterStdout:
	default:
		return nil, fmt.Errorf("OTEL_EXPORTER must be %q or %q", TelemetryExporterNone, TelemetryExporterStdout)
	}

	return cfg, nil
}

// CallbackURL is the absolute webhook address handed to the provider.
func (c *Config) CallbackURL() string {
	return c.PublicBaseURL + "/jobs/callback"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
