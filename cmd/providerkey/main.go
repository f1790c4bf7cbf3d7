package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"vidgen/internal/infra"
	"vidgen/internal/infra/credentials"
)

func main() {
	var (
		keyFlag     string
		baseURLFlag string
		deleteFlag  bool
	)
	flag.StringVar(&keyFlag, "key", "", "video provider API key (falls back to PROVIDER_API_KEY)")
	flag.StringVar(&baseURLFlag, "base-url", "", "provider base URL stored alongside the key")
	flag.BoolVar(&deleteFlag, "delete", false, "remove the stored key instead of setting it")
	flag.Parse()

	_ = godotenv.Load()

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: dbURL})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "providerkey").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := infra.EnsureSchema(ctx, runner, logger); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	store := credentials.NewStore(runner)

	if deleteFlag {
		if err := store.DeleteVideoAPIKey(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "failed to delete key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Video provider API key removed")
		return
	}

	key := strings.TrimSpace(keyFlag)
	if key == "" {
		key = strings.TrimSpace(os.Getenv("PROVIDER_API_KEY"))
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "API key is required via -key or PROVIDER_API_KEY")
		os.Exit(1)
	}
	baseURL := strings.TrimSpace(baseURLFlag)
	if baseURL == "" {
		baseURL = os.Getenv("PROVIDER_BASE_URL")
	}
	if err := store.SetVideoAPIKey(ctx, key, baseURL); err != nil {
		fmt.Fprintf(os.Stderr, "failed to store key: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Video provider API key stored")
}
