package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/joho/godotenv"

	"vidgen/internal/adapter/repo"
	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/ledger"
	"vidgen/internal/middleware"
)

// credits manages accounts from the command line: it creates the user row,
// adjusts plan and role, grants credits and can mint a session token for
// local testing.
func main() {
	var (
		idFlag    string
		emailFlag string
		planFlag  string
		roleFlag  string
		grantFlag int64
		tokenFlag bool
	)
	flag.StringVar(&idFlag, "id", "", "user ID (required)")
	flag.StringVar(&emailFlag, "email", "", "email stored when the user is created")
	flag.StringVar(&planFlag, "plan", "", "plan to assign (free, pro)")
	flag.StringVar(&roleFlag, "role", "", "role to assign (user, admin)")
	flag.Int64Var(&grantFlag, "grant", 0, "credits to add to the balance")
	flag.BoolVar(&tokenFlag, "token", false, "print a signed session token for the user")
	flag.Parse()

	_ = godotenv.Load()

	userID := strings.TrimSpace(idFlag)
	if userID == "" {
		exitWithError(errors.New("-id is required"))
	}
	if grantFlag < 0 {
		exitWithError(errors.New("-grant must not be negative"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := infra.NewDBPool(ctx, &infra.Config{DatabaseURL: dbURL})
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "credits").Logger()
	runner := infra.NewSQLRunner(pool, logger)
	if err := infra.EnsureSchema(ctx, runner, logger); err != nil {
		exitWithError(err)
	}

	users := repo.NewUserRepository(runner)
	if _, err := users.Upsert(ctx, userID, strings.TrimSpace(emailFlag)); err != nil {
		exitWithError(fmt.Errorf("failed to upsert user: %w", err))
	}
	if plan := strings.ToLower(strings.TrimSpace(planFlag)); plan != "" {
		if err := users.SetPlan(ctx, userID, domain.UserPlan(plan)); err != nil {
			exitWithError(fmt.Errorf("failed to set plan: %w", err))
		}
	}
	if role := strings.ToLower(strings.TrimSpace(roleFlag)); role != "" {
		if err := users.SetRole(ctx, userID, domain.UserRole(role)); err != nil {
			exitWithError(fmt.Errorf("failed to set role: %w", err))
		}
	}
	if grantFlag > 0 {
		credits := ledger.NewService(repo.NewStore(runner), logger)
		if _, err := credits.Grant(ctx, userID, grantFlag); err != nil {
			exitWithError(fmt.Errorf("failed to grant credits: %w", err))
		}
	}

	user, err := users.GetByID(ctx, userID)
	if err != nil {
		exitWithError(fmt.Errorf("failed to load user: %w", err))
	}
	fmt.Printf("User %s (%s) plan=%s role=%s balance=%d\n", user.ID, user.Email, user.Plan, user.Role, user.Balance)

	if tokenFlag {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			exitWithError(errors.New("JWT_SECRET is required for -token"))
		}
		token, err := middleware.SignJWT(secret, middleware.TokenClaims{
			Plan: string(user.Plan),
			Role: string(user.Role),
			RegisteredClaims: jwt.RegisteredClaims{
				Subject: user.ID,
			},
		})
		if err != nil {
			exitWithError(fmt.Errorf("failed to sign token: %w", err))
		}
		fmt.Println(token)
	}
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
