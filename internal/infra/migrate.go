package infra

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vidgen/internal/sqlinline"
)

// EnsureSchema applies the idempotent schema statements inside one
// transaction.
func EnsureSchema(ctx context.Context, runner TxExecutor, logger zerolog.Logger) error {
	err := runner.InTx(ctx, func(tx SQLExecutor) error {
		for i, stmt := range sqlinline.SchemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("schema statement %d: %w", i, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info().Int("statements", len(sqlinline.SchemaStatements)).Msg("schema ensured")
	return nil
}
