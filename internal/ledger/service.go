// Package ledger owns credit reservation and settlement. Balances only change
// together with an appended transaction row.
package ledger

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"vidgen/internal/domain"
)

// DefaultStatementLimit bounds Statement when the caller passes no limit.
const DefaultStatementLimit = 50

// Service wraps the ledger repository of a store.
type Service struct {
	store  domain.Store
	logger zerolog.Logger
}

func NewService(store domain.Store, logger zerolog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

// Bind returns a service whose writes join the unit of work of tx.
func (s *Service) Bind(tx domain.Store) *Service {
	return &Service{store: tx, logger: s.logger}
}

// Reserve holds amount credits for jobID. It fails with
// *domain.InsufficientCreditsError when the balance is too low and writes
// nothing in that case.
func (s *Service) Reserve(ctx context.Context, userID, jobID string, amount int64) (int64, error) {
	balance, err := s.store.Ledger().Reserve(ctx, userID, jobID, amount)
	if err != nil {
		return 0, err
	}
	s.logger.Debug().
		Str("user_id", userID).
		Str("job_id", jobID).
		Int64("amount", amount).
		Int64("balance", balance).
		Msg("credits reserved")
	return balance, nil
}

// Settle records the ledger consequence of a terminal job outcome. FAILED
// refunds the hold; COMPLETED keeps it. It is idempotent and reports whether
// this call wrote a refund.
func (s *Service) Settle(ctx context.Context, jobID string, outcome domain.JobStatus) (bool, error) {
	switch outcome {
	case domain.JobStatusCompleted:
		return false, nil
	case domain.JobStatusFailed:
	default:
		return false, fmt.Errorf("%w: cannot settle job in state %s", domain.ErrInvalidRequest, outcome)
	}

	refunded, err := s.store.Ledger().Refund(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("refund job %s: %w", jobID, err)
	}
	if !refunded {
		s.logger.Debug().Str("job_id", jobID).Err(domain.ErrSettlementConflict).Msg("refund already recorded or no hold")
		return false, nil
	}
	s.logger.Info().Str("job_id", jobID).Msg("credits refunded")
	return true, nil
}

// Grant tops up a user's balance.
func (s *Service) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	balance, err := s.store.Ledger().Grant(ctx, userID, amount)
	if err != nil {
		return 0, err
	}
	s.logger.Info().Str("user_id", userID).Int64("amount", amount).Int64("balance", balance).Msg("credits granted")
	return balance, nil
}

func (s *Service) Balance(ctx context.Context, userID string) (int64, error) {
	return s.store.Ledger().Balance(ctx, userID)
}

// Statement is a balance with the most recent transactions behind it.
type Statement struct {
	Balance      int64
	Transactions []domain.CreditTransaction
}

// Statement reads the balance and recent history in one unit of work so the
// two agree.
func (s *Service) Statement(ctx context.Context, userID string, limit int) (Statement, error) {
	if limit <= 0 {
		limit = DefaultStatementLimit
	}
	var out Statement
	err := s.store.InTx(ctx, func(tx domain.Store) error {
		balance, err := tx.Ledger().Balance(ctx, userID)
		if err != nil {
			return err
		}
		txs, err := tx.Ledger().ListTransactions(ctx, userID, limit)
		if err != nil {
			return err
		}
		out = Statement{Balance: balance, Transactions: txs}
		return nil
	})
	return out, err
}
