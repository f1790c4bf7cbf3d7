package repo

import (
	"context"
	"fmt"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/sqlinline"
)

const holdJobConstraint = "credit_transactions_hold_job_uniq"

// LedgerRepositoryPG implements domain.LedgerRepository. Each method is a
// single statement whose CTEs write the log row and the cached balance
// together.
type LedgerRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewLedgerRepository(sql infra.SQLExecutor) *LedgerRepositoryPG {
	return &LedgerRepositoryPG{sql: sql}
}

func (r *LedgerRepositoryPG) Reserve(ctx context.Context, userID, jobID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: reserve amount must be positive", domain.ErrInvalidRequest)
	}
	if !validID(jobID) {
		return 0, fmt.Errorf("%w: job id must be a uuid", domain.ErrInvalidRequest)
	}
	var balance, held int64
	err := r.sql.QueryRow(ctx, sqlinline.QReserveCredits, userID, jobID, amount).Scan(&balance, &held)
	switch {
	case err == nil:
		return balance, nil
	case infra.IsNoRows(err):
		current, berr := r.Balance(ctx, userID)
		if berr != nil {
			return 0, berr
		}
		return 0, &domain.InsufficientCreditsError{Required: amount, Balance: current}
	case infra.IsUniqueViolation(err, holdJobConstraint):
		return 0, fmt.Errorf("%w: job %s already holds credits", domain.ErrSettlementConflict, jobID)
	default:
		return 0, fmt.Errorf("reserve credits: %w", err)
	}
}

func (r *LedgerRepositoryPG) Refund(ctx context.Context, jobID string) (bool, error) {
	if !validID(jobID) {
		return false, nil
	}
	var credited int64
	if err := r.sql.QueryRow(ctx, sqlinline.QRefundHold, jobID).Scan(&credited); err != nil {
		return false, fmt.Errorf("refund hold: %w", err)
	}
	return credited > 0, nil
}

func (r *LedgerRepositoryPG) Grant(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: grant amount must be positive", domain.ErrInvalidRequest)
	}
	var balance, granted int64
	if err := r.sql.QueryRow(ctx, sqlinline.QGrantCredits, userID, amount).Scan(&balance, &granted); err != nil {
		if infra.IsNoRows(err) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("grant credits: %w", err)
	}
	return balance, nil
}

// Balance returns the cached balance; unknown users hold nothing.
func (r *LedgerRepositoryPG) Balance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectBalance, userID).Scan(&balance); err != nil {
		if infra.IsNoRows(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("select balance: %w", err)
	}
	return balance, nil
}

func (r *LedgerRepositoryPG) ListTransactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListTransactions, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var (
			tx             domain.CreditTransaction
			txType, reason string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &txType, &reason, &tx.Amount, &tx.JobID, &tx.CreatedAt); err != nil {
			return nil, err
		}
		tx.Type = domain.TransactionType(txType)
		tx.Reason = domain.TransactionReason(reason)
		out = append(out, tx)
	}
	return out, rows.Err()
}
