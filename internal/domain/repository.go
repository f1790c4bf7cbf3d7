package domain

import (
	"context"
	"time"
)

// JobRepository persists generation jobs. Every state-changing method is a
// conditional update on the expected current state and reports whether the
// row was changed; false means the job was already past that state.
type JobRepository interface {
	Create(ctx context.Context, job *GenerationJob) error
	GetByID(ctx context.Context, jobID string) (*GenerationJob, error)
	GetByProviderTaskID(ctx context.Context, taskID string) (*GenerationJob, error)
	MarkProcessing(ctx context.Context, jobID, taskID string) (bool, error)
	UpdateProgress(ctx context.Context, jobID string, progress int) (bool, error)
	Complete(ctx context.Context, jobID, videoURL string) (bool, error)
	Fail(ctx context.Context, jobID, errMsg string) (bool, error)
	ListStale(ctx context.Context, status JobStatus, updatedBefore time.Time, limit int) ([]GenerationJob, error)
	ListUnsettledFailures(ctx context.Context, limit int) ([]GenerationJob, error)
}

// LedgerRepository owns the credit transaction log and the cached balance.
// Every balance change is applied in the same atomic unit as its log entry.
type LedgerRepository interface {
	// Reserve debits amount for jobID and returns the new balance, or
	// ErrInsufficientCredits when the balance is too low.
	Reserve(ctx context.Context, userID, jobID string, amount int64) (int64, error)
	// Refund credits back the hold for jobID. It returns false when the job
	// has no hold or is already refunded.
	Refund(ctx context.Context, jobID string) (bool, error)
	Grant(ctx context.Context, userID string, amount int64) (int64, error)
	Balance(ctx context.Context, userID string) (int64, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
}

// UserRepository reads the accounts jobs and credits belong to.
type UserRepository interface {
	GetByID(ctx context.Context, userID string) (*User, error)
}

// Store groups the repositories that must share atomic units of work.
type Store interface {
	Jobs() JobRepository
	Ledger() LedgerRepository
	Users() UserRepository
	// InTx runs fn against a store bound to one transaction. Any error from
	// fn rolls back every write fn made.
	InTx(ctx context.Context, fn func(tx Store) error) error
}
