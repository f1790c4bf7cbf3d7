package repo

import (
	"context"

	"github.com/google/uuid"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
)

// Store implements domain.Store on PostgreSQL through the SQL runner.
type Store struct {
	runner infra.TxExecutor
	sql    infra.SQLExecutor
	bound  bool
}

// NewStore returns a store that opens a transaction per InTx call.
func NewStore(runner infra.TxExecutor) *Store {
	return &Store{runner: runner, sql: runner}
}

func (s *Store) Jobs() domain.JobRepository {
	return &JobRepositoryPG{sql: s.sql}
}

func (s *Store) Ledger() domain.LedgerRepository {
	return &LedgerRepositoryPG{sql: s.sql}
}

func (s *Store) Users() domain.UserRepository {
	return &UserRepositoryPG{sql: s.sql}
}

// InTx binds every repository to one transaction. A store that is already
// bound runs fn in the existing transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.bound {
		return fn(s)
	}
	return s.runner.InTx(ctx, func(tx infra.SQLExecutor) error {
		return fn(&Store{runner: s.runner, sql: tx, bound: true})
	})
}

// validID reports whether id can be cast to a uuid column. Malformed ids can
// never match a row.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var _ domain.Store = (*Store)(nil)
