package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vidgen/internal/domain"
)

func newJob(id, user string, hold int64) *domain.GenerationJob {
	return &domain.GenerationJob{ID: id, RequesterID: user, InputImageURL: "https://img/a.png", CreditHoldAmount: hold}
}

func TestInTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.AddUser("u1")
	_, err := s.Ledger().Grant(ctx, "u1", 10)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.InTx(ctx, func(tx domain.Store) error {
		if _, err := tx.Ledger().Reserve(ctx, "u1", "j1", 10); err != nil {
			return err
		}
		if err := tx.Jobs().Create(ctx, newJob("j1", "u1", 10)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	balance, _ := s.Ledger().Balance(ctx, "u1")
	assert.Equal(t, int64(10), balance)
	assert.Equal(t, 0, s.JobCount())
	assert.Len(t, s.Transactions("u1"), 1)
}

func TestTransitionsAreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Jobs().Create(ctx, newJob("j1", "u1", 0)))

	applied, err := s.Jobs().MarkProcessing(ctx, "j1", "abc123")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Jobs().MarkProcessing(ctx, "j1", "abc123")
	require.NoError(t, err)
	assert.False(t, applied, "second MarkProcessing must not apply")

	applied, err = s.Jobs().UpdateProgress(ctx, "j1", 40)
	require.NoError(t, err)
	assert.True(t, applied)
	applied, err = s.Jobs().UpdateProgress(ctx, "j1", 20)
	require.NoError(t, err)
	assert.False(t, applied, "progress must not go backwards")

	applied, err = s.Jobs().Complete(ctx, "j1", "https://cdn/v.mp4")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.Jobs().Fail(ctx, "j1", "late")
	require.NoError(t, err)
	assert.False(t, applied)

	job, err := s.Jobs().GetByProviderTaskID(ctx, "abc123")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 100, job.Progress)
	assert.True(t, job.Consistent())
}

func TestDuplicateTaskIDRejected(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	require.NoError(t, s.Jobs().Create(ctx, newJob("j1", "u1", 0)))
	require.NoError(t, s.Jobs().Create(ctx, newJob("j2", "u1", 0)))

	_, err := s.Jobs().MarkProcessing(ctx, "j1", "abc123")
	require.NoError(t, err)
	_, err = s.Jobs().MarkProcessing(ctx, "j2", "abc123")
	assert.ErrorIs(t, err, domain.ErrDuplicateTaskID)
}

func TestRefundOnce(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.AddUser("u1")
	_, err := s.Ledger().Grant(ctx, "u1", 10)
	require.NoError(t, err)
	_, err = s.Ledger().Reserve(ctx, "u1", "j1", 10)
	require.NoError(t, err)

	ok, err := s.Ledger().Refund(ctx, "j1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Ledger().Refund(ctx, "j1")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Ledger().Refund(ctx, "no-hold")
	require.NoError(t, err)
	assert.False(t, ok)

	balance, _ := s.Ledger().Balance(ctx, "u1")
	assert.Equal(t, int64(10), balance)
}

func TestReserveUnknownUserIsInsufficient(t *testing.T) {
	s := NewStore()
	_, err := s.Ledger().Reserve(context.Background(), "ghost", "j1", 1)
	var insufficient *domain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(0), insufficient.Balance)
}

func TestListStaleAndUnsettled(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewStore(WithClock(func() time.Time { return now }))
	s.AddUser("u1")
	_, err := s.Ledger().Grant(ctx, "u1", 20)
	require.NoError(t, err)

	_, err = s.Ledger().Reserve(ctx, "u1", "old", 10)
	require.NoError(t, err)
	require.NoError(t, s.Jobs().Create(ctx, newJob("old", "u1", 10)))

	now = now.Add(10 * time.Minute)
	_, err = s.Ledger().Reserve(ctx, "u1", "new", 10)
	require.NoError(t, err)
	require.NoError(t, s.Jobs().Create(ctx, newJob("new", "u1", 10)))

	stale, err := s.Jobs().ListStale(ctx, domain.JobStatusQueued, now.Add(-5*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "old", stale[0].ID)

	_, err = s.Jobs().Fail(ctx, "old", "x")
	require.NoError(t, err)
	unsettled, err := s.Jobs().ListUnsettledFailures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsettled, 1)

	_, err = s.Ledger().Refund(ctx, "old")
	require.NoError(t, err)
	unsettled, err = s.Jobs().ListUnsettledFailures(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, unsettled)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	s.AddUser("u1")
	for _, amt := range []int64{1, 2, 3} {
		_, err := s.Ledger().Grant(ctx, "u1", amt)
		require.NoError(t, err)
	}
	txs, err := s.Ledger().ListTransactions(ctx, "u1", 2)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Equal(t, int64(3), txs[0].Amount)
	assert.Equal(t, int64(2), txs[1].Amount)
}

func TestInTxRollsBackWhenContextCancelled(t *testing.T) {
	s := NewStore()
	s.AddUser("u1")
	ctx, cancel := context.WithCancel(context.Background())

	err := s.InTx(ctx, func(tx domain.Store) error {
		if _, err := tx.Ledger().Grant(ctx, "u1", 5); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	balance, _ := s.Ledger().Balance(context.Background(), "u1")
	assert.Equal(t, int64(0), balance)
	assert.Empty(t, s.Transactions("u1"))
}
