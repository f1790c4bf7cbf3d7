// Package memory provides an in-process domain.Store. It backs orchestration
// tests and local runs without PostgreSQL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidgen/internal/domain"
)

// Store is a mutex-guarded domain.Store. InTx holds the lock for the whole
// unit and restores a snapshot when fn fails.
type Store struct {
	mu    *sync.Mutex
	st    *state
	now   func() time.Time
	bound bool
}

type state struct {
	jobs     map[string]domain.GenerationJob
	tasks    map[string]string
	balances map[string]int64
	accounts map[string]domain.User
	log      []domain.CreditTransaction
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

var _ domain.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		mu: &sync.Mutex{},
		st: &state{
			jobs:     make(map[string]domain.GenerationJob),
			tasks:    make(map[string]string),
			balances: make(map[string]int64),
			accounts: make(map[string]domain.User),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddUser registers a free-plan user with a zero balance. Use
// Ledger().Grant to fund it so the balance stays equal to the log.
func (s *Store) AddUser(userID string) {
	defer s.lock()()
	if _, ok := s.st.balances[userID]; !ok {
		s.st.balances[userID] = 0
		s.st.accounts[userID] = domain.User{
			ID:        userID,
			Role:      domain.UserRoleUser,
			Plan:      domain.UserPlanFree,
			CreatedAt: s.now(),
			UpdatedAt: s.now(),
		}
	}
}

// SetAccount changes the plan and role of a registered user.
func (s *Store) SetAccount(userID string, plan domain.UserPlan, role domain.UserRole) error {
	defer s.lock()()
	u, ok := s.st.accounts[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Plan, u.Role, u.UpdatedAt = plan, role, s.now()
	s.st.accounts[userID] = u
	return nil
}

// Transactions returns every ledger row for userID in insertion order.
func (s *Store) Transactions(userID string) []domain.CreditTransaction {
	defer s.lock()()
	var out []domain.CreditTransaction
	for _, tx := range s.st.log {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out
}

// JobCount returns the number of stored jobs.
func (s *Store) JobCount() int {
	defer s.lock()()
	return len(s.st.jobs)
}

func (s *Store) Jobs() domain.JobRepository      { return jobRepo{s} }
func (s *Store) Ledger() domain.LedgerRepository { return ledgerRepo{s} }
func (s *Store) Users() domain.UserRepository    { return userRepo{s} }

func (s *Store) InTx(ctx context.Context, fn func(tx domain.Store) error) error {
	if s.bound {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	bound := &Store{mu: s.mu, st: s.st, now: s.now, bound: true}
	err := fn(bound)
	if err == nil {
		// A cancelled unit never commits, matching a pgx transaction.
		err = ctx.Err()
	}
	if err != nil {
		*s.st = *snapshot
		return err
	}
	return nil
}

func (s *Store) lock() func() {
	if s.bound {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (st *state) clone() *state {
	out := &state{
		jobs:     make(map[string]domain.GenerationJob, len(st.jobs)),
		tasks:    make(map[string]string, len(st.tasks)),
		balances: make(map[string]int64, len(st.balances)),
		accounts: make(map[string]domain.User, len(st.accounts)),
		log:      append([]domain.CreditTransaction(nil), st.log...),
	}
	for k, v := range st.jobs {
		out.jobs[k] = v
	}
	for k, v := range st.tasks {
		out.tasks[k] = v
	}
	for k, v := range st.balances {
		out.balances[k] = v
	}
	for k, v := range st.accounts {
		out.accounts[k] = v
	}
	return out
}

type jobRepo struct{ s *Store }

func (r jobRepo) Create(_ context.Context, job *domain.GenerationJob) error {
	defer r.s.lock()()
	if job.ID == "" {
		return fmt.Errorf("%w: job id is required", domain.ErrInvalidRequest)
	}
	if _, exists := r.s.st.jobs[job.ID]; exists {
		return fmt.Errorf("%w: job %s already exists", domain.ErrInvalidRequest, job.ID)
	}
	now := r.s.now()
	job.Status = domain.JobStatusQueued
	job.Progress = 0
	job.ProviderTaskID = nil
	job.VideoURL = nil
	job.ErrorMessage = nil
	job.CreatedAt = now
	job.UpdatedAt = now
	r.s.st.jobs[job.ID] = *job
	return nil
}

func (r jobRepo) GetByID(_ context.Context, jobID string) (*domain.GenerationJob, error) {
	defer r.s.lock()()
	job, ok := r.s.st.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &job, nil
}

func (r jobRepo) GetByProviderTaskID(_ context.Context, taskID string) (*domain.GenerationJob, error) {
	defer r.s.lock()()
	jobID, ok := r.s.st.tasks[taskID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	job := r.s.st.jobs[jobID]
	return &job, nil
}

func (r jobRepo) MarkProcessing(_ context.Context, jobID, taskID string) (bool, error) {
	defer r.s.lock()()
	if owner, taken := r.s.st.tasks[taskID]; taken && owner != jobID {
		return false, fmt.Errorf("%w: %s", domain.ErrDuplicateTaskID, taskID)
	}
	return r.update(jobID, func(job *domain.GenerationJob) bool {
		if job.Status != domain.JobStatusQueued {
			return false
		}
		job.Status = domain.JobStatusProcessing
		job.ProviderTaskID = domain.StringPtr(taskID)
		r.s.st.tasks[taskID] = jobID
		return true
	})
}

func (r jobRepo) UpdateProgress(_ context.Context, jobID string, progress int) (bool, error) {
	defer r.s.lock()()
	progress = domain.ClampProgress(progress)
	return r.update(jobID, func(job *domain.GenerationJob) bool {
		if job.Status.IsTerminal() || progress <= job.Progress {
			return false
		}
		job.Progress = progress
		return true
	})
}

func (r jobRepo) Complete(_ context.Context, jobID, videoURL string) (bool, error) {
	defer r.s.lock()()
	return r.update(jobID, func(job *domain.GenerationJob) bool {
		if !domain.CanTransition(job.Status, domain.JobStatusCompleted) {
			return false
		}
		job.Status = domain.JobStatusCompleted
		job.VideoURL = domain.StringPtr(videoURL)
		job.Progress = 100
		return true
	})
}

func (r jobRepo) Fail(_ context.Context, jobID, errMsg string) (bool, error) {
	defer r.s.lock()()
	return r.update(jobID, func(job *domain.GenerationJob) bool {
		if !domain.CanTransition(job.Status, domain.JobStatusFailed) {
			return false
		}
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = domain.StringPtr(errMsg)
		return true
	})
}

// update applies mutate to a copy and stores it only when mutate reports a
// change. A missing job is simply not applied.
func (r jobRepo) update(jobID string, mutate func(*domain.GenerationJob) bool) (bool, error) {
	job, ok := r.s.st.jobs[jobID]
	if !ok {
		return false, nil
	}
	if !mutate(&job) {
		return false, nil
	}
	job.UpdatedAt = r.s.now()
	r.s.st.jobs[jobID] = job
	return true, nil
}

func (r jobRepo) ListStale(_ context.Context, status domain.JobStatus, updatedBefore time.Time, limit int) ([]domain.GenerationJob, error) {
	defer r.s.lock()()
	return r.collect(limit, func(job domain.GenerationJob) bool {
		return job.Status == status && job.UpdatedAt.Before(updatedBefore)
	}), nil
}

func (r jobRepo) ListUnsettledFailures(_ context.Context, limit int) ([]domain.GenerationJob, error) {
	defer r.s.lock()()
	held := map[string]bool{}
	refunded := map[string]bool{}
	for _, tx := range r.s.st.log {
		if tx.JobID == nil {
			continue
		}
		switch tx.Reason {
		case domain.ReasonHold:
			held[*tx.JobID] = true
		case domain.ReasonRefund:
			refunded[*tx.JobID] = true
		}
	}
	return r.collect(limit, func(job domain.GenerationJob) bool {
		return job.Status == domain.JobStatusFailed && held[job.ID] && !refunded[job.ID]
	}), nil
}

func (r jobRepo) collect(limit int, keep func(domain.GenerationJob) bool) []domain.GenerationJob {
	var out []domain.GenerationJob
	for _, job := range r.s.st.jobs {
		if keep(job) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type ledgerRepo struct{ s *Store }

func (r ledgerRepo) Reserve(_ context.Context, userID, jobID string, amount int64) (int64, error) {
	defer r.s.lock()()
	if amount <= 0 {
		return 0, fmt.Errorf("%w: reserve amount must be positive", domain.ErrInvalidRequest)
	}
	if r.findJobEntry(jobID, domain.ReasonHold) != nil {
		return 0, fmt.Errorf("%w: job %s already holds credits", domain.ErrSettlementConflict, jobID)
	}
	balance, ok := r.s.st.balances[userID]
	if !ok || balance < amount {
		return 0, &domain.InsufficientCreditsError{Required: amount, Balance: balance}
	}
	r.append(userID, domain.TransactionDebit, domain.ReasonHold, amount, &jobID)
	r.s.st.balances[userID] = balance - amount
	return balance - amount, nil
}

func (r ledgerRepo) Refund(_ context.Context, jobID string) (bool, error) {
	defer r.s.lock()()
	hold := r.findJobEntry(jobID, domain.ReasonHold)
	if hold == nil || r.findJobEntry(jobID, domain.ReasonRefund) != nil {
		return false, nil
	}
	r.append(hold.UserID, domain.TransactionCredit, domain.ReasonRefund, hold.Amount, &jobID)
	r.s.st.balances[hold.UserID] += hold.Amount
	return true, nil
}

func (r ledgerRepo) Grant(_ context.Context, userID string, amount int64) (int64, error) {
	defer r.s.lock()()
	if amount <= 0 {
		return 0, fmt.Errorf("%w: grant amount must be positive", domain.ErrInvalidRequest)
	}
	balance, ok := r.s.st.balances[userID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	r.append(userID, domain.TransactionCredit, domain.ReasonGrant, amount, nil)
	r.s.st.balances[userID] = balance + amount
	return balance + amount, nil
}

func (r ledgerRepo) Balance(_ context.Context, userID string) (int64, error) {
	defer r.s.lock()()
	return r.s.st.balances[userID], nil
}

func (r ledgerRepo) ListTransactions(_ context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	defer r.s.lock()()
	var out []domain.CreditTransaction
	for i := len(r.s.st.log) - 1; i >= 0; i-- {
		if tx := r.s.st.log[i]; tx.UserID == userID {
			out = append(out, tx)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r ledgerRepo) findJobEntry(jobID string, reason domain.TransactionReason) *domain.CreditTransaction {
	for i := range r.s.st.log {
		tx := &r.s.st.log[i]
		if tx.Reason == reason && tx.JobID != nil && *tx.JobID == jobID {
			return tx
		}
	}
	return nil
}

func (r ledgerRepo) append(userID string, typ domain.TransactionType, reason domain.TransactionReason, amount int64, jobID *string) {
	var ref *string
	if jobID != nil {
		ref = domain.StringPtr(*jobID)
	}
	r.s.st.log = append(r.s.st.log, domain.CreditTransaction{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      typ,
		Reason:    reason,
		Amount:    amount,
		JobID:     ref,
		CreatedAt: r.s.now(),
	})
}

type userRepo struct{ s *Store }

func (r userRepo) GetByID(_ context.Context, userID string) (*domain.User, error) {
	defer r.s.lock()()
	u, ok := r.s.st.accounts[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	u.Balance = r.s.st.balances[userID]
	return &u, nil
}
