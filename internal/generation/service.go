// Package generation orchestrates image-to-video jobs: admission, provider
// submission, callback handling, status reads and the reconciliation sweep.
package generation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/ledger"
	"vidgen/internal/providers/video"
	"vidgen/internal/ratelimit"
)

// Admitter decides whether an identity may submit another job now.
type Admitter interface {
	Admit(ctx context.Context, identity string, limit int, window time.Duration) ratelimit.Decision
}

// PolicySource serves the cost and limits in force at the time of a call.
type PolicySource interface {
	Current() infra.Policy
}

// Options wires a Service. Store, Limiter, Provider and Policy are required.
type Options struct {
	Store       domain.Store
	Limiter     Admitter
	Provider    video.Generator
	Policy      PolicySource
	Logger      zerolog.Logger
	Metrics     *Metrics
	CallbackURL string

	ProviderTimeout time.Duration
	Retry           Backoff

	StaleQueuedAfter     time.Duration
	StaleProcessingAfter time.Duration
	MaxJobAge            time.Duration
	BatchSize            int

	Now   func() time.Time
	NewID func() string
}

// Service implements the job orchestrator.
type Service struct {
	store       domain.Store
	ledger      *ledger.Service
	limiter     Admitter
	provider    video.Generator
	policy      PolicySource
	logger      zerolog.Logger
	metrics     *Metrics
	callbackURL string

	providerTimeout time.Duration
	retry           Backoff

	staleQueuedAfter     time.Duration
	staleProcessingAfter time.Duration
	maxJobAge            time.Duration
	batchSize            int

	now   func() time.Time
	newID func() string
}

// NewService validates opts and fills defaults.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("generation: store is required")
	case opts.Limiter == nil:
		return nil, errors.New("generation: limiter is required")
	case opts.Provider == nil:
		return nil, errors.New("generation: provider is required")
	case opts.Policy == nil:
		return nil, errors.New("generation: policy is required")
	}
	s := &Service{
		store:                opts.Store,
		ledger:               ledger.NewService(opts.Store, opts.Logger),
		limiter:              opts.Limiter,
		provider:             opts.Provider,
		policy:               opts.Policy,
		logger:               opts.Logger,
		metrics:              opts.Metrics,
		callbackURL:          opts.CallbackURL,
		providerTimeout:      opts.ProviderTimeout,
		retry:                opts.Retry,
		staleQueuedAfter:     opts.StaleQueuedAfter,
		staleProcessingAfter: opts.StaleProcessingAfter,
		maxJobAge:            opts.MaxJobAge,
		batchSize:            opts.BatchSize,
		now:                  opts.Now,
		newID:                opts.NewID,
	}
	if s.metrics == nil {
		s.metrics = NewMetrics(nil)
	}
	if s.providerTimeout <= 0 {
		s.providerTimeout = 20 * time.Second
	}
	if s.retry.Attempts <= 0 {
		s.retry = DefaultBackoff()
	}
	if s.staleQueuedAfter <= 0 {
		s.staleQueuedAfter = 2 * time.Minute
	}
	// A QUEUED job may legitimately wait for the provider call to finish.
	if floor := s.providerTimeout + s.retry.Total(); s.staleQueuedAfter <= floor {
		s.staleQueuedAfter = floor + time.Second
	}
	if s.staleProcessingAfter <= 0 {
		s.staleProcessingAfter = 5 * time.Minute
	}
	if s.maxJobAge <= 0 {
		s.maxJobAge = time.Hour
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// Ledger exposes the credit ledger bound to the service's store.
func (s *Service) Ledger() *ledger.Service {
	return s.ledger
}

// failAndRefund moves a job to FAILED and refunds its hold in one unit of
// work. A job that is already terminal is left untouched.
func (s *Service) failAndRefund(ctx context.Context, jobID, msg string) (applied bool, err error) {
	var refunded bool
	err = s.store.InTx(ctx, func(tx domain.Store) error {
		ok, err := tx.Jobs().Fail(ctx, jobID, msg)
		if err != nil {
			return err
		}
		applied = ok
		if !ok {
			return nil
		}
		refunded, err = s.ledger.Bind(tx).Settle(ctx, jobID, domain.JobStatusFailed)
		return err
	})
	if err != nil {
		return false, err
	}
	if refunded {
		s.metrics.refund(ctx)
	}
	return applied, nil
}
