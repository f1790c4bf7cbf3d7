package generation

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"vidgen/internal/domain"
	"vidgen/internal/domain/jsoncfg"
	"vidgen/internal/providers/video"
	"vidgen/internal/ratelimit"
)

const maxErrorMessage = 500

// SubmitRequest is one admission attempt.
type SubmitRequest struct {
	RequesterID string
	Tier        domain.Tier
	// Identity is the rate-limit key; the requester id is used when empty.
	Identity string
	ImageURL string
	Params   jsoncfg.PromptParams
	Locale   string
	// Country is the ISO code resolved for the client, logged on admission.
	Country string
}

// SubmitResult describes an admitted job. Decision is populated whenever
// the rate limiter was consulted, including on a credit rejection.
type SubmitResult struct {
	JobID    string
	Status   domain.JobStatus
	Decision ratelimit.Decision
}

// Submit admits the request, reserves credits and creates the job in one
// unit of work, then hands the task to the provider. Once a job id is
// returned the job always reaches a terminal state: provider errors fail it
// and refund the hold before Submit returns.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.RequesterID) == "" {
		return nil, fmt.Errorf("%w: requester is required", domain.ErrInvalidRequest)
	}
	if err := validateImageURL(req.ImageURL); err != nil {
		return nil, err
	}
	params := req.Params
	params.Normalize(req.Locale)
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPrompt, err)
	}

	policy := s.policy.Current()
	identity := req.Identity
	if identity == "" {
		identity = req.RequesterID
	}
	decision := s.limiter.Admit(ctx, identity, policy.LimitFor(req.Tier), policy.Window)
	result := &SubmitResult{Decision: decision}
	if !decision.Allowed {
		s.metrics.denied(ctx)
		s.metrics.submission(ctx, "rate_limited")
		return result, &domain.RateLimitError{
			Limit:     decision.Limit,
			Remaining: decision.Remaining,
			ResetAt:   decision.ResetAt,
		}
	}

	job := &domain.GenerationJob{
		ID:               s.newID(),
		RequesterID:      req.RequesterID,
		InputImageURL:    req.ImageURL,
		PromptTemplate:   jsoncfg.MustMarshal(params),
		CreditHoldAmount: policy.GenerationCost,
	}
	err := s.store.InTx(ctx, func(tx domain.Store) error {
		if _, err := s.ledger.Bind(tx).Reserve(ctx, job.RequesterID, job.ID, job.CreditHoldAmount); err != nil {
			return err
		}
		return tx.Jobs().Create(ctx, job)
	})
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientCredits) {
			s.metrics.submission(ctx, "insufficient_credits")
		}
		return result, err
	}
	result.JobID = job.ID
	s.logger.Info().
		Str("job_id", job.ID).
		Str("requester_id", job.RequesterID).
		Str("tier", string(req.Tier)).
		Str("country", req.Country).
		Int64("hold", job.CreditHoldAmount).
		Msg("job admitted")

	// The job is durable from here on; a client disconnect must not cut the
	// provider hand-off or its compensation short.
	result.Status = s.dispatch(context.WithoutCancel(ctx), job, params)
	s.metrics.submission(ctx, strings.ToLower(string(result.Status)))
	return result, nil
}

// dispatch calls the provider for a QUEUED job and records the outcome.
func (s *Service) dispatch(ctx context.Context, job *domain.GenerationJob, params jsoncfg.PromptParams) domain.JobStatus {
	log := s.logger.With().Str("job_id", job.ID).Logger()

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	start := time.Now()
	sub, err := s.provider.Submit(callCtx, video.SubmitRequest{
		JobID:       job.ID,
		ImageURL:    job.InputImageURL,
		Params:      params,
		CallbackURL: s.jobCallbackURL(job.ID),
	})
	cancel()
	s.metrics.providerCall(ctx, time.Since(start), err)
	if err == nil && strings.TrimSpace(sub.TaskID) == "" {
		err = fmt.Errorf("%w: empty task id", domain.ErrProviderUnavailable)
	}

	if err != nil {
		log.Warn().Err(err).Msg("provider submission failed")
		msg := truncate(fmt.Sprintf("provider submission failed: %v", err), maxErrorMessage)
		ferr := s.retry.Do(ctx, func(ctx context.Context) error {
			_, err := s.failAndRefund(ctx, job.ID, msg)
			return err
		})
		if ferr != nil {
			// The reconciler fails and refunds stale QUEUED jobs.
			log.Error().Err(ferr).Msg("fail and refund after provider error")
			return domain.JobStatusQueued
		}
		return domain.JobStatusFailed
	}

	var applied, duplicate bool
	merr := s.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		applied, err = s.store.Jobs().MarkProcessing(ctx, job.ID, sub.TaskID)
		if errors.Is(err, domain.ErrDuplicateTaskID) {
			duplicate = true
			return nil
		}
		return err
	})
	switch {
	case merr != nil:
		log.Error().Err(merr).Str("task_id", sub.TaskID).Msg("record provider task id")
		return domain.JobStatusQueued
	case duplicate:
		log.Error().Str("task_id", sub.TaskID).Err(domain.ErrDuplicateTaskID).Msg("provider reused a task id")
		ferr := s.retry.Do(ctx, func(ctx context.Context) error {
			_, err := s.failAndRefund(ctx, job.ID, "provider returned a task id already bound to another job")
			return err
		})
		if ferr != nil {
			return domain.JobStatusQueued
		}
		return domain.JobStatusFailed
	case !applied:
		// The job already reached a terminal state.
		log.Warn().Str("task_id", sub.TaskID).Err(domain.ErrInvalidTransition).Msg("provider acceptance not recorded")
		current, err := s.store.Jobs().GetByID(ctx, job.ID)
		if err != nil {
			return domain.JobStatusQueued
		}
		return current.Status
	}
	log.Info().Str("task_id", sub.TaskID).Msg("job accepted by provider")
	return domain.JobStatusProcessing
}

// RequesterTier resolves the rate-limit tier from the requester's stored
// account, for submissions made on someone else's behalf.
func (s *Service) RequesterTier(ctx context.Context, userID string) (domain.Tier, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return domain.TierFor(user.Plan, user.Role), nil
}

// jobCallbackURL tags the webhook address with the job id so a callback
// that outruns MarkProcessing can still find its job.
func (s *Service) jobCallbackURL(jobID string) string {
	if s.callbackURL == "" {
		return ""
	}
	u, err := url.Parse(s.callbackURL)
	if err != nil {
		return s.callbackURL
	}
	q := u.Query()
	q.Set(CallbackJobParam, jobID)
	u.RawQuery = q.Encode()
	return u.String()
}

func validateImageURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("%w: imageUrl is required", domain.ErrInvalidRequest)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: imageUrl must be an absolute http(s) URL", domain.ErrInvalidRequest)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
