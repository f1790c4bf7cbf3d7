package generation

import (
	"context"
	"fmt"

	"vidgen/internal/domain"
	"vidgen/internal/providers/video"
)

// ReconcileReport counts what one sweep changed.
type ReconcileReport struct {
	StaleQueued int
	Polled      int
	Completed   int
	Failed      int
	TimedOut    int
	Refunded    int
}

// Reconcile repairs jobs whose callbacks or compensations never landed:
// QUEUED jobs the provider never acknowledged are failed and refunded,
// PROCESSING jobs with no recent update are polled at the provider, and
// FAILED jobs still holding credits are refunded.
func (s *Service) Reconcile(ctx context.Context) (ReconcileReport, error) {
	var report ReconcileReport
	now := s.now()

	queued, err := s.store.Jobs().ListStale(ctx, domain.JobStatusQueued, now.Add(-s.staleQueuedAfter), s.batchSize)
	if err != nil {
		return report, fmt.Errorf("list stale queued jobs: %w", err)
	}
	for _, job := range queued {
		applied, err := s.failAndRefund(ctx, job.ID, "provider did not acknowledge the submission")
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("reconcile queued job")
			continue
		}
		if applied {
			report.StaleQueued++
		}
	}

	processing, err := s.store.Jobs().ListStale(ctx, domain.JobStatusProcessing, now.Add(-s.staleProcessingAfter), s.batchSize)
	if err != nil {
		return report, fmt.Errorf("list stale processing jobs: %w", err)
	}
	for i := range processing {
		s.reconcileProcessing(ctx, &processing[i], &report)
	}

	failed, err := s.store.Jobs().ListUnsettledFailures(ctx, s.batchSize)
	if err != nil {
		return report, fmt.Errorf("list unsettled failures: %w", err)
	}
	for _, job := range failed {
		refunded, err := s.ledger.Settle(ctx, job.ID, domain.JobStatusFailed)
		if err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("reconcile refund")
			continue
		}
		if refunded {
			s.metrics.refund(ctx)
			report.Refunded++
		}
	}

	s.metrics.reconcile(ctx, "stale_queued", report.StaleQueued)
	s.metrics.reconcile(ctx, "completed", report.Completed)
	s.metrics.reconcile(ctx, "failed", report.Failed)
	s.metrics.reconcile(ctx, "timed_out", report.TimedOut)
	s.metrics.reconcile(ctx, "refunded", report.Refunded)
	return report, nil
}

func (s *Service) reconcileProcessing(ctx context.Context, job *domain.GenerationJob, report *ReconcileReport) {
	log := s.logger.With().Str("job_id", job.ID).Logger()
	expired := s.now().Sub(job.CreatedAt) > s.maxJobAge

	if job.ProviderTaskID == nil || *job.ProviderTaskID == "" {
		if applied, err := s.failAndRefund(ctx, job.ID, "job has no provider task"); err == nil && applied {
			report.Failed++
		}
		return
	}

	callCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	status, err := s.provider.Task(callCtx, *job.ProviderTaskID)
	cancel()
	report.Polled++
	if err != nil {
		log.Warn().Err(err).Str("task_id", *job.ProviderTaskID).Msg("poll provider task")
		if expired {
			s.expire(ctx, job, report)
		}
		return
	}

	if !status.State.IsTerminal() && expired {
		s.expire(ctx, job, report)
		return
	}
	outcome, err := s.applyTaskStatus(ctx, job, *status, status.State == video.StateGenerating || status.State == video.StateWaiting)
	if err != nil {
		log.Error().Err(err).Msg("apply polled task status")
		return
	}
	switch outcome {
	case OutcomeCompleted:
		report.Completed++
	case OutcomeFailed:
		report.Failed++
	}
}

func (s *Service) expire(ctx context.Context, job *domain.GenerationJob, report *ReconcileReport) {
	applied, err := s.failAndRefund(ctx, job.ID, "provider did not report a result in time")
	if err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("expire job")
		return
	}
	if applied {
		report.TimedOut++
	}
}
