package generation

import (
	"context"

	"vidgen/internal/domain"
)

// Status returns the job as stored. Jobs owned by someone else are reported
// as not found unless the caller is an administrator.
func (s *Service) Status(ctx context.Context, jobID string, caller domain.Caller) (*domain.GenerationJob, error) {
	job, err := s.store.Jobs().GetByID(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.RequesterID != caller.UserID && !caller.IsAdmin() {
		return nil, domain.ErrNotFound
	}
	return job, nil
}
