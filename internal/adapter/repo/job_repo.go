package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"vidgen/internal/domain"
	"vidgen/internal/infra"
	"vidgen/internal/sqlinline"
)

const providerTaskIDConstraint = "generation_jobs_provider_task_id_key"

// JobRepositoryPG implements domain.JobRepository.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a job repository outside any transaction.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a QUEUED job. The caller supplies the id.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.GenerationJob) error {
	if !validID(job.ID) {
		return fmt.Errorf("%w: job id must be a uuid", domain.ErrInvalidRequest)
	}
	prompt := job.PromptTemplate
	if len(prompt) == 0 {
		prompt = json.RawMessage("{}")
	}
	row := r.sql.QueryRow(ctx, sqlinline.QInsertJob,
		job.ID,
		job.RequesterID,
		job.InputImageURL,
		[]byte(prompt),
		job.CreditHoldAmount,
	)
	if err := row.Scan(&job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	job.Status = domain.JobStatusQueued
	job.Progress = 0
	return nil
}

// GetByID fetches a job by its identifier.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.GenerationJob, error) {
	if !validID(jobID) {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByID, jobID))
}

// GetByProviderTaskID resolves the job a provider callback refers to.
func (r *JobRepositoryPG) GetByProviderTaskID(ctx context.Context, taskID string) (*domain.GenerationJob, error) {
	if taskID == "" {
		return nil, domain.ErrNotFound
	}
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectJobByTaskID, taskID))
}

func (r *JobRepositoryPG) MarkProcessing(ctx context.Context, jobID, taskID string) (bool, error) {
	applied, err := r.conditional(ctx, sqlinline.QMarkJobProcessing, jobID, taskID)
	if infra.IsUniqueViolation(err, providerTaskIDConstraint) {
		return false, fmt.Errorf("%w: %s", domain.ErrDuplicateTaskID, taskID)
	}
	return applied, err
}

func (r *JobRepositoryPG) UpdateProgress(ctx context.Context, jobID string, progress int) (bool, error) {
	return r.conditional(ctx, sqlinline.QUpdateJobProgress, jobID, domain.ClampProgress(progress))
}

func (r *JobRepositoryPG) Complete(ctx context.Context, jobID, videoURL string) (bool, error) {
	return r.conditional(ctx, sqlinline.QCompleteJob, jobID, videoURL)
}

func (r *JobRepositoryPG) Fail(ctx context.Context, jobID, errMsg string) (bool, error) {
	return r.conditional(ctx, sqlinline.QFailJob, jobID, errMsg)
}

// conditional runs a guarded UPDATE ... RETURNING and reports whether a row
// matched the expected state.
func (r *JobRepositoryPG) conditional(ctx context.Context, query, jobID string, arg any) (bool, error) {
	if !validID(jobID) {
		return false, domain.ErrNotFound
	}
	var id string
	if err := r.sql.QueryRow(ctx, query, jobID, arg).Scan(&id); err != nil {
		if infra.IsNoRows(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *JobRepositoryPG) ListStale(ctx context.Context, status domain.JobStatus, updatedBefore time.Time, limit int) ([]domain.GenerationJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListStaleJobs, string(status), updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale jobs: %w", err)
	}
	return collectJobs(rows)
}

func (r *JobRepositoryPG) ListUnsettledFailures(ctx context.Context, limit int) ([]domain.GenerationJob, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListUnsettledFailures, limit)
	if err != nil {
		return nil, fmt.Errorf("list unsettled failures: %w", err)
	}
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]domain.GenerationJob, error) {
	defer rows.Close()
	var jobs []domain.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanJob(row pgx.Row) (*domain.GenerationJob, error) {
	var (
		job    domain.GenerationJob
		status string
		prompt []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.ProviderTaskID,
		&status,
		&job.Progress,
		&job.RequesterID,
		&job.InputImageURL,
		&prompt,
		&job.VideoURL,
		&job.ErrorMessage,
		&job.CreditHoldAmount,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.PromptTemplate = json.RawMessage(prompt)
	return &job, nil
}
