package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"vidgen/internal/domain"
	"vidgen/internal/providers/video"
)

// CallbackPayload is a provider webhook reduced to what the orchestrator acts on.
type CallbackPayload struct {
	// JobID comes from the callback URL query and is only trusted while
	// the job has no task id recorded yet.
	JobID        string
	TaskID       string
	State        video.TaskState
	RawState     string
	ResultURLs   []string
	ErrorMessage string
	Progress     *int
}

// CallbackJobParam is the query parameter carrying the job id on the
// callback URL handed to the provider.
const CallbackJobParam = "jobId"

// CallbackOutcome names what a callback did to its job.
type CallbackOutcome string

const (
	OutcomeUnknownTask CallbackOutcome = "unknown_task"
	OutcomeDuplicate   CallbackOutcome = "duplicate"
	OutcomeCompleted   CallbackOutcome = "completed"
	OutcomeFailed      CallbackOutcome = "failed"
	OutcomeProgress    CallbackOutcome = "progress"
	OutcomeIgnored     CallbackOutcome = "ignored"
)

type callbackBody struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`

	TaskID       string   `json:"taskId"`
	TaskIDAlt    string   `json:"task_id"`
	State        string   `json:"state"`
	ResultURLs   []string `json:"resultUrls"`
	ResultJSON   string   `json:"resultJson"`
	ErrorMessage string   `json:"errorMessage"`
	FailMsg      string   `json:"failMsg"`
	Progress     *float64 `json:"progress"`
}

// ParseCallback decodes a webhook body. Both a flat payload and the
// provider's {code, msg, data} envelope are accepted.
func ParseCallback(body []byte) (CallbackPayload, error) {
	var outer callbackBody
	if err := json.Unmarshal(body, &outer); err != nil {
		return CallbackPayload{}, fmt.Errorf("%w: callback body: %v", domain.ErrInvalidRequest, err)
	}
	inner := outer
	if len(outer.Data) > 0 && string(outer.Data) != "null" && outer.TaskID == "" && outer.TaskIDAlt == "" {
		inner = callbackBody{}
		if err := json.Unmarshal(outer.Data, &inner); err != nil {
			return CallbackPayload{}, fmt.Errorf("%w: callback data: %v", domain.ErrInvalidRequest, err)
		}
	}

	p := CallbackPayload{
		TaskID:       strings.TrimSpace(firstNonEmpty(inner.TaskID, inner.TaskIDAlt)),
		RawState:     inner.State,
		State:        video.ParseState(inner.State),
		ErrorMessage: strings.TrimSpace(firstNonEmpty(inner.ErrorMessage, inner.FailMsg)),
	}
	if p.TaskID == "" {
		return CallbackPayload{}, fmt.Errorf("%w: callback has no task id", domain.ErrInvalidRequest)
	}
	p.ResultURLs = cleanURLs(inner.ResultURLs)
	if len(p.ResultURLs) == 0 && inner.ResultJSON != "" {
		var result struct {
			ResultURLs []string `json:"resultUrls"`
		}
		if err := json.Unmarshal([]byte(inner.ResultJSON), &result); err == nil {
			p.ResultURLs = cleanURLs(result.ResultURLs)
		}
	}
	if inner.Progress != nil {
		v := domain.ClampProgress(int(math.Round(*inner.Progress)))
		p.Progress = &v
	}
	// An envelope error code without a state is a failure report.
	if p.RawState == "" && outer.Code != nil && *outer.Code >= 400 {
		p.State = video.StateFail
		if p.ErrorMessage == "" {
			p.ErrorMessage = strings.TrimSpace(outer.Msg)
		}
	}
	return p, nil
}

// HandleCallback applies a provider webhook to its job. Unknown tasks and
// replays against terminal jobs are acknowledged without effect; only store
// failures are returned so the provider retries delivery.
func (s *Service) HandleCallback(ctx context.Context, p CallbackPayload) (CallbackOutcome, error) {
	log := s.logger.With().Str("task_id", p.TaskID).Str("state", p.RawState).Logger()

	job, err := s.callbackTarget(ctx, p)
	if errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(domain.ErrUnknownCallbackTarget).Msg("callback ignored")
		s.metrics.callback(ctx, OutcomeUnknownTask)
		return OutcomeUnknownTask, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup task %s: %w", p.TaskID, err)
	}

	outcome, err := s.applyTaskStatus(ctx, job, video.TaskStatus{
		TaskID:       p.TaskID,
		State:        p.State,
		ResultURLs:   p.ResultURLs,
		ErrorMessage: p.ErrorMessage,
		Progress:     progressOf(p.Progress),
	}, p.Progress != nil)
	if err != nil {
		return "", err
	}
	s.metrics.callback(ctx, outcome)
	return outcome, nil
}

// callbackTarget finds the job by task id, falling back to the job id from
// the callback URL for a job whose provider acceptance is not recorded yet.
func (s *Service) callbackTarget(ctx context.Context, p CallbackPayload) (*domain.GenerationJob, error) {
	job, err := s.store.Jobs().GetByProviderTaskID(ctx, p.TaskID)
	if !errors.Is(err, domain.ErrNotFound) || p.JobID == "" {
		return job, err
	}
	job, err = s.store.Jobs().GetByID(ctx, p.JobID)
	if err != nil {
		return nil, err
	}
	if job.ProviderTaskID != nil && *job.ProviderTaskID != "" {
		// Bound to a different task: the job id does not belong to this callback.
		return nil, domain.ErrNotFound
	}
	s.logger.Debug().Str("job_id", job.ID).Str("task_id", p.TaskID).Msg("callback matched by job id before task was recorded")
	return job, nil
}

// applyTaskStatus moves job according to the provider's view of its task.
// Every write is a conditional update, so concurrent deliveries for the same
// task settle on whichever lands first.
func (s *Service) applyTaskStatus(ctx context.Context, job *domain.GenerationJob, st video.TaskStatus, hasProgress bool) (CallbackOutcome, error) {
	log := s.logger.With().Str("job_id", job.ID).Str("task_id", st.TaskID).Logger()

	if job.Status.IsTerminal() {
		log.Debug().Err(domain.ErrInvalidTransition).Str("status", string(job.Status)).Msg("replay against terminal job")
		return OutcomeDuplicate, nil
	}

	switch st.State {
	case video.StateSuccess:
		videoURL := ""
		if len(st.ResultURLs) > 0 {
			videoURL = st.ResultURLs[0]
		}
		if videoURL == "" {
			return s.applyFailure(ctx, job, "provider returned no result")
		}
		applied, err := s.store.Jobs().Complete(ctx, job.ID, videoURL)
		if err != nil {
			return "", fmt.Errorf("complete job %s: %w", job.ID, err)
		}
		if !applied {
			log.Info().Err(domain.ErrInvalidTransition).Msg("completion lost to a concurrent terminal transition")
			return OutcomeDuplicate, nil
		}
		log.Info().Str("video_url", videoURL).Msg("job completed")
		return OutcomeCompleted, nil

	case video.StateFail:
		msg := st.ErrorMessage
		if msg == "" {
			msg = "generation failed"
		}
		return s.applyFailure(ctx, job, truncate(msg, maxErrorMessage))

	case video.StateWaiting, video.StateGenerating:
		if hasProgress {
			if _, err := s.store.Jobs().UpdateProgress(ctx, job.ID, st.Progress); err != nil {
				return "", fmt.Errorf("update progress for job %s: %w", job.ID, err)
			}
		}
		return OutcomeProgress, nil
	}

	log.Warn().Msg("callback with unrecognised state ignored")
	return OutcomeIgnored, nil
}

func (s *Service) applyFailure(ctx context.Context, job *domain.GenerationJob, msg string) (CallbackOutcome, error) {
	applied, err := s.failAndRefund(ctx, job.ID, msg)
	if err != nil {
		return "", fmt.Errorf("fail job %s: %w", job.ID, err)
	}
	if !applied {
		s.logger.Info().Str("job_id", job.ID).Err(domain.ErrInvalidTransition).Msg("failure lost to a concurrent terminal transition")
		return OutcomeDuplicate, nil
	}
	s.logger.Info().Str("job_id", job.ID).Str("error", msg).Msg("job failed")
	return OutcomeFailed, nil
}

func progressOf(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func cleanURLs(urls []string) []string {
	var out []string
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}
