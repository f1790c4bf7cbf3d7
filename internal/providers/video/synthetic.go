package video

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"vidgen/internal/webhook"
)

// Synthetic is a local stand-in for the provider. It accepts every task,
// reports progress, and delivers a signed success callback after Delay.
type Synthetic struct {
	Delay      time.Duration
	Secret     []byte
	HTTPClient *http.Client
	Logger     zerolog.Logger
	// FailPrompt makes tasks whose prompt equals it end in failure.
	FailPrompt string
	// Retention is how long a finished task stays visible to Task after its
	// final callback. Zero keeps it forever.
	Retention time.Duration

	mu    sync.Mutex
	tasks map[string]*TaskStatus
}

func NewSynthetic(delay time.Duration, secret []byte, logger zerolog.Logger) *Synthetic {
	return &Synthetic{
		Delay:      delay,
		Secret:     secret,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		Logger:     logger,
		FailPrompt: "__fail__",
		Retention:  15 * time.Minute,
		tasks:      make(map[string]*TaskStatus),
	}
}

func (s *Synthetic) Submit(ctx context.Context, req SubmitRequest) (*Submission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	taskID := "synthetic-" + uuid.NewString()
	s.mu.Lock()
	s.tasks[taskID] = &TaskStatus{TaskID: taskID, State: StateWaiting}
	s.mu.Unlock()

	go s.run(taskID, req)
	return &Submission{TaskID: taskID}, nil
}

func (s *Synthetic) Task(_ context.Context, taskID string) (*TaskStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown task %s", ErrRejected, taskID)
	}
	out := *status
	out.ResultURLs = append([]string(nil), status.ResultURLs...)
	return &out, nil
}

func (s *Synthetic) run(taskID string, req SubmitRequest) {
	half := s.Delay / 2
	time.Sleep(half)
	s.update(taskID, func(st *TaskStatus) {
		st.State = StateGenerating
		st.Progress = 50
	})
	s.deliver(req.CallbackURL, map[string]any{"taskId": taskID, "state": "generating", "progress": 50})

	time.Sleep(s.Delay - half)
	payload := map[string]any{"taskId": taskID}
	if req.Params.Prompt == s.FailPrompt {
		s.update(taskID, func(st *TaskStatus) {
			st.State = StateFail
			st.ErrorMessage = "synthetic failure"
		})
		payload["state"] = "fail"
		payload["failMsg"] = "synthetic failure"
	} else {
		url := fmt.Sprintf("https://cdn.example.com/synthetic/%s.mp4", taskID)
		s.update(taskID, func(st *TaskStatus) {
			st.State = StateSuccess
			st.Progress = 100
			st.ResultURLs = []string{url}
		})
		payload["state"] = "success"
		payload["resultUrls"] = []string{url}
	}
	s.deliver(req.CallbackURL, map[string]any{"code": 200, "msg": "ok", "data": payload})
	if s.Retention > 0 {
		time.AfterFunc(s.Retention, func() { s.forget(taskID) })
	}
}

func (s *Synthetic) forget(taskID string) {
	s.mu.Lock()
	delete(s.tasks, taskID)
	s.mu.Unlock()
}

func (s *Synthetic) update(taskID string, mutate func(*TaskStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.tasks[taskID]; ok {
		mutate(st)
	}
}

func (s *Synthetic) deliver(callbackURL string, payload any) {
	if callbackURL == "" {
		return
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	req, err := http.NewRequest(http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		s.Logger.Warn().Err(err).Msg("synthetic: build callback")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if len(s.Secret) > 0 {
		req.Header.Set(webhook.SignatureHeader, webhook.Sign(s.Secret, body))
	}
	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		s.Logger.Warn().Err(err).Str("url", callbackURL).Msg("synthetic: deliver callback")
		return
	}
	resp.Body.Close()
}

var _ Generator = (*Synthetic)(nil)
