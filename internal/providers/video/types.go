package video

import (
	"context"
	"strings"

	"vidgen/internal/domain/jsoncfg"
)

// SubmitRequest is one image-to-video task handed to the provider.
type SubmitRequest struct {
	JobID       string
	ImageURL    string
	Params      jsoncfg.PromptParams
	CallbackURL string
}

// Submission is the provider's acceptance of a task.
type Submission struct {
	TaskID string
}

// TaskState is the provider-side lifecycle of a task, normalized.
type TaskState string

const (
	StateWaiting    TaskState = "waiting"
	StateGenerating TaskState = "generating"
	StateSuccess    TaskState = "success"
	StateFail       TaskState = "fail"
	StateUnknown    TaskState = "unknown"
)

// ParseState folds the provider's state vocabulary onto TaskState.
func ParseState(raw string) TaskState {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "succeeded", "completed":
		return StateSuccess
	case "fail", "failed", "error":
		return StateFail
	case "waiting", "queuing", "queued", "pending":
		return StateWaiting
	case "generating", "processing", "running":
		return StateGenerating
	}
	return StateUnknown
}

// IsTerminal reports whether the provider will not change the task again.
func (s TaskState) IsTerminal() bool {
	return s == StateSuccess || s == StateFail
}

// TaskStatus is a point-in-time view of a provider task.
type TaskStatus struct {
	TaskID       string
	State        TaskState
	ResultURLs   []string
	ErrorMessage string
	Progress     int
}

// Generator submits tasks to an asynchronous image-to-video provider and
// reads their status back.
type Generator interface {
	Submit(ctx context.Context, req SubmitRequest) (*Submission, error)
	Task(ctx context.Context, taskID string) (*TaskStatus, error)
}
