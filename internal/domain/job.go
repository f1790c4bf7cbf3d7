package domain

import (
	"encoding/json"
	"time"
)

// JobStatus enumerates generation job lifecycle states.
type JobStatus string

const (
	JobStatusQueued     JobStatus = "QUEUED"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusFailed     JobStatus = "FAILED"
)

// Valid reports whether s is one of the known states.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusQueued, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether a job in state from may move to state to.
// Terminal states are absorbing; PROCESSING may be skipped.
func CanTransition(from, to JobStatus) bool {
	if !from.Valid() || !to.Valid() || from.IsTerminal() {
		return false
	}
	switch to {
	case JobStatusProcessing:
		return from == JobStatusQueued
	case JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// GenerationJob is the durable record of one image-to-video request.
type GenerationJob struct {
	ID               string
	ProviderTaskID   *string
	Status           JobStatus
	Progress         int
	RequesterID      string
	InputImageURL    string
	PromptTemplate   json.RawMessage
	VideoURL         *string
	ErrorMessage     *string
	CreditHoldAmount int64
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Consistent reports whether the artifact fields agree with the status:
// a video URL only on COMPLETED, an error message only on FAILED.
func (j GenerationJob) Consistent() bool {
	hasVideo := j.VideoURL != nil && *j.VideoURL != ""
	hasErr := j.ErrorMessage != nil && *j.ErrorMessage != ""
	switch j.Status {
	case JobStatusCompleted:
		return hasVideo && !hasErr
	case JobStatusFailed:
		return hasErr && !hasVideo
	default:
		return !hasVideo && !hasErr
	}
}

// ClampProgress bounds p to the 0..100 range.
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}
