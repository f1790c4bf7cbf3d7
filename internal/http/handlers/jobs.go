package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vidgen/internal/domain"
	"vidgen/internal/domain/jsoncfg"
	"vidgen/internal/generation"
	"vidgen/internal/middleware"
)

type createJobRequest struct {
	ImageURL     string               `json:"imageUrl"`
	PromptParams jsoncfg.PromptParams `json:"promptParams"`
	RequesterID  string               `json:"requesterId"`
}

type createJobResponse struct {
	JobID  string `json:"jobId"`
	Status string `json:"status"`
}

type jobStatusResponse struct {
	JobID        string    `json:"jobId"`
	Status       string    `json:"status"`
	Progress     int       `json:"progress"`
	VideoURL     *string   `json:"videoUrl,omitempty"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// CreateJob handles POST /jobs.
func (a *App) CreateJob(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.currentCaller(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	var req createJobRequest
	if err := a.decode(w, r, &req); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	requester := strings.TrimSpace(req.RequesterID)
	if requester == "" {
		requester = caller.UserID
	}
	if requester != caller.UserID && !caller.IsAdmin() {
		a.error(w, http.StatusForbidden, "forbidden", "cannot submit on behalf of another user")
		return
	}

	// Admission is charged to the requester, not to an admin acting for them.
	tier := domain.TierFor(caller.Plan, caller.Role)
	identity := middleware.RateLimitIdentity(r)
	if requester != caller.UserID {
		var err error
		tier, err = a.Jobs.RequesterTier(r.Context(), requester)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			a.error(w, http.StatusNotFound, "not_found", "requester not found")
			return
		case err != nil:
			a.Logger.Error().Err(err).Str("requester_id", requester).Msg("load requester")
			a.error(w, http.StatusInternalServerError, "internal", "failed to submit job")
			return
		}
		identity = middleware.UserIdentity(requester)
	}

	res, err := a.Jobs.Submit(r.Context(), generation.SubmitRequest{
		RequesterID: requester,
		Tier:        tier,
		Identity:    identity,
		ImageURL:    req.ImageURL,
		Params:      req.PromptParams,
		Locale:      middleware.LocaleFromContext(r.Context()),
		Country:     middleware.CountryFromContext(r.Context()),
	})
	if res != nil {
		middleware.WriteRateLimitHeaders(w, res.Decision, a.now())
	}

	var rle *domain.RateLimitError
	var ice *domain.InsufficientCreditsError
	switch {
	case err == nil:
		a.json(w, http.StatusCreated, createJobResponse{JobID: res.JobID, Status: string(res.Status)})
	case errors.As(err, &rle):
		a.json(w, http.StatusTooManyRequests, map[string]any{
			"error":        "rate_limited",
			"limit":        rle.Limit,
			"remaining":    rle.Remaining,
			"resetSeconds": middleware.ResetSeconds(res.Decision, a.now()),
		})
	case errors.As(err, &ice):
		a.json(w, http.StatusPaymentRequired, map[string]any{
			"error":    "insufficient_credits",
			"required": ice.Required,
			"balance":  ice.Balance,
		})
	case errors.Is(err, domain.ErrInvalidPrompt), errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		a.Logger.Error().Err(err).Str("requester_id", requester).Msg("submit job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to submit job")
	}
}

// JobStatus handles GET /jobs/{jobId}.
func (a *App) JobStatus(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.currentCaller(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	jobID := chi.URLParam(r, "jobId")
	job, err := a.Jobs.Status(r.Context(), jobID, caller)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "job not found")
		return
	case err != nil:
		a.Logger.Error().Err(err).Str("job_id", jobID).Msg("load job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load job")
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	a.json(w, http.StatusOK, jobStatusResponse{
		JobID:        job.ID,
		Status:       string(job.Status),
		Progress:     job.Progress,
		VideoURL:     job.VideoURL,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt,
		UpdatedAt:    job.UpdatedAt,
	})
}
