package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"vidgen/internal/domain"
)

type transactionResponse struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Reason    string    `json:"reason"`
	Amount    int64     `json:"amount"`
	JobID     *string   `json:"jobId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

type grantRequest struct {
	UserID string `json:"userId"`
	Amount int64  `json:"amount"`
}

// Credits handles GET /credits: the caller's balance and recent ledger rows.
func (a *App) Credits(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.currentCaller(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit > 200 {
		limit = 200
	}
	stmt, err := a.Jobs.Ledger().Statement(r.Context(), caller.UserID, limit)
	if err != nil {
		a.Logger.Error().Err(err).Str("user_id", caller.UserID).Msg("load credit statement")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load credits")
		return
	}
	items := make([]transactionResponse, 0, len(stmt.Transactions))
	for _, tx := range stmt.Transactions {
		items = append(items, transactionResponse{
			ID:        tx.ID,
			Type:      string(tx.Type),
			Reason:    string(tx.Reason),
			Amount:    tx.Amount,
			JobID:     tx.JobID,
			CreatedAt: tx.CreatedAt,
		})
	}
	a.json(w, http.StatusOK, map[string]any{"balance": stmt.Balance, "transactions": items})
}

// GrantCredits handles POST /credits/grants. Administrators only.
func (a *App) GrantCredits(w http.ResponseWriter, r *http.Request) {
	caller, ok := a.currentCaller(r)
	if !ok {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
		return
	}
	if !caller.IsAdmin() {
		a.error(w, http.StatusForbidden, "forbidden", "admin only")
		return
	}
	var req grantRequest
	if err := a.decode(w, r, &req); err != nil || strings.TrimSpace(req.UserID) == "" || req.Amount <= 0 {
		a.error(w, http.StatusBadRequest, "bad_request", "userId and a positive amount are required")
		return
	}
	balance, err := a.Jobs.Ledger().Grant(r.Context(), req.UserID, req.Amount)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "user not found")
		return
	case err != nil:
		a.Logger.Error().Err(err).Str("user_id", req.UserID).Msg("grant credits")
		a.error(w, http.StatusInternalServerError, "internal", "failed to grant credits")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"userId": req.UserID, "balance": balance})
}
