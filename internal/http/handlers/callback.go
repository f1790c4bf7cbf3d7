package handlers

import (
	"io"
	"net/http"

	"vidgen/internal/generation"
	"vidgen/internal/webhook"
)

// JobCallback handles POST /jobs/callback from the provider. Everything the
// provider should not redeliver is acknowledged with 200; only local
// failures return 5xx.
func (a *App) JobCallback(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "unreadable body")
		return
	}
	if len(a.CallbackSecret) > 0 && !webhook.Verify(a.CallbackSecret, body, r.Header.Get(webhook.SignatureHeader)) {
		a.Logger.Warn().Str("remote", r.RemoteAddr).Msg("callback signature rejected")
		a.error(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
		return
	}

	payload, err := generation.ParseCallback(body)
	if err != nil {
		a.Logger.Warn().Err(err).Msg("malformed callback")
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	payload.JobID = r.URL.Query().Get(generation.CallbackJobParam)

	outcome, err := a.Jobs.HandleCallback(r.Context(), payload)
	if err != nil {
		a.Logger.Error().Err(err).Str("task_id", payload.TaskID).Msg("apply callback")
		a.error(w, http.StatusInternalServerError, "internal", "callback not applied")
		return
	}
	a.json(w, http.StatusOK, map[string]any{"ok": true, "outcome": outcome})
}
