package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"vidgen/internal/domain"
	"vidgen/internal/generation"
	"vidgen/internal/middleware"
)

// maxBodyBytes bounds every JSON request body, callbacks included.
const maxBodyBytes = 1 << 20

// App carries the dependencies of the HTTP handlers.
type App struct {
	Jobs           *generation.Service
	Logger         zerolog.Logger
	CallbackSecret []byte
	// Ready reports whether backing services are reachable.
	Ready func(ctx context.Context) error
	Now   func() time.Time
}

func (a *App) now() time.Time {
	if a.Now != nil {
		return a.Now()
	}
	return time.Now()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, map[string]string{"error": code, "message": message})
}

func (a *App) currentCaller(r *http.Request) (domain.Caller, bool) {
	return middleware.CallerFromContext(r.Context())
}

func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}
