package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"vidgen/internal/http/handlers"
	"vidgen/internal/middleware"
)

// RouterOptions configures the shared middleware chain.
type RouterOptions struct {
	JWTSecret     string
	CORSOrigins   []string
	DefaultLocale string
	CountryLookup middleware.CountryLookup
	Logger        zerolog.Logger
}

func NewRouter(app *handlers.App, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
	)

	r.Get("/healthz", app.Health)
	r.Get("/openapi.json", app.OpenAPIJSON)
	r.Get("/docs", app.OpenAPIDocs)

	// Provider webhooks authenticate by body signature, not by session.
	r.Post("/jobs/callback", app.JobCallback)

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthJWT(opts.JWTSecret))
		r.Post("/jobs", app.CreateJob)
		r.Get("/jobs/{jobId}", app.JobStatus)
		r.Get("/credits", app.Credits)
		r.Post("/credits/grants", app.GrantCredits)
	})

	return r
}
