package httpapi

import (
	stdhttp "net/http"
	"time"

	"forge/internal/http/handlers"
	appmw "forge/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Options tunes router-level policy.
type Options struct {
	DefaultLocale   string
	RateLimitPerMin int
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	if opts.DefaultLocale == "" {
		opts.DefaultLocale = "en"
	}
	if opts.RateLimitPerMin <= 0 {
		opts.RateLimitPerMin = 60
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer, middleware.Logger)
	r.Use(appmw.Account())
	r.Use(appmw.I18N(opts.DefaultLocale))
	r.Use(appmw.RateLimit(opts.RateLimitPerMin, time.Minute))

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/generate", app.Generate)
		r.Get("/jobs/{request_id}", app.JobStatus)
		r.Post("/plans/execute", app.PlanExecute)
		r.Post("/agent/message", app.AgentMessage)

		r.Post("/credits/grant", app.CreditGrant)
		r.Get("/accounts/{account_id}/balance", app.Balance)
		r.Get("/accounts/{account_id}/transactions", app.Transactions)
	})

	return r
}
