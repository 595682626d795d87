package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"crafture/internal/http/handlers"
	"crafture/internal/infra"
	"crafture/internal/metrics"
	"crafture/internal/middleware"
)

// Options tunes the cross-cutting middleware.
type Options struct {
	AllowedOrigins  []string
	RateLimitPerMin int
	Logger          infra.Logger
	Metrics         *metrics.Metrics
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", app.Health)

		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).
			Post("/generate-image", app.GenerateImage)

		r.Get("/storage-stats", app.StorageStats)
		r.Post("/setup-payment", app.SetupPayment)
		r.Post("/metadata", app.Metadata)

		r.Get("/history", app.ListHistory)
		r.Get("/history/", app.ListHistory)
		r.Get("/history/{walletAddress}", app.ListHistory)

		r.Get("/content/{contentId}", app.Content)
	})

	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"Not found"}` + "\n"))
	})

	return r
}
