package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/middleware"
)

func NewRouter(app *handlers.App) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.CORS(app.Cfg.AllowedOrigins),
		middleware.Session,
		middleware.Logger(app.Logger),
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/v1/generations", func(r chi.Router) {
		r.With(middleware.RateLimit(30, time.Minute)).Post("/", app.CreateGeneration)
		r.Get("/{id}", app.GenerationStatus)
		r.Get("/{id}/outputs", app.GenerationOutputs)
		r.Get("/{id}/outputs/download", app.DownloadOutputs)
		r.Delete("/{id}", app.DeleteGeneration)
	})

	r.Get("/v1/history", app.History)

	r.Post("/v1/uploads/sign", app.SignUpload)
	r.Put("/v1/uploads/direct/*", app.DirectUpload)
	r.Get("/v1/files/*", app.ServeFile)

	return r
}
