package server

import (
	"net/http"

	"github.com/cadencehq/cadence/internal/api"
	"github.com/cadencehq/cadence/internal/api/handlers"
	"github.com/cadencehq/cadence/internal/api/middleware"
	"github.com/go-chi/chi/v5"
)

type RouterConfig struct {
	APIKey             string
	EnrollmentHandler  *handlers.EnrollmentHandler
	ContactHandler     *handlers.ContactHandler
	SuppressionHandler *handlers.SuppressionHandler
	KnowledgeHandler   *handlers.KnowledgeHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 5 * 1024 * 1024

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKey))

		r.Post("/enroll", cfg.EnrollmentHandler.Enroll)

		r.Route("/contacts", func(r chi.Router) {
			r.Get("/counts", cfg.ContactHandler.Counts)
			r.Get("/{id}", cfg.ContactHandler.Get)
			r.Get("/{id}/history", cfg.ContactHandler.History)
			r.Get("/{id}/score", cfg.ContactHandler.Score)
			r.Post("/{id}/pause", cfg.ContactHandler.Pause)
			r.Post("/{id}/resume", cfg.ContactHandler.Resume)
		})

		r.Route("/suppressions", func(r chi.Router) {
			r.Post("/", cfg.SuppressionHandler.Create)
			r.Get("/", cfg.SuppressionHandler.List)
			r.Get("/{email}", cfg.SuppressionHandler.Get)
		})

		r.Route("/knowledge", func(r chi.Router) {
			r.Post("/", cfg.KnowledgeHandler.Create)
			r.Get("/", cfg.KnowledgeHandler.List)
			r.Get("/{id}", cfg.KnowledgeHandler.Get)
			r.Put("/{id}", cfg.KnowledgeHandler.Update)
			r.Delete("/{id}", cfg.KnowledgeHandler.Delete)
		})
	})

	return r
}
