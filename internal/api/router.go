package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bobarin/lessoncast/internal/logger"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig, log *logger.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (applied to all routes including /health)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   parseOrigins(cfg.CorsAllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Public
	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		// Lesson save hooks; a slide change starts a new video run
		r.Post("/lessons", h.CreateLesson)
		r.Put("/lessons/{id}", h.UpdateLesson)

		// Video
		r.Get("/lessons/{id}/video", h.GetLessonVideo)
		r.Post("/lessons/{id}/video/regenerate", h.RegenerateVideo)
		r.Post("/lessons/{id}/video/cancel", h.CancelVideo)

		// Speech
		r.Get("/usage", h.GetUsage)
		r.Get("/voices", h.ListVoices)
	})

	return r
}

// parseOrigins restricts CORS when configured, otherwise allows all (dev mode).
func parseOrigins(raw string) []string {
	allowed := []string{"*"}
	if raw == "" {
		return allowed
	}
	var trimmed []string
	for _, o := range strings.Split(raw, ",") {
		if s := strings.TrimSpace(o); s != "" {
			trimmed = append(trimmed, s)
		}
	}
	if len(trimmed) > 0 {
		return trimmed
	}
	return allowed
}
