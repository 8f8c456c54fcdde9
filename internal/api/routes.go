package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the admin routes. extra mounts further routes, such
// as the tracking endpoints, on the same router before the API group.
func SetupRoutes(h *Handlers, allowedOrigins []string, extra ...func(chi.Router)) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	for _, mount := range extra {
		mount(r)
	}
	if len(extra) == 0 {
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))

		r.Route("/newsletters/{id}", func(r chi.Router) {
			r.Post("/dispatch", h.HandleDispatch)
			r.Get("/progress", h.HandleProgress)
			r.Post("/analytics", h.HandleCreateAnalytics)
			r.Get("/analytics", h.HandleAnalytics)
		})
	})

	return r
}
