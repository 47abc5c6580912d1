package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/vocabhive/internal/wordservice"
)

// NewRouter creates a chi router with all API routes mounted.
// sseHandler, if non-nil, is mounted at GET /events.
func NewRouter(svc *wordservice.Service, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()

	r.Get("/metadata", h.Metadata)

	// Levels.
	r.Route("/levels/{level}", func(r chi.Router) {
		r.Get("/words", h.LevelWords)
		r.Get("/progress", h.LevelProgress)
		r.Post("/sweep", h.StartSweep)
	})

	// Words.
	r.Get("/words", h.ListWords)
	r.Get("/words/filter", h.FilterWords)
	r.Get("/words/{id}", h.GetWord)
	r.Put("/words/{id}/bookmark", h.SetBookmark)

	r.Get("/search", h.Search)
	r.Get("/tags", h.Tags)

	// Import and maintenance.
	r.Post("/import", h.Import)
	r.Post("/seed", h.Seed)
	r.Delete("/cache", h.ClearCache)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
