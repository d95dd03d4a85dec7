package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/anndex/internal/lookup"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
// onReload, if non-nil, observes every reload requested through the API.
func NewRouter(svc *lookup.Service, authEnabled bool, token string, sseHandler http.Handler, onReload ReloadObserver) chi.Router {
	h := NewHandler(svc, onReload)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Annotation queries.
	r.Get("/annotations", h.ListTypes)
	r.Get("/annotations/{type}", h.Lookup)

	// Loaded index.
	r.Get("/index", h.Stats)
	r.Post("/index/reload", h.Reload)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
