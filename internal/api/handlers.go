package api

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/lookup"
)

// ReloadObserver is told about the outcome of every API-triggered reload.
type ReloadObserver func(stats lookup.Stats, err error)

// Handler holds API route handlers.
type Handler struct {
	svc      *lookup.Service
	onReload ReloadObserver
}

// NewHandler creates a new Handler.
func NewHandler(svc *lookup.Service, onReload ReloadObserver) *Handler {
	return &Handler{svc: svc, onReload: onReload}
}

// typeParam extracts the annotation type name from the URL.
// Supports percent-encoded names (e.g. com.acme.Outer%24Inner).
func typeParam(r *http.Request) string {
	raw := strings.TrimSpace(chi.URLParam(r, "type"))
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeLookupError maps service errors to HTTP responses.
func writeLookupError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, apperr.ErrNoIndex):
		writeError(w, http.StatusServiceUnavailable, "no index loaded")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "artifact not found")
	case errors.Is(err, apperr.ErrCorruptIndex), errors.Is(err, apperr.ErrUnsupportedVersion):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// ListTypes handles GET /api/annotations.
//
//	@Summary		List annotation types present in the index
//	@Tags			annotations
//	@Produce		json
//	@Success		200		{object}	TypeListResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations [get]
func (h *Handler) ListTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.Types()
	if err != nil {
		writeLookupError(w, "list types", err)
		return
	}
	total := 0
	for _, t := range types {
		total += t.Count
	}
	writeJSON(w, http.StatusOK, TypeListResponse{Types: types, Total: total})
}

// Lookup handles GET /api/annotations/{type}.
//
//	@Summary		List every program element carrying an annotation type
//	@Tags			annotations
//	@Produce		json
//	@Param			type	path		string	true	"Fully qualified annotation type name"
//	@Success		200		{object}	LookupResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/annotations/{type} [get]
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	typ := typeParam(r)
	if typ == "" {
		writeError(w, http.StatusBadRequest, "type is required")
		return
	}
	views, err := h.svc.Lookup(typ)
	if err != nil {
		writeLookupError(w, "lookup", err)
		return
	}
	writeJSON(w, http.StatusOK, LookupResponse{Type: typ, Count: len(views), Instances: views})
}

// Stats handles GET /api/index.
//
//	@Summary		Describe the loaded index
//	@Tags			index
//	@Produce		json
//	@Success		200		{object}	lookup.Stats
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats()
	if err != nil {
		writeLookupError(w, "stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Reload handles POST /api/index/reload.
//
//	@Summary		Reload the index from its artifact source
//	@Tags			index
//	@Produce		json
//	@Success		200		{object}	lookup.Stats
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/index/reload [post]
func (h *Handler) Reload(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Reload(r.Context())
	if h.onReload != nil {
		h.onReload(stats, err)
	}
	if err != nil {
		writeLookupError(w, "reload", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
