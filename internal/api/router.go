package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/marginalia/internal/highlightservice"
	"github.com/starford/marginalia/internal/library"
)

// Deps bundles what the API routes need.
type Deps struct {
	Highlights     *highlightservice.Service
	Library        *library.Library
	MaxUploadBytes int64
}

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(deps Deps, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(deps.Highlights)
	dh := NewDocumentHandler(deps.Library, deps.Highlights.Workspace(), deps.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Documents.
	r.Post("/documents", dh.Upload)
	r.Get("/documents", dh.List)
	r.Get("/documents/active", dh.Active)
	r.Delete("/documents/active", dh.Reset)
	r.Post("/documents/{id}/activate", dh.Activate)
	r.Get("/documents/{id}/pages/{page}/text", dh.PageText)

	// Highlights.
	r.Get("/highlights", h.ListHighlights)
	r.Delete("/highlights", h.ClearHighlights)
	r.Get("/highlights/export", h.ExportHighlights)
	r.Get("/highlights/{id}", h.GetHighlight)
	r.Delete("/highlights/{id}", h.DeleteHighlight)
	r.Put("/highlights/{id}/note", h.UpdateNote)

	// Pages.
	r.Post("/pages/{page}/selections", h.CaptureSelection)
	r.Post("/pages/{page}/overlays", h.PageOverlays)

	// Session.
	r.Get("/session/color", h.GetSession)
	r.Put("/session/color", h.SetColor)
	r.Post("/session/edit", h.BeginEdit)
	r.Delete("/session/edit", h.CancelEdit)
	r.Post("/session/edit/commit", h.CommitEdit)
	r.Get("/palette", h.Palette)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

// NewFileRouter serves stored PDFs at /{name}; mount it under /files.
func NewFileRouter(deps Deps, authEnabled bool, token string) chi.Router {
	dh := NewDocumentHandler(deps.Library, deps.Highlights.Workspace(), deps.MaxUploadBytes)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))
	r.Get("/{name}", dh.ServeFile)
	return r
}
