package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/highlightservice"
	"github.com/starford/marginalia/internal/models"
)

// Handler holds the highlight, page and session route handlers.
type Handler struct {
	svc *highlightservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *highlightservice.Service) *Handler {
	return &Handler{svc: svc}
}

func pageParam(r *http.Request) (int, error) {
	page, err := strconv.Atoi(chi.URLParam(r, "page"))
	if err != nil || page < 1 {
		return 0, fmt.Errorf("page must be a positive integer: %w", apperr.ErrValidation)
	}
	return page, nil
}

// ListHighlights handles GET /api/highlights.
//
//	@Summary		List highlights in creation order
//	@Tags			highlights
//	@Produce		json
//	@Param			page	query		int	false	"Only highlights of this page"
//	@Success		200		{object}	HighlightListResponse
//	@Security		BearerAuth
//	@Router			/highlights [get]
func (h *Handler) ListHighlights(w http.ResponseWriter, r *http.Request) {
	page := 0
	if raw := r.URL.Query().Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, errorBody("page must be a positive integer"))
			return
		}
		page = n
	}
	writeJSON(w, http.StatusOK, HighlightListResponse{Highlights: h.svc.List(r.Context(), page)})
}

// ExportHighlights handles GET /api/highlights/export.
//
//	@Summary		Export highlights as a Markdown note
//	@Tags			highlights
//	@Produce		text/markdown
//	@Success		200	{string}	string	"Markdown with YAML frontmatter"
//	@Security		BearerAuth
//	@Router			/highlights/export [get]
func (h *Handler) ExportHighlights(w http.ResponseWriter, r *http.Request) {
	out, err := h.svc.ExportMarkdown(r.Context())
	if err != nil {
		writeError(w, "export highlights", err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="highlights.md"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// GetHighlight handles GET /api/highlights/{id}.
//
//	@Summary		Get a single highlight
//	@Tags			highlights
//	@Produce		json
//	@Param			id	path		string	true	"Highlight id"
//	@Success		200	{object}	Highlight
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlights/{id} [get]
func (h *Handler) GetHighlight(w http.ResponseWriter, r *http.Request) {
	hl, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get highlight", err)
		return
	}
	writeJSON(w, http.StatusOK, hl)
}

// DeleteHighlight handles DELETE /api/highlights/{id}. Unknown ids succeed.
//
//	@Summary		Delete a highlight
//	@Tags			highlights
//	@Param			id	path	string	true	"Highlight id"
//	@Success		204	"Highlight deleted"
//	@Security		BearerAuth
//	@Router			/highlights/{id} [delete]
func (h *Handler) DeleteHighlight(w http.ResponseWriter, r *http.Request) {
	h.svc.Delete(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// ClearHighlights handles DELETE /api/highlights.
//
//	@Summary		Remove every highlight
//	@Tags			highlights
//	@Produce		json
//	@Success		200	{object}	ClearResponse
//	@Security		BearerAuth
//	@Router			/highlights [delete]
func (h *Handler) ClearHighlights(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ClearResponse{Removed: h.svc.Clear(r.Context())})
}

// UpdateNote handles PUT /api/highlights/{id}/note.
//
//	@Summary		Set or remove the note of a highlight
//	@Tags			highlights
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string		true	"Highlight id"
//	@Param			body	body		NoteRequest	true	"Note text"
//	@Success		200		{object}	Highlight
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/highlights/{id}/note [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "update note", err)
		return
	}
	hl, err := h.svc.UpdateNote(r.Context(), chi.URLParam(r, "id"), req.Note)
	if err != nil {
		writeError(w, "update note", err)
		return
	}
	writeJSON(w, http.StatusOK, hl)
}

// CaptureSelection handles POST /api/pages/{page}/selections.
//
//	@Summary		Turn a finished text selection into a highlight
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			page	path		int					true	"1-based page number"
//	@Param			body	body		SelectionRequest	true	"Selection geometry"
//	@Success		201		{object}	Highlight
//	@Success		204		"Empty selection, nothing stored"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{page}/selections [post]
func (h *Handler) CaptureSelection(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeError(w, "capture selection", err)
		return
	}
	var req SelectionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "capture selection", err)
		return
	}
	hl, err := h.svc.Capture(r.Context(), highlightservice.SelectionRequest{
		Page:          page,
		Text:          req.Text,
		SelectionRect: req.SelectionRect,
		PageRect:      req.PageRect,
	})
	if err != nil {
		writeError(w, "capture selection", err)
		return
	}
	if hl == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, hl)
}

// PageOverlays handles POST /api/pages/{page}/overlays.
//
//	@Summary		Compute highlight overlays for a rendered page
//	@Tags			pages
//	@Accept			json
//	@Produce		json
//	@Param			page	path		int				true	"1-based page number"
//	@Param			body	body		OverlayRequest	true	"Rendered container size"
//	@Success		200		{object}	OverlayResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/pages/{page}/overlays [post]
func (h *Handler) PageOverlays(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		writeError(w, "page overlays", err)
		return
	}
	var req OverlayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "page overlays", err)
		return
	}
	overlays, err := h.svc.Overlays(r.Context(), page, req.Container)
	if err != nil {
		writeError(w, "page overlays", err)
		return
	}
	writeJSON(w, http.StatusOK, OverlayResponse{Page: page, Overlays: overlays})
}

// GetSession handles GET /api/session/color.
//
//	@Summary		Get the active color and edit target
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	session.State
//	@Security		BearerAuth
//	@Router			/session/color [get]
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Session(r.Context()))
}

// SetColor handles PUT /api/session/color.
//
//	@Summary		Change the active color
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ColorRequest	true	"Palette color"
//	@Success		200		{object}	session.State
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/color [put]
func (h *Handler) SetColor(w http.ResponseWriter, r *http.Request) {
	var req ColorRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "set color", err)
		return
	}
	st, err := h.svc.SetColor(r.Context(), req.Color)
	if err != nil {
		writeError(w, "set color", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// BeginEdit handles POST /api/session/edit.
//
//	@Summary		Start editing the note of a highlight
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EditRequest	true	"Highlight id"
//	@Success		200		{object}	session.State
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/edit [post]
func (h *Handler) BeginEdit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "begin edit", err)
		return
	}
	st, err := h.svc.BeginEdit(r.Context(), req.ID)
	if err != nil {
		writeError(w, "begin edit", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// CancelEdit handles DELETE /api/session/edit.
//
//	@Summary		Abandon the current note edit
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	session.State
//	@Security		BearerAuth
//	@Router			/session/edit [delete]
func (h *Handler) CancelEdit(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.CancelEdit(r.Context()))
}

// CommitEdit handles POST /api/session/edit/commit.
//
//	@Summary		Save the edited note and end the edit
//	@Tags			session
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CommitRequest	true	"Highlight id and note"
//	@Success		200		{object}	Highlight
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/session/edit/commit [post]
func (h *Handler) CommitEdit(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "commit edit", err)
		return
	}
	hl, err := h.svc.CommitEdit(r.Context(), req.ID, req.Note)
	if err != nil {
		writeError(w, "commit edit", err)
		return
	}
	writeJSON(w, http.StatusOK, hl)
}

// Palette handles GET /api/palette.
//
//	@Summary		List the selectable highlight colors
//	@Tags			session
//	@Produce		json
//	@Success		200	{object}	PaletteResponse
//	@Router			/palette [get]
func (h *Handler) Palette(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, PaletteResponse{Colors: h.svc.Palette(), Default: models.DefaultColor})
}
