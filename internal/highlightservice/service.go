// Package highlightservice is the entry point the HTTP and MCP surfaces use
// for every highlight operation. It never holds highlight data of its own.
package highlightservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/capture"
	"github.com/starford/marginalia/internal/export"
	"github.com/starford/marginalia/internal/geometry"
	"github.com/starford/marginalia/internal/highlight"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
	"github.com/starford/marginalia/internal/session"
	"github.com/starford/marginalia/internal/workspace"
)

// Service coordinates the highlight store, session, capture and rendering.
type Service struct {
	store     *highlight.Store
	session   *session.Controller
	workspace *workspace.Workspace
	capturer  *capture.Capturer
	renderer  *render.Renderer
	logger    *slog.Logger
}

// New wires a Service. The capturer reads the active color from sess and
// page bounds from ws.
func New(store *highlight.Store, sess *session.Controller, ws *workspace.Workspace, renderer *render.Renderer, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		session:   sess,
		workspace: ws,
		capturer:  capture.New(store, sess, capture.WithPageCounter(ws), capture.WithLogger(logger)),
		renderer:  renderer,
		logger:    logger,
	}
}

// SelectionRequest describes an end-of-selection gesture measured by a client.
type SelectionRequest struct {
	Page          int
	Text          string
	SelectionRect geometry.Rect
	PageRect      geometry.Rect
}

// Capture runs selection capture for a client-side gesture. A nil highlight
// with nil error means the selection was empty and nothing was stored.
func (s *Service) Capture(ctx context.Context, req SelectionRequest) (*models.Highlight, error) {
	if req.Page < 1 {
		return nil, fmt.Errorf("page must be positive: %w", apperr.ErrValidation)
	}
	snap := &capture.Snapshot{
		Page:          req.Page,
		Text:          req.Text,
		SelectionRect: req.SelectionRect,
		Container:     req.PageRect,
	}
	return s.capturer.OnSelectionEnd(ctx, snap, req.Page)
}

// List returns all highlights, or only those of page when page > 0.
func (s *Service) List(_ context.Context, page int) []models.Highlight {
	if page > 0 {
		return s.store.ListForPage(page)
	}
	return s.store.List()
}

// Get returns a single highlight.
func (s *Service) Get(_ context.Context, id string) (models.Highlight, error) {
	return s.store.Get(id)
}

// Delete removes a highlight; unknown ids are a no-op. An edit in progress
// on the highlight is abandoned.
func (s *Service) Delete(_ context.Context, id string) bool {
	s.session.Forget(id)
	return s.store.Delete(id)
}

// UpdateNote sets or clears a note.
func (s *Service) UpdateNote(_ context.Context, id, note string) (models.Highlight, error) {
	return s.store.UpdateNote(id, note)
}

// Clear drops every highlight of the active document.
func (s *Service) Clear(_ context.Context) int {
	s.session.CancelEdit()
	return s.store.Clear()
}

// Overlays projects the highlights of page onto a container of the given size.
func (s *Service) Overlays(_ context.Context, page int, container geometry.Size) ([]render.Overlay, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be positive: %w", apperr.ErrValidation)
	}
	return s.renderer.Render(s.store, page, container), nil
}

// Session returns the current session state.
func (s *Service) Session(_ context.Context) session.State {
	return s.session.Snapshot()
}

// SetColor changes the active color.
func (s *Service) SetColor(_ context.Context, color string) (session.State, error) {
	if err := s.session.SetColor(models.Color(color)); err != nil {
		return session.State{}, err
	}
	return s.session.Snapshot(), nil
}

// BeginEdit starts editing the note of id.
func (s *Service) BeginEdit(_ context.Context, id string) (session.State, error) {
	if err := s.session.BeginEditNote(id); err != nil {
		return session.State{}, err
	}
	return s.session.Snapshot(), nil
}

// CancelEdit abandons the current edit.
func (s *Service) CancelEdit(_ context.Context) session.State {
	s.session.CancelEdit()
	return s.session.Snapshot()
}

// CommitEdit stores the note and ends the edit.
func (s *Service) CommitEdit(_ context.Context, id, note string) (models.Highlight, error) {
	return s.session.CommitEdit(id, note)
}

// Palette returns the selectable colors.
func (s *Service) Palette() []models.Swatch {
	out := make([]models.Swatch, len(models.Palette))
	copy(out, models.Palette)
	return out
}

// ExportMarkdown renders every highlight of the active document as a
// Markdown note.
func (s *Service) ExportMarkdown(_ context.Context) ([]byte, error) {
	var doc *models.Document
	if d, ok := s.workspace.Active(); ok {
		doc = &d
	}
	return export.Markdown(doc, s.store.List(), time.Now())
}

// Workspace exposes the active-document tracker.
func (s *Service) Workspace() *workspace.Workspace {
	return s.workspace
}
