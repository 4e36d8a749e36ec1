package api

import (
	"github.com/starford/marginalia/internal/geometry"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
)

// Highlight is the highlight response type (aliased from the domain layer).
type Highlight = models.Highlight

// Document is the document response type (aliased from the domain layer).
type Document = models.Document

// HighlightListResponse wraps highlight listings.
type HighlightListResponse struct {
	Highlights []Highlight `json:"highlights" validate:"required"`
}

// ClearResponse reports how many highlights a clear removed.
type ClearResponse struct {
	Removed int `json:"removed" example:"3"`
}

// NoteRequest is the body of PUT /api/highlights/{id}/note. An empty note
// removes the note.
type NoteRequest struct {
	Note string `json:"note" example:"check the proof"`
}

// SelectionRequest is the body of POST /api/pages/{page}/selections. Both
// rectangles are viewport-relative, as reported by the browser.
type SelectionRequest struct {
	Text          string        `json:"text" example:"selected words"`
	SelectionRect geometry.Rect `json:"selection_rect" validate:"required"`
	PageRect      geometry.Rect `json:"page_rect" validate:"required"`
}

// OverlayRequest is the body of POST /api/pages/{page}/overlays.
type OverlayRequest struct {
	Container geometry.Size `json:"container" validate:"required"`
}

// OverlayResponse wraps the overlays of one page.
type OverlayResponse struct {
	Page     int              `json:"page" example:"1"`
	Overlays []render.Overlay `json:"overlays" validate:"required"`
}

// ColorRequest is the body of PUT /api/session/color.
type ColorRequest struct {
	Color string `json:"color" example:"#4CAF50" validate:"required"`
}

// EditRequest is the body of POST /api/session/edit.
type EditRequest struct {
	ID string `json:"id" validate:"required"`
}

// CommitRequest is the body of POST /api/session/edit/commit.
type CommitRequest struct {
	ID   string `json:"id" validate:"required"`
	Note string `json:"note"`
}

// PaletteResponse lists the selectable colors.
type PaletteResponse struct {
	Colors  []models.Swatch `json:"colors" validate:"required"`
	Default models.Color    `json:"default" example:"#FFEB3B"`
}

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []Document `json:"documents" validate:"required"`
	Total     int        `json:"total" example:"2" validate:"required"`
}

// PageTextResponse carries the extracted text of one page.
type PageTextResponse struct {
	Page int    `json:"page" example:"1"`
	Text string `json:"text"`
}
