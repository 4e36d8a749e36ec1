// Package capture turns an end-of-selection gesture on one rendered page
// into a stored highlight.
//
// A selection that crosses a page boundary is not supported: the page that
// received the gesture owns the highlight and the geometry is stored as
// reported, without clipping.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/geometry"
	"github.com/starford/marginalia/internal/highlight"
	"github.com/starford/marginalia/internal/models"
)

// Selection is the native text selection as read from the rendering surface.
type Selection struct {
	Text      string
	Collapsed bool
	Bounds    geometry.Rect
}

// Surface is the rendering collaborator: it exposes the current selection
// and the container geometry of each page, both from the same layout pass.
type Surface interface {
	// Selection returns the active selection, or false when there is none.
	Selection() (Selection, bool)
	// PageRect returns the bounding rectangle of the page container.
	PageRect(page int) (geometry.Rect, bool)
	// ClearSelection drops the native selection outline.
	ClearSelection()
}

// ColorSource supplies the active highlight color.
type ColorSource interface {
	Color() models.Color
}

// PageCounter reports how many pages the active document has, or 0 when
// no document is loaded.
type PageCounter interface {
	PageCount() int
}

// Creator is the subset of the highlight store used by the capturer.
type Creator interface {
	Create(d highlight.Draft) (models.Highlight, error)
	Generation() uint64
}

// Capturer wires a surface to the highlight store.
type Capturer struct {
	store  Creator
	colors ColorSource
	pages  PageCounter
	logger *slog.Logger
}

// Option configures a Capturer.
type Option func(*Capturer)

// WithPageCounter bounds page numbers by the active document.
func WithPageCounter(p PageCounter) Option {
	return func(c *Capturer) { c.pages = p }
}

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(c *Capturer) { c.logger = l }
}

// New creates a Capturer.
func New(store Creator, colors ColorSource, opts ...Option) *Capturer {
	c := &Capturer{store: store, colors: colors, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnSelectionEnd handles the end of a selection gesture on page. It returns
// nil without error when there is nothing to capture. A document switch
// while the gesture is being handled makes the capture fail with
// apperr.ErrConflict instead of leaking into the new document.
func (c *Capturer) OnSelectionEnd(ctx context.Context, surface Surface, page int) (*models.Highlight, error) {
	gen := c.store.Generation()

	sel, ok := surface.Selection()
	if !ok || sel.Collapsed {
		return nil, nil
	}
	text := NormalizeText(sel.Text)
	if text == "" {
		c.logger.DebugContext(ctx, "capture: empty selection ignored", slog.Int("page", page))
		return nil, nil
	}
	if sel.Bounds.Empty() {
		c.logger.DebugContext(ctx, "capture: zero-area selection ignored", slog.Int("page", page))
		return nil, nil
	}

	if c.pages != nil {
		if n := c.pages.PageCount(); n > 0 && page > n {
			return nil, fmt.Errorf("page %d beyond document length %d: %w", page, n, apperr.ErrValidation)
		}
	}

	container, ok := surface.PageRect(page)
	if !ok {
		c.logger.DebugContext(ctx, "capture: page container not rendered", slog.Int("page", page))
		return nil, nil
	}

	h, err := c.store.Create(highlight.Draft{
		Text:       text,
		Color:      c.colors.Color(),
		PageNumber: page,
		Position:   geometry.CapturePosition(sel.Bounds, container),
		PageSize:   container.Size(),
		Generation: gen,
	})
	if err != nil {
		return nil, err
	}
	surface.ClearSelection()

	c.logger.InfoContext(ctx, "capture: highlight created",
		slog.String("id", h.ID),
		slog.Int("page", page),
		slog.String("color", string(h.Color)))
	return &h, nil
}

// NormalizeText folds compatibility characters (PDF text layers emit
// ligatures such as U+FB01) and trims surrounding whitespace.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}
