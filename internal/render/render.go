// Package render projects stored highlights onto a page's current
// rendered container. It never mutates highlight data, so calling it again
// with the same input yields the same overlays.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/starford/marginalia/internal/geometry"
	"github.com/starford/marginalia/internal/models"
)

// Presentation defaults, matching the viewer stylesheet.
const (
	DefaultOpacity   = 0.4
	DefaultBlendMode = "multiply"
)

// Overlay is one box to draw over a page. Box is relative to the top-left
// corner of the page container. Overlays never take pointer input, so the
// text underneath stays selectable.
type Overlay struct {
	ID            string        `json:"id"`
	Box           geometry.Rect `json:"box"`
	Color         models.Color  `json:"color"`
	Fill          string        `json:"fill"`
	Opacity       float64       `json:"opacity"`
	BlendMode     string        `json:"blend_mode"`
	PointerEvents string        `json:"pointer_events"`
}

// PageSource lists the highlights of a page; *highlight.Store satisfies it.
type PageSource interface {
	ListForPage(page int) []models.Highlight
}

// blendModes are the CSS mix-blend-mode keywords an overlay may carry.
var blendModes = []string{
	"normal", "multiply", "screen", "overlay", "darken", "lighten",
	"color-dodge", "color-burn", "hard-light", "soft-light", "difference",
	"exclusion", "hue", "saturation", "color", "luminosity",
}

// BlendModes lists the accepted blend modes, for use in validation rules.
func BlendModes() []any {
	out := make([]any, len(blendModes))
	for i, m := range blendModes {
		out[i] = m
	}
	return out
}

// Renderer builds overlays.
type Renderer struct {
	opacity float64
	blend   string
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithOpacity sets the overlay alpha in (0, 1].
func WithOpacity(a float64) Option {
	return func(r *Renderer) {
		if a > 0 && a <= 1 {
			r.opacity = a
		}
	}
}

// WithBlendMode sets the CSS blend mode hint.
func WithBlendMode(mode string) Option {
	return func(r *Renderer) {
		if mode != "" {
			r.blend = mode
		}
	}
}

// New creates a Renderer.
func New(opts ...Option) *Renderer {
	r := &Renderer{opacity: DefaultOpacity, blend: DefaultBlendMode}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render reads page's highlights from src and projects them.
func (r *Renderer) Render(src PageSource, page int, container geometry.Size) []Overlay {
	return r.Page(page, src.ListForPage(page), container)
}

// Page projects the highlights that belong to page onto a container of the
// given size. Highlights with an anchor follow the container when it is
// resized; those without one are placed at their captured pixels. A page
// that has not been laid out yet gets no overlays.
func (r *Renderer) Page(page int, highlights []models.Highlight, container geometry.Size) []Overlay {
	out := []Overlay{}
	if !container.Valid() {
		return out
	}
	for _, h := range highlights {
		if h.PageNumber != page {
			continue
		}
		box := geometry.Place(h.Position)
		if !h.Anchor.IsZero() {
			box = geometry.Project(h.Anchor, container)
		}
		out = append(out, Overlay{
			ID:            h.ID,
			Box:           box,
			Color:         h.Color,
			Fill:          rgba(h.Color, r.opacity),
			Opacity:       r.opacity,
			BlendMode:     r.blend,
			PointerEvents: "none",
		})
	}
	return out
}

// rgba converts a #RRGGBB color into a CSS rgba() value.
func rgba(c models.Color, alpha float64) string {
	hex := strings.TrimPrefix(string(c), "#")
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil || len(hex) != 6 {
		return string(c)
	}
	return fmt.Sprintf("rgba(%d, %d, %d, %s)", v>>16&0xff, v>>8&0xff, v&0xff,
		strconv.FormatFloat(alpha, 'f', -1, 64))
}
