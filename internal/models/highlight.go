// Package models defines the domain types for Marginalia.
package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/geometry"
)

// Color is a highlight color from the fixed palette, as an upper-case hex triplet.
type Color string

// Palette colors.
const (
	Yellow Color = "#FFEB3B"
	Green  Color = "#4CAF50"
	Blue   Color = "#2196F3"
	Orange Color = "#FF5722"
	Purple Color = "#9C27B0"
)

// Swatch pairs a palette color with its display name.
type Swatch struct {
	Value Color  `json:"value"`
	Name  string `json:"name"`
}

// Palette lists the selectable colors in display order. The first entry is
// the default active color.
var Palette = []Swatch{
	{Value: Yellow, Name: "Yellow"},
	{Value: Green, Name: "Green"},
	{Value: Blue, Name: "Blue"},
	{Value: Orange, Name: "Orange"},
	{Value: Purple, Name: "Purple"},
}

// DefaultColor is the active color of a fresh session.
const DefaultColor = Yellow

// PaletteValues returns the palette as a slice of any, for validation.In.
func PaletteValues() []any {
	out := make([]any, len(Palette))
	for i, s := range Palette {
		out[i] = s.Value
	}
	return out
}

// Valid reports whether c is a palette color.
func (c Color) Valid() bool {
	for _, s := range Palette {
		if s.Value == c {
			return true
		}
	}
	return false
}

// ParseColor accepts a palette color in any letter case. Anything outside
// the palette is rejected rather than clamped.
func ParseColor(s string) (Color, error) {
	c := Color(strings.ToUpper(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("color %q is not in the palette: %w", s, apperr.ErrValidation)
	}
	return c, nil
}

// Highlight is a captured text selection anchored to one page.
// Only Note changes after creation.
type Highlight struct {
	ID         string            `json:"id"`
	Text       string            `json:"text"`
	Color      Color             `json:"color"`
	PageNumber int               `json:"page_number"`
	Position   geometry.Position `json:"position"`
	Anchor     geometry.Box      `json:"anchor,omitzero"`
	Timestamp  time.Time         `json:"timestamp"`
	Note       *string           `json:"note,omitempty"`
}

// HasNote reports whether a note is attached.
func (h Highlight) HasNote() bool {
	return h.Note != nil
}

// Clone returns a copy that shares no memory with h.
func (h Highlight) Clone() Highlight {
	if h.Note != nil {
		n := *h.Note
		h.Note = &n
	}
	return h
}

// TimeLabel formats the creation time the way the sidebar shows it.
func (h Highlight) TimeLabel() string {
	return h.Timestamp.Format("15:04")
}
