// Package geometry converts viewport selection geometry into page-relative
// coordinates and back.
//
// All rectangles handed to CapturePosition must come from the same layout
// pass; nothing here re-queries layout.
package geometry

// Rect is an axis-aligned rectangle with a top-left origin, as reported by
// the rendering surface (viewport pixels).
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether r has no area.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Size returns the extents of r.
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Size is the rendered size of a page container.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both extents are positive.
func (s Size) Valid() bool {
	return s.Width > 0 && s.Height > 0
}

// Position is an offset and extent relative to the top-left corner of the
// page container, in rendered pixels at capture time.
type Position struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Box is a Position expressed as fractions of the page container size, so
// it survives re-rendering the page at another width.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// IsZero reports whether b carries no anchor.
func (b Box) IsZero() bool {
	return b == Box{}
}

// CapturePosition maps a selection rectangle into the coordinate space of
// the page container that owns it. Zero-area rectangles are passed through.
func CapturePosition(selection, container Rect) Position {
	return Position{
		X:      selection.Left - container.Left,
		Y:      selection.Top - container.Top,
		Width:  selection.Width,
		Height: selection.Height,
	}
}

// Normalize expresses p as fractions of page. It returns false when page
// has no area.
func Normalize(p Position, page Size) (Box, bool) {
	if !page.Valid() {
		return Box{}, false
	}
	return Box{
		X:      p.X / page.Width,
		Y:      p.Y / page.Height,
		Width:  p.Width / page.Width,
		Height: p.Height / page.Height,
	}, true
}

// Place returns the container-relative rectangle for a stored pixel
// position. It reproduces the captured location only while the page is
// rendered at the capture scale.
func Place(p Position) Rect {
	return Rect{Left: p.X, Top: p.Y, Width: p.Width, Height: p.Height}
}

// Project scales an anchor onto a container of the given size.
func Project(b Box, container Size) Rect {
	return Rect{
		Left:   b.X * container.Width,
		Top:    b.Y * container.Height,
		Width:  b.Width * container.Width,
		Height: b.Height * container.Height,
	}
}
