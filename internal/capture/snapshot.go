package capture

import "github.com/starford/marginalia/internal/geometry"

// Snapshot is a Surface whose geometry was measured by a remote client and
// shipped with the gesture, as the HTTP and MCP surfaces do.
type Snapshot struct {
	Page          int
	Text          string
	SelectionRect geometry.Rect
	Container     geometry.Rect

	cleared bool
}

var _ Surface = (*Snapshot)(nil)

// Selection implements Surface.
func (s *Snapshot) Selection() (Selection, bool) {
	if s.cleared || s.Text == "" {
		return Selection{}, false
	}
	return Selection{Text: s.Text, Bounds: s.SelectionRect}, true
}

// PageRect implements Surface.
func (s *Snapshot) PageRect(page int) (geometry.Rect, bool) {
	if page != s.Page || s.Container.Empty() {
		return geometry.Rect{}, false
	}
	return s.Container, true
}

// ClearSelection implements Surface.
func (s *Snapshot) ClearSelection() {
	s.cleared = true
}

// Cleared reports whether the capturer consumed the selection.
func (s *Snapshot) Cleared() bool {
	return s.cleared
}
