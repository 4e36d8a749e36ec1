// Package session holds the per-document UI state of the highlighter: the
// active color and the highlight whose note is being edited.
package session

import (
	"fmt"
	"sync"

	"github.com/starford/marginalia/internal/models"
)

// NoteStore is the subset of the highlight store the controller needs.
type NoteStore interface {
	Get(id string) (models.Highlight, error)
	UpdateNote(id, note string) (models.Highlight, error)
}

// State is a point-in-time copy of the session.
type State struct {
	Color   models.Color `json:"color"`
	Editing string       `json:"editing,omitempty"`
}

// Controller owns the session state. At most one note is edited at a time.
type Controller struct {
	store        NoteStore
	defaultColor models.Color

	mu      sync.Mutex
	color   models.Color
	editing string
}

// NewController creates a controller whose active color is def. An empty or
// off-palette def falls back to the first palette entry.
func NewController(store NoteStore, def models.Color) *Controller {
	if !def.Valid() {
		def = models.DefaultColor
	}
	return &Controller{store: store, defaultColor: def, color: def}
}

// Color returns the active color.
func (c *Controller) Color() models.Color {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.color
}

// SetColor replaces the active color. Off-palette colors are rejected with
// apperr.ErrValidation and leave the active color unchanged.
func (c *Controller) SetColor(color models.Color) error {
	parsed, err := models.ParseColor(string(color))
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.color = parsed
	c.mu.Unlock()
	return nil
}

// BeginEditNote makes id the edit target, replacing any previous one.
func (c *Controller) BeginEditNote(id string) error {
	if _, err := c.store.Get(id); err != nil {
		return fmt.Errorf("begin edit: %w", err)
	}
	c.mu.Lock()
	c.editing = id
	c.mu.Unlock()
	return nil
}

// CancelEdit drops the edit target without touching any note.
func (c *Controller) CancelEdit() {
	c.mu.Lock()
	c.editing = ""
	c.mu.Unlock()
}

// Editing returns the current edit target.
func (c *Controller) Editing() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing, c.editing != ""
}

// CommitEdit stores text as the note of id and ends the edit. The target is
// cleared even when the update fails, since the only failure is a highlight
// that no longer exists.
func (c *Controller) CommitEdit(id, text string) (models.Highlight, error) {
	h, err := c.store.UpdateNote(id, text)

	c.mu.Lock()
	c.editing = ""
	c.mu.Unlock()

	if err != nil {
		return models.Highlight{}, fmt.Errorf("commit edit: %w", err)
	}
	return h, nil
}

// Forget ends the edit if it targets id. Used when a highlight is deleted.
func (c *Controller) Forget(id string) {
	c.mu.Lock()
	if c.editing == id {
		c.editing = ""
	}
	c.mu.Unlock()
}

// Reset restores the defaults; called when the active document changes.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.color = c.defaultColor
	c.editing = ""
	c.mu.Unlock()
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{Color: c.color, Editing: c.editing}
}
