// Package workspace tracks which document is active. Activating a document
// invalidates every highlight of the previous one and resets the session.
package workspace

import (
	"log/slog"
	"sync"

	"github.com/starford/marginalia/internal/models"
)

// Event kinds reported to the Callback.
const (
	KindLoaded = "loaded"
	KindReset  = "reset"
)

// Clearer empties the highlight set; *highlight.Store satisfies it.
type Clearer interface {
	Clear() int
}

// Resetter restores session defaults; *session.Controller satisfies it.
type Resetter interface {
	Reset()
}

// Callback is called after the active document changes, while the change
// is still exclusive, so callbacks arrive in the order changes were made.
// It must not call back into the workspace. doc is nil on reset.
type Callback func(kind string, doc *models.Document)

// Workspace holds the active document handle.
type Workspace struct {
	highlights Clearer
	session    Resetter
	logger     *slog.Logger
	onChange   Callback

	mu     sync.RWMutex
	active *models.Document
}

// New creates an empty workspace.
func New(highlights Clearer, session Resetter, logger *slog.Logger, cb Callback) *Workspace {
	return &Workspace{highlights: highlights, session: session, logger: logger, onChange: cb}
}

// Load makes doc the active document. Highlights of the previous document
// are dropped, not carried over.
func (w *Workspace) Load(doc models.Document) {
	w.mu.Lock()
	dropped := w.highlights.Clear()
	w.session.Reset()
	w.active = &doc
	if w.onChange != nil {
		w.onChange(KindLoaded, &doc)
	}
	w.mu.Unlock()

	w.logger.Info("workspace: document loaded",
		slog.String("identifier", doc.Identifier),
		slog.Int("pages", doc.Pages),
		slog.Int("dropped_highlights", dropped))
}

// Reset closes the active document.
func (w *Workspace) Reset() {
	w.mu.Lock()
	dropped := w.highlights.Clear()
	w.session.Reset()
	w.active = nil
	if w.onChange != nil {
		w.onChange(KindReset, nil)
	}
	w.mu.Unlock()

	w.logger.Info("workspace: reset", slog.Int("dropped_highlights", dropped))
}

// Forget resets the workspace if identifier is the active document. It
// reports whether a reset happened.
func (w *Workspace) Forget(identifier string) bool {
	w.mu.RLock()
	match := w.active != nil && w.active.Identifier == identifier
	w.mu.RUnlock()
	if match {
		w.Reset()
	}
	return match
}

// Active returns a copy of the active document.
func (w *Workspace) Active() (models.Document, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.active == nil {
		return models.Document{}, false
	}
	return *w.active, true
}

// PageCount returns the page count of the active document, or 0.
func (w *Workspace) PageCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.active == nil {
		return 0
	}
	return w.active.Pages
}
