// Package highlight owns the in-memory highlight set: identity, ordering,
// creation and note edits. It is the single source of truth for every
// consumer (capture, renderer, HTTP and MCP surfaces).
package highlight

import (
	"fmt"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"github.com/starford/marginalia/internal/apperr"
	"github.com/starford/marginalia/internal/geometry"
	"github.com/starford/marginalia/internal/models"
)

// Change kinds reported to the EventCallback.
const (
	KindCreated = "created"
	KindUpdated = "updated"
	KindDeleted = "deleted"
	KindCleared = "cleared"
)

const maxIDAttempts = 8

// EventCallback is called after every successful mutation. Calls are
// serialized and arrive in mutation order; the callback must not call back
// into the store. For KindCleared the highlight is the zero value.
type EventCallback func(kind string, h models.Highlight)

// Draft carries the fields of a highlight about to be created.
// PageSize is the rendered container size at capture time; when it is
// known the highlight also gets a normalized anchor. A non-zero Generation
// must match the store's current generation, so drafts prepared before a
// Clear are refused.
type Draft struct {
	Text       string
	Color      models.Color
	PageNumber int
	Position   geometry.Position
	PageSize   geometry.Size
	Generation uint64
}

// Validate checks the draft after its text has been trimmed.
func (d Draft) Validate() error {
	err := validation.ValidateStruct(&d,
		validation.Field(&d.Text, validation.Required.Error("text is empty")),
		validation.Field(&d.Color, validation.Required, validation.In(models.PaletteValues()...).Error("color is not in the palette")),
		validation.Field(&d.PageNumber, validation.Required, validation.Min(1)),
		validation.Field(&d.Position, validation.By(nonNegativeExtent)),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrValidation, err)
	}
	return nil
}

func nonNegativeExtent(v any) error {
	p, _ := v.(geometry.Position)
	if p.Width < 0 || p.Height < 0 {
		return fmt.Errorf("width and height must be non-negative")
	}
	return nil
}

// Store is a concurrency-safe ordered collection of highlights.
// Mutations are applied atomically with respect to each other.
type Store struct {
	mu    sync.RWMutex
	items []models.Highlight
	index map[string]int
	last  time.Time
	gen   uint64

	// notifyMu is taken before mu is released, so callbacks run in the
	// order the mutations were applied.
	notifyMu sync.Mutex

	now      func() time.Time
	newID    func() string
	onChange EventCallback
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDGenerator overrides how highlight ids are generated.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// WithCallback registers a change listener.
func WithCallback(cb EventCallback) Option {
	return func(s *Store) { s.onChange = cb }
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		index: make(map[string]int),
		gen:   1,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates d, assigns a fresh id and timestamp, and appends the
// highlight to the end of the set.
func (s *Store) Create(d Draft) (models.Highlight, error) {
	d.Text = strings.TrimSpace(d.Text)
	if err := d.Validate(); err != nil {
		return models.Highlight{}, err
	}

	s.mu.Lock()
	if d.Generation != 0 && d.Generation != s.gen {
		s.mu.Unlock()
		return models.Highlight{}, fmt.Errorf("highlight: draft from generation %d, store is at %d: %w", d.Generation, s.gen, apperr.ErrConflict)
	}
	id, err := s.allocateID()
	if err != nil {
		s.mu.Unlock()
		return models.Highlight{}, err
	}

	ts := s.now()
	if ts.Before(s.last) {
		ts = s.last
	}
	s.last = ts

	h := models.Highlight{
		ID:         id,
		Text:       d.Text,
		Color:      d.Color,
		PageNumber: d.PageNumber,
		Position:   d.Position,
		Timestamp:  ts,
	}
	if box, ok := geometry.Normalize(d.Position, d.PageSize); ok {
		h.Anchor = box
	}

	s.index[id] = len(s.items)
	s.items = append(s.items, h)
	s.unlockAndNotify(KindCreated, h)
	return h.Clone(), nil
}

// allocateID must be called with s.mu held.
func (s *Store) allocateID() (string, error) {
	for range maxIDAttempts {
		id := s.newID()
		if id == "" {
			continue
		}
		if _, taken := s.index[id]; !taken {
			return id, nil
		}
	}
	return "", fmt.Errorf("highlight: could not allocate a unique id: %w", apperr.ErrConflict)
}

// Delete removes the highlight with the given id. Unknown ids are ignored,
// so repeated deletes are harmless. It reports whether anything was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	removed := s.items[i]
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ID] = j
	}
	s.unlockAndNotify(KindDeleted, removed)
	return true
}

// UpdateNote replaces the note of highlight id with the trimmed note, or
// removes it when the trimmed note is empty. Other fields never change.
func (s *Store) UpdateNote(id, note string) (models.Highlight, error) {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return models.Highlight{}, fmt.Errorf("highlight %q: %w", id, apperr.ErrNotFound)
	}
	if trimmed := strings.TrimSpace(note); trimmed != "" {
		s.items[i].Note = &trimmed
	} else {
		s.items[i].Note = nil
	}
	h := s.items[i].Clone()
	s.unlockAndNotify(KindUpdated, h)
	return h, nil
}

// Clear removes every highlight and returns how many were dropped. It
// starts a new generation.
func (s *Store) Clear() int {
	s.mu.Lock()
	n := len(s.items)
	s.items = nil
	s.index = make(map[string]int)
	s.gen++
	s.unlockAndNotify(KindCleared, models.Highlight{})
	return n
}

// Generation identifies the current highlight set. It changes on every
// Clear.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen
}

// Get returns the highlight with the given id.
func (s *Store) Get(id string) (models.Highlight, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return models.Highlight{}, fmt.Errorf("highlight %q: %w", id, apperr.ErrNotFound)
	}
	return s.items[i].Clone(), nil
}

// List returns a snapshot of all highlights, oldest first.
func (s *Store) List() []models.Highlight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Highlight, len(s.items))
	for i, h := range s.items {
		out[i] = h.Clone()
	}
	return out
}

// ListForPage returns the highlights on page, in creation order.
func (s *Store) ListForPage(page int) []models.Highlight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []models.Highlight{}
	for _, h := range s.items {
		if h.PageNumber == page {
			out = append(out, h.Clone())
		}
	}
	return out
}

// Len returns the number of live highlights.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// unlockAndNotify must be called with s.mu held; it releases it.
func (s *Store) unlockAndNotify(kind string, h models.Highlight) {
	if s.onChange == nil {
		s.mu.Unlock()
		return
	}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	s.onChange(kind, h)
}
