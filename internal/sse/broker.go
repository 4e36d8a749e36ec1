// Package sse broadcasts highlight and document changes to browser clients
// over Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"sync/atomic"
	"time"

	"github.com/starford/marginalia/internal/highlight"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/workspace"
)

// Event is a single SSE frame.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event names sent on the wire. overlays.invalidated carries the affected
// page; page 0 stands for every page.
const (
	TypeHighlightCreated    = "highlight.created"
	TypeHighlightUpdated    = "highlight.updated"
	TypeHighlightDeleted    = "highlight.deleted"
	TypeHighlightsCleared   = "highlights.cleared"
	TypeDocumentLoaded      = "document.loaded"
	TypeDocumentReset       = "document.reset"
	TypeOverlaysInvalidated = "overlays.invalidated"
)

// envelope is what travels to the loop. Every publisher shares one channel
// so frames leave in the order they were published.
type envelope struct {
	event      Event
	invalidate bool
	page       int
}

// Broker fans events out to connected clients.
//
// A single loop goroutine owns the client set and the overlay throttle
// state; public methods talk to it over channels.
type Broker struct {
	overlayMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan envelope
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. overlays.invalidated is sent at most once per
// throttle interval for each page; pages invalidated inside the interval
// are flushed when it ends.
func NewBroker(throttle time.Duration) *Broker {
	if throttle <= 0 {
		throttle = 250 * time.Millisecond
	}

	b := &Broker{
		overlayMin:    throttle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan envelope, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})

	var (
		lastOverlay time.Time
		pending     = make(map[int]struct{})
		flushTimer  *time.Timer
		flushC      <-chan time.Time
	)
	defer func() {
		if flushTimer != nil {
			flushTimer.Stop()
		}
	}()

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		raw := []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// slow client, drop
			}
		}
	}

	flush := func() {
		for _, page := range slices.Sorted(maps.Keys(pending)) {
			broadcast(Event{Type: TypeOverlaysInvalidated, Data: map[string]int{"page": page}})
		}
		clear(pending)
		lastOverlay = time.Now()
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case env := <-b.publishCh:
			broadcast(env.event)
			if !env.invalidate {
				continue
			}
			pending[env.page] = struct{}{}
			if flushC != nil {
				continue
			}
			if wait := b.overlayMin - time.Since(lastOverlay); wait > 0 {
				flushTimer = time.NewTimer(wait)
				flushC = flushTimer.C
				continue
			}
			flush()

		case <-flushC:
			flushC = nil
			flushTimer = nil
			flush()

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close stops the loop and closes every client channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.send(envelope{event: event})
}

func (b *Broker) send(env envelope) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- env:
	case <-b.stopped:
	}
}

// PublishHighlightEvent reports a highlight store mutation. Its signature
// matches highlight.EventCallback. Each mutation also invalidates the
// overlays of its page.
func (b *Broker) PublishHighlightEvent(kind string, h models.Highlight) {
	env := envelope{invalidate: true, page: h.PageNumber}
	switch kind {
	case highlight.KindCreated:
		env.event = Event{Type: TypeHighlightCreated, Data: h}
	case highlight.KindUpdated:
		env.event = Event{Type: TypeHighlightUpdated, Data: h}
	case highlight.KindDeleted:
		env.event = Event{Type: TypeHighlightDeleted, Data: map[string]any{"id": h.ID, "page_number": h.PageNumber}}
	case highlight.KindCleared:
		env.event = Event{Type: TypeHighlightsCleared, Data: map[string]string{}}
		env.page = 0
	default:
		return
	}
	b.send(env)
}

// PublishDocumentEvent reports an active document change. Its signature
// matches workspace.Callback.
func (b *Broker) PublishDocumentEvent(kind string, doc *models.Document) {
	switch kind {
	case workspace.KindLoaded:
		if doc != nil {
			b.Publish(Event{Type: TypeDocumentLoaded, Data: doc})
		}
	case workspace.KindReset:
		b.Publish(Event{Type: TypeDocumentReset, Data: map[string]string{}})
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
