package library

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/marginalia/internal/storage"
)

// Watch event kinds.
const (
	EventImported = "imported"
	EventRemoved  = "removed"
)

const settleDelay = 300 * time.Millisecond

// EventCallback is called after a watcher-driven catalog change.
type EventCallback func(kind string, identifier string)

// Watch starts an fsnotify watcher on the documents directory and keeps
// the catalog in step with PDFs copied in or removed by hand, until ctx is
// cancelled. It calls cb (if non-nil) after each successful change.
//
// Writes are debounced per file so a PDF is inspected once it stops
// growing; renames out of the directory count as removals.
func (l *Library) Watch(ctx context.Context, root string, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}

	l.logger.Info("watcher: started", slog.String("root", root))

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(settleDelay / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			l.logger.Info("watcher: stopped")
			return nil

		case now := <-ticker.C:
			for name, at := range pending {
				if now.Sub(at) < settleDelay {
					continue
				}
				delete(pending, name)
				doc, err := l.Import(name)
				if err != nil {
					l.logger.Warn("watcher: import failed", slog.String("name", name), slog.String("error", err.Error()))
					continue
				}
				l.logger.Debug("watcher: imported", slog.String("identifier", doc.Identifier))
				if cb != nil {
					cb(EventImported, doc.Identifier)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			name := filepath.Base(ev.Name)
			if strings.HasPrefix(name, storage.TempPrefix) || !strings.EqualFold(filepath.Ext(name), ".pdf") {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				pending[name] = time.Now()

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				delete(pending, name)
				if _, err := l.cat.Get(name); err != nil {
					continue
				}
				if err := l.cat.Delete(name); err != nil {
					l.logger.Warn("watcher: delete failed", slog.String("identifier", name), slog.String("error", err.Error()))
					continue
				}
				l.logger.Debug("watcher: removed", slog.String("identifier", name))
				if cb != nil {
					cb(EventRemoved, name)
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			l.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
