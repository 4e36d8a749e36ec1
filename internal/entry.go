// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/marginalia/internal/api"
	"github.com/starford/marginalia/internal/catalog"
	"github.com/starford/marginalia/internal/highlight"
	"github.com/starford/marginalia/internal/highlightservice"
	"github.com/starford/marginalia/internal/library"
	"github.com/starford/marginalia/internal/mcpserver"
	"github.com/starford/marginalia/internal/models"
	"github.com/starford/marginalia/internal/render"
	"github.com/starford/marginalia/internal/session"
	"github.com/starford/marginalia/internal/sse"
	"github.com/starford/marginalia/internal/storage"
	"github.com/starford/marginalia/internal/workspace"
)

// core is the highlight engine plus the document library, shared by the
// HTTP and MCP front ends.
type core struct {
	svc  *highlightservice.Service
	lib  *library.Library
	docs *storage.FS
	db   *catalog.DB
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev"}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// buildCore opens storage and the catalog and wires the highlight engine.
// Callbacks may be nil.
func buildCore(cfg *Config, logger *slog.Logger, onHighlight highlight.EventCallback, onDocument workspace.Callback) (*core, error) {
	if err := os.MkdirAll(cfg.Storage.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create documents dir: %w", err)
	}

	docs, err := storage.NewFS(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := catalog.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init catalog: %w", err)
	}

	lib := library.New(docs, db, logger, cfg.Storage.MaxUploadBytes)
	if err := lib.Sync(); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	var storeOpts []highlight.Option
	if onHighlight != nil {
		storeOpts = append(storeOpts, highlight.WithCallback(onHighlight))
	}
	store := highlight.NewStore(storeOpts...)
	sess := session.NewController(store, models.Color(cfg.Highlights.DefaultColor))
	ws := workspace.New(store, sess, logger, onDocument)
	renderer := render.New(
		render.WithOpacity(cfg.Highlights.Opacity),
		render.WithBlendMode(cfg.Highlights.BlendMode),
	)

	return &core{
		svc:  highlightservice.New(store, sess, ws, renderer, logger),
		lib:  lib,
		docs: docs,
		db:   db,
	}, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("documents_path", cfg.Storage.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.Int64("max_upload_bytes", cfg.Storage.MaxUploadBytes),
		slog.String("default_color", cfg.Highlights.DefaultColor),
		slog.String("log_level", cfg.App.LogLevel.String()))

	broker := sse.NewBroker(cfg.Events.Throttle)
	defer broker.Close()

	c, err := buildCore(cfg, logger, broker.PublishHighlightEvent, broker.PublishDocumentEvent)
	if err != nil {
		return err
	}
	defer c.db.Close()

	deps := api.Deps{
		Highlights:     c.svc,
		Library:        c.lib,
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
	}

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/api", api.NewRouter(deps, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker))
	r.Mount(strings.TrimSuffix(library.FilesPrefix, "/"), api.NewFileRouter(deps, cfg.Auth.AuthEnabled(), cfg.Auth.Token))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Keep the catalog in step with PDFs copied into the documents dir.
	if cfg.Storage.Watch {
		g.Go(func() error {
			err := c.lib.Watch(gCtx, c.docs.Root(), func(kind, identifier string) {
				if kind == library.EventRemoved && c.svc.Workspace().Forget(identifier) {
					logger.Info("active document removed from disk", slog.String("identifier", identifier))
				}
			})
			if err != nil {
				logger.Warn("document watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		// SSE streams never finish on their own; close them first.
		broker.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to logOut, which
// must not be stdout.
func RunMCP(_ context.Context, logOut io.Writer, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	c, err := buildCore(cfg, logger, nil, nil)
	if err != nil {
		return err
	}
	defer c.db.Close()

	logger.Info("MCP server starting", slog.String("documents_path", cfg.Storage.Path), slog.String("version", app.version))
	return mcpserver.New(c.svc, c.lib, app.version).ServeStdio()
}
