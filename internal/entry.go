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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tally/internal/api"
	"github.com/starford/tally/internal/board"
	"github.com/starford/tally/internal/engine"
	"github.com/starford/tally/internal/mcpserver"
	"github.com/starford/tally/internal/metastore"
	"github.com/starford/tally/internal/models"
	"github.com/starford/tally/internal/sse"
)

// runtime is the board, metadata store and engine shared by both run modes.
type runtime struct {
	board  *board.Board
	store  metastore.Store
	engine *engine.Engine
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// openRuntime opens the board and metadata store, starts the engine, and
// restores the persisted calculator index.
func openRuntime(ctx context.Context, cfg *Config, logger *slog.Logger, cb engine.EventCallback) (*runtime, error) {
	b, err := board.Open(cfg.Board.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("init board: %w", err)
	}

	store, err := metastore.Open(cfg.Metadata.Driver, cfg.Metadata.Path, logger)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("init metadata store: %w", err)
	}

	eng := engine.New(b, store,
		engine.WithLogger(logger),
		engine.WithMetadataKey(cfg.Metadata.Key),
		engine.WithPlacementOffset(cfg.Calc.PlacementOffset),
		engine.WithDerivedStyle(cfg.Calc.DerivedStyle),
		engine.WithEventCallback(cb),
	)
	eng.Attach(b)

	if keys, err := store.Keys(ctx); err == nil {
		logger.Debug("metadata store opened", "driver", cfg.Metadata.Driver, "keys", len(keys))
	}

	rt := &runtime{board: b, store: store, engine: eng}
	if err := eng.Load(ctx); err != nil {
		rt.Close()
		return nil, fmt.Errorf("load calculator index: %w", err)
	}
	return rt, nil
}

// Close stops the engine before the board it writes to.
func (rt *runtime) Close() {
	rt.engine.Close()
	rt.board.Close()
	if err := rt.store.Close(); err != nil {
		slog.Warn("metadata store close failed", slog.String("error", err.Error()))
	}
}

// Run starts the HTTP server, SSE broker and board watcher with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// Initialize structured JSON logger.
	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("board_path", cfg.Board.Path),
		slog.String("metadata_driver", cfg.Metadata.Driver),
		slog.String("metadata_path", cfg.Metadata.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// SSE broker.
	broker := sse.NewBroker(250 * time.Millisecond)
	defer broker.Close()

	rt, err := openRuntime(ctx, cfg, logger, broker.PublishCalcEvent)
	if err != nil {
		return err
	}
	defer rt.Close()

	forwardBoardEvents(rt.board, broker)

	apiRouter := api.NewRouter(rt.board, rt.engine, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

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
	r.Get("/health/ready", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		// Ready while the engine loop keeps draining its mailbox.
		flushCtx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer cancel()
		if err := rt.engine.Flush(flushCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start board watcher.
	g.Go(func() error {
		if err := rt.board.Watch(gCtx, cfg.Board.WatchDebounce); err != nil {
			return fmt.Errorf("board watcher: %w", err)
		}
		return nil
	})

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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stop the watcher too.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// forwardBoardEvents relays board events to SSE clients.
func forwardBoardEvents(b *board.Board, broker *sse.Broker) {
	b.Subscribe(models.EventItemsChanged, func(ev models.Event) {
		for _, it := range ev.Items {
			broker.PublishItemEvent("changed", it.ID)
		}
	})
	b.Subscribe(models.EventItemsDeleted, func(ev models.Event) {
		for _, id := range ev.IDs {
			broker.PublishItemEvent("deleted", id)
		}
	})
	b.Subscribe(models.EventSelectionChanged, func(ev models.Event) {
		broker.PublishSelection(engine.SummarizeSelection(ev.Items))
	})
}

// RunMCP serves the MCP tools on stdin/stdout. Logs go to stderr so they do
// not corrupt the protocol stream.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := app.logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.App.LogLevel,
		}))
	}
	slog.SetDefault(logger)

	rt, err := openRuntime(ctx, cfg, logger, func(kind, id string) {
		logger.Debug("mcp: calculator note event", slog.String("kind", kind), slog.String("id", id))
	})
	if err != nil {
		return err
	}
	defer rt.Close()

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := rt.board.Watch(watchCtx, cfg.Board.WatchDebounce); err != nil {
			logger.Error("board watcher failed", slog.String("error", err.Error()))
		}
	}()

	logger.Info("MCP server starting on stdio", slog.String("board_path", cfg.Board.Path))
	if err := mcpserver.New(rt.board, rt.engine).ServeStdio(); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}
