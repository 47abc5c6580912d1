// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/vocabhive/internal/api"
	"github.com/starford/vocabhive/internal/cache"
	"github.com/starford/vocabhive/internal/chunkloader"
	"github.com/starford/vocabhive/internal/importer"
	"github.com/starford/vocabhive/internal/inbox"
	"github.com/starford/vocabhive/internal/mcpserver"
	"github.com/starford/vocabhive/internal/origin"
	"github.com/starford/vocabhive/internal/sse"
	"github.com/starford/vocabhive/internal/storage"
	"github.com/starford/vocabhive/internal/vocabdb"
	"github.com/starford/vocabhive/internal/wordservice"
)

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// logger builds the structured JSON logger and installs it as default.
func (a *application) logger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// components are the stores and services shared by every command.
type components struct {
	db     *vocabdb.DB
	cache  *cache.Cache
	origin *origin.Client
	loader *chunkloader.Loader
	svc    *wordservice.Service
}

func openComponents(ctx context.Context, cfg *Config, logger *slog.Logger, broker *sse.Broker) (*components, error) {
	for _, p := range []string{cfg.SQLite.Path, cfg.Cache.Path} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	db, err := vocabdb.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init word store: %w", err)
	}

	c, err := cache.Open(cfg.Cache.Path, cfg.Cache.MemoryEntries,
		cache.WithExpiry(cfg.Cache.Expiry),
		cache.WithLogger(logger))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache: %w", err)
	}

	client := origin.New(origin.Config{
		BaseURL:    cfg.Origin.BaseURL,
		Timeout:    cfg.Origin.Timeout,
		RetryCount: cfg.Origin.RetryCount,
		RetryWait:  cfg.Origin.RetryWait,
	})

	loaderOpts := []chunkloader.Option{
		chunkloader.WithLogger(logger),
		chunkloader.WithBatchSize(cfg.Loader.SweepBatchSize),
		chunkloader.WithSweepDelay(cfg.Loader.SweepDelay),
	}
	svcOpts := []wordservice.Option{
		wordservice.WithLogger(logger),
		wordservice.WithBackgroundContext(ctx),
	}
	if broker != nil {
		loaderOpts = append(loaderOpts, chunkloader.WithOnChunkLoaded(func(ev chunkloader.ChunkEvent) {
			broker.PublishChunkLoaded(string(ev.Level), ev.Index, ev.Progress)
		}))
		svcOpts = append(svcOpts, wordservice.WithEvents(broker))
	}
	loader := chunkloader.New(client, db, c, loaderOpts...)

	return &components{
		db:     db,
		cache:  c,
		origin: client,
		loader: loader,
		svc:    wordservice.NewService(db, loader, c, client, svcOpts...),
	}, nil
}

func (c *components) Close() {
	c.svc.WaitSweeps()
	if err := c.cache.Close(); err != nil {
		slog.Warn("cache close failed", slog.String("error", err.Error()))
	}
	if err := c.db.Close(); err != nil {
		slog.Warn("word store close failed", slog.String("error", err.Error()))
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("cache_path", cfg.Cache.Path),
		slog.String("origin", cfg.Origin.BaseURL),
		slog.String("log_level", cfg.App.LogLevel.String()))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	comp, err := openComponents(ctx, cfg, logger, broker)
	if err != nil {
		return err
	}
	defer comp.Close()

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health/live", healthHandler)
	r.Get("/health/ready", healthHandler)

	r.Mount("/api", api.NewRouter(comp.svc, broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Inbox.Enabled {
		box, err := newInbox(cfg.Inbox.Path, comp, logger)
		if err != nil {
			return err
		}
		if _, err := box.Sync(gCtx); err != nil {
			logger.Warn("initial inbox sync failed", slog.String("error", err.Error()))
		}
		g.Go(func() error {
			if err := box.Watch(gCtx); err != nil {
				logger.Warn("inbox watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	for _, level := range cfg.Loader.Levels() {
		logger.Info("Starting background sweep", slog.String("level", string(level)))
		comp.svc.StartSweep(level)
	}

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
		// Stops sweeps and the inbox watcher.
		cancel()
		broker.Close()

		shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
		defer stop()
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

func newInbox(path string, comp *components, logger *slog.Logger) (*inbox.Inbox, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create inbox dir: %w", err)
	}
	files, err := storage.NewFS(path)
	if err != nil {
		return nil, fmt.Errorf("init inbox: %w", err)
	}
	return inbox.New(files.Root(), files, comp.svc, comp.db, logger), nil
}

// Import parses the CSV or JSON file at path and upserts it into the word store.
func Import(ctx context.Context, path string, opts ...Option) (wordservice.ImportSummary, error) {
	app, err := newApplication(opts)
	if err != nil {
		return wordservice.ImportSummary{}, err
	}
	logger := app.logger()

	format, ok := importer.FormatFromPath(path)
	if !ok {
		return wordservice.ImportSummary{}, fmt.Errorf("import %s: unsupported file type", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return wordservice.ImportSummary{}, fmt.Errorf("import: %w", err)
	}
	defer f.Close()

	comp, err := openComponents(ctx, app.config, logger, nil)
	if err != nil {
		return wordservice.ImportSummary{}, err
	}
	defer comp.Close()

	return comp.svc.Import(ctx, filepath.Base(path), format, f)
}

// Seed replaces the word store contents with the origin's sample dataset.
func Seed(ctx context.Context, opts ...Option) (wordservice.ImportSummary, error) {
	app, err := newApplication(opts)
	if err != nil {
		return wordservice.ImportSummary{}, err
	}
	comp, err := openComponents(ctx, app.config, app.logger(), nil)
	if err != nil {
		return wordservice.ImportSummary{}, err
	}
	defer comp.Close()

	return comp.svc.Seed(ctx)
}

// ServeMCP serves the MCP tool server over stdio. Logs go to stderr unless
// WithLogOutput says otherwise, since stdout carries the protocol.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	comp, err := openComponents(ctx, app.config, logger, nil)
	if err != nil {
		return err
	}
	defer comp.Close()

	logger.Info("Starting MCP server", slog.String("version", app.version))
	return mcpserver.New(comp.svc, app.version).ServeStdio()
}
