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
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/quire/internal/api"
	"github.com/starford/quire/internal/index"
	"github.com/starford/quire/internal/manager"
	"github.com/starford/quire/internal/mcpserver"
	"github.com/starford/quire/internal/models"
	"github.com/starford/quire/internal/noteservice"
	"github.com/starford/quire/internal/provider"
	"github.com/starford/quire/internal/sse"
)

// core is the note stack shared by every front end.
type core struct {
	cfg     *Config
	logger  *slog.Logger
	db      *index.DB
	indexer *index.Indexer
	local   *provider.Local
	mgr     *manager.Manager
	svc     *noteservice.Service
}

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

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// buildCore opens the index, registers the configured providers and starts
// loading. Extra sinks are attached to the manager before Start.
func buildCore(cfg *Config, logger *slog.Logger, sinks ...manager.EventSink) (*core, error) {
	c := &core{cfg: cfg, logger: logger}

	local, err := provider.NewLocal(provider.LocalOptions{
		Root:    cfg.Local.Root(),
		Pattern: cfg.Local.Pattern,
		Format:  cfg.Local.Format,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init local provider: %w", err)
	}
	c.local = local

	mopts := []manager.Option{
		manager.WithLogger(logger),
		manager.WithWorkers(cfg.Manager.Workers),
		manager.WithDefaultProvider(cfg.Notes.DefaultProvider),
	}
	if col, ok := cfg.Notes.Color(); ok {
		mopts = append(mopts, manager.WithDefaultColor(col))
	}

	tags := models.NewTagStore()
	var saver noteservice.TagSaver
	if cfg.Index.Enabled {
		db, err := index.Open(cfg.Index.DSN())
		if err != nil {
			return nil, fmt.Errorf("init index: %w", err)
		}
		c.db = db
		c.indexer = index.NewIndexer(db, logger)
		mopts = append(mopts, manager.WithSearcher(c.indexer), manager.WithEventSink(c.indexer))

		saved, err := db.LoadTags()
		if err != nil {
			logger.Warn("load tags failed", slog.String("error", err.Error()))
		}
		for _, t := range saved {
			if _, err := tags.Add(t); err != nil {
				logger.Warn("skip stored tag", slog.String("tag", t.Name), slog.String("error", err.Error()))
			}
		}
		saver = db
	}
	for _, s := range sinks {
		mopts = append(mopts, manager.WithEventSink(s))
	}

	c.mgr = manager.New(mopts...)
	if err := c.mgr.AddProvider(local); err != nil {
		c.close()
		return nil, err
	}
	for _, g := range cfg.Goa {
		p, err := provider.NewGoa(provider.GoaOptions{
			ID:       g.ID,
			Name:     g.Name,
			Endpoint: g.Endpoint,
			Username: g.Username,
			Password: g.Password,
			Root:     g.Root,
			Pattern:  g.Pattern,
			Logger:   logger,
		})
		if err != nil {
			c.close()
			return nil, fmt.Errorf("init goa provider %s: %w", g.ID, err)
		}
		if err := c.mgr.AddProvider(p); err != nil {
			c.close()
			return nil, err
		}
	}
	for _, mc := range cfg.Memo {
		p := provider.NewMemo(provider.MemoOptions{
			ID:       mc.ID,
			Name:     mc.Name,
			Endpoint: mc.Endpoint,
			Username: mc.Username,
			Password: mc.Password,
			Calendar: mc.Calendar,
			Logger:   logger,
		})
		if err := c.mgr.AddProvider(p); err != nil {
			c.close()
			return nil, err
		}
	}

	c.svc = noteservice.NewService(c.mgr, tags, saver)

	if err := c.mgr.Start(); err != nil {
		c.close()
		return nil, fmt.Errorf("start manager: %w", err)
	}

	logger.Info("Configuration loaded",
		slog.String("notes_path", local.Root()),
		slog.Int("goa_accounts", len(cfg.Goa)),
		slog.Int("memo_accounts", len(cfg.Memo)),
		slog.Bool("index", cfg.Index.Enabled),
		slog.String("log_level", cfg.App.LogLevel.String()))
	return c, nil
}

func (c *core) close() {
	if c.mgr != nil {
		c.mgr.Stop()
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Warn("close index", slog.String("error", err.Error()))
		}
	}
}

// watch keeps the index in step with edits to the local directory made by
// other programs. It returns immediately when watching is off.
func (c *core) watch(ctx context.Context, onChange index.EventCallback) error {
	if c.db == nil || !c.cfg.Local.Watch {
		return nil
	}
	return index.Watch(ctx, c.db, index.WatchOptions{
		Root:     c.local.Root(),
		Store:    c.local.Store(),
		Provider: c.local.UID(),
		Pattern:  c.local.Pattern(),
		Logger:   c.logger,
		OnChange: onChange,
	})
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = fmt.Fprintf(w, `{"status":%q}`, status)
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.newLogger()

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := buildCore(cfg, logger, broker)
	if err != nil {
		return err
	}
	defer c.close()
	defer broker.WatchStore("notes", c.mgr.NotesStore())()
	defer broker.WatchStore("trash", c.mgr.TrashNotesStore())()

	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		select {
		case <-c.mgr.Loaded():
			writeStatus(w, http.StatusOK, "ok")
		default:
			writeStatus(w, http.StatusServiceUnavailable, "loading")
		}
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start file watcher with SSE callback.
	g.Go(func() error {
		if err := c.watch(gCtx, broker.PublishFileEvent); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
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

		// Unblocks the watcher.
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

// RunMCP serves the note tools over stdio until the client disconnects.
// Logs go to stderr unless redirected.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.newLogger()

	c, err := buildCore(app.config, logger)
	if err != nil {
		return err
	}
	defer c.close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		if err := c.watch(ctx, nil); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
	}()

	logger.Info("MCP server starting", slog.String("version", app.version))
	if err := mcpserver.New(c.svc, app.version).ServeStdio(); err != nil {
		return fmt.Errorf("mcp: %w", err)
	}
	return nil
}

// ListNotes loads every provider and returns the whole collection, or the
// trash, in display order.
func ListNotes(ctx context.Context, trashed bool, opts ...Option) ([]noteservice.NoteListItem, error) {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return nil, err
	}
	app.config.Local.Watch = false
	logger := app.newLogger()

	c, err := buildCore(app.config, logger)
	if err != nil {
		return nil, err
	}
	defer c.close()

	if err := c.mgr.WaitLoaded(ctx); err != nil {
		return nil, fmt.Errorf("wait for providers: %w", err)
	}
	page := c.svc.ListNotes(ctx, trashed)
	for page.Pending > 0 {
		next := c.svc.LoadMore(ctx, trashed)
		if next.Exposed <= page.Exposed {
			break
		}
		page = next
	}
	return page.Notes, nil
}
