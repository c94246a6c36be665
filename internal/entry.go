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
	"golang.org/x/sync/errgroup"

	"github.com/starford/tera/internal/api"
	"github.com/starford/tera/internal/guard"
	"github.com/starford/tera/internal/mapdb"
	"github.com/starford/tera/internal/mapdoc"
	"github.com/starford/tera/internal/mapservice"
	"github.com/starford/tera/internal/mcpserver"
	"github.com/starford/tera/internal/onboarding"
	"github.com/starford/tera/internal/sse"
	"github.com/starford/tera/internal/storage"
)

var errConfigRequired = errors.New("config is required")

// backend is an opened persistence gateway with its cleanup.
type backend struct {
	gw    storage.Gateway
	fs    *storage.FS
	close func() error
}

func openBackend(cfg StoreConfig) (*backend, error) {
	switch cfg.Backend {
	case BackendSQLite:
		db, err := mapdb.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init sqlite store: %w", err)
		}
		return &backend{gw: db, close: db.Close}, nil
	default:
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
		fs, err := storage.NewFS(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("init storage: %w", err)
		}
		return &backend{gw: fs, fs: fs, close: func() error { return nil }}, nil
	}
}

// setup builds the logger, opens the store and the session. events may be nil.
func (a *application) setup(ctx context.Context, events mapservice.Publisher) (*mapservice.Session, *backend, error) {
	cfg := a.config
	out := a.logOutput
	if out == nil {
		out = os.Stdout
	}
	a.logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(a.logger)

	a.logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("store_backend", cfg.Store.Backend),
		slog.String("store_path", cfg.Store.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := onboarding.Verify(); err != nil {
		return nil, nil, fmt.Errorf("onboarding copy: %w", err)
	}

	be, err := openBackend(cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	sess := mapservice.New(be.gw, mapdoc.NewEditor(), events, a.logger)
	if err := sess.Open(ctx); err != nil {
		_ = be.close()
		return nil, nil, fmt.Errorf("open map: %w", err)
	}
	return sess, be, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.RenderThrottle)
	defer broker.Close()

	sess, be, err := app.setup(ctx, broker)
	if err != nil {
		return err
	}
	defer be.close()
	logger := app.logger

	apiRouter := api.NewRouter(sess, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.CORS(cfg.CORS.AllowedOrigins))

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if _, err := sess.Current(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Reload the document when its file is edited outside the server.
	if be.fs != nil && cfg.Store.Watch {
		g.Go(func() error {
			return storage.Watch(gCtx, be.fs, logger, cfg.Store.Debounce, func(id string) {
				if _, err := sess.Reload(gCtx, id); err != nil {
					logger.Warn("reload failed", slog.String("id", id), slog.String("error", err.Error()))
				}
			})
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

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdio. Logs go to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	sess, be, err := app.setup(ctx, nil)
	if err != nil {
		return err
	}
	defer be.close()

	app.logger.Info("Starting MCP server on stdio")
	return mcpserver.New(sess).ServeStdio()
}

// ExportSectorImages writes the exchange file of the stored map to w.
func ExportSectorImages(ctx context.Context, w io.Writer, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	sess, be, err := app.setup(ctx, nil)
	if err != nil {
		return err
	}
	defer be.close()

	data, err := sess.ExportSectorImages()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ImportSectorImages replaces the stored map's sector images with the
// exchange file read from r.
func ImportSectorImages(ctx context.Context, r io.Reader, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}
	sess, be, err := app.setup(ctx, nil)
	if err != nil {
		return err
	}
	defer be.close()

	res, err := sess.ImportSectorImages(ctx, "", data)
	if err != nil {
		return err
	}
	app.logger.Info("sector images imported",
		slog.Int("count", len(res.Doc.SectorImages)),
		slog.String("revision", res.Revision))
	return nil
}

// CheckText runs the system-voice check over text.
func CheckText(text string) error {
	return guard.CheckUIText(text)
}
