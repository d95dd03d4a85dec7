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

	"github.com/starford/anndex/internal/api"
	"github.com/starford/anndex/internal/apperr"
	"github.com/starford/anndex/internal/lookup"
	"github.com/starford/anndex/internal/mcpserver"
	"github.com/starford/anndex/internal/pipeline"
	"github.com/starford/anndex/internal/sse"
)

const reloadThrottle = 2 * time.Second

// Index runs the indexing pipeline once.
func Index(ctx context.Context, opts ...Option) (*pipeline.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("input", cfg.Image.Input),
		slog.String("output", cfg.Image.Root()),
		slog.Bool("catalog", cfg.Catalog.Enabled()),
		slog.Bool("publish_s3", cfg.Publish.S3.Enabled()))

	res, err := app.open()
	if err != nil {
		return nil, err
	}
	defer res.Close()

	p, err := res.pipeline(logger)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx)
}

// Run starts the query server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := app.logger()

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("image", cfg.Image.Input),
		slog.String("artifact", cfg.Serve.Artifact),
		slog.Bool("watch", cfg.Serve.Watch),
		slog.String("log_level", cfg.App.LogLevel.String()))

	res, err := app.open()
	if err != nil {
		return err
	}
	defer res.Close()

	src, err := res.source()
	if err != nil {
		return fmt.Errorf("init artifact source: %w", err)
	}
	svc := lookup.NewService(src)

	// SSE broker.
	broker := sse.NewBroker(reloadThrottle)
	defer broker.Close()

	var p *pipeline.Pipeline
	if cfg.Serve.Watch {
		if p, err = res.pipeline(logger); err != nil {
			return err
		}
		// Build once so the served index matches the image on startup.
		if result, err := p.Run(ctx); err != nil {
			logger.Warn("initial build failed", slog.String("error", err.Error()))
		} else {
			svc.Set(result.Index, len(result.Artifact), src.String())
		}
	}
	if _, err := svc.Index(); errors.Is(err, apperr.ErrNoIndex) {
		if stats, err := svc.Reload(ctx); err != nil {
			logger.Warn("initial load failed", slog.String("error", err.Error()))
		} else {
			logger.Info("index loaded", slog.String("source", stats.Source), slog.Int("instances", stats.Instances))
		}
	}

	onReload := func(stats lookup.Stats, err error) {
		if err != nil {
			broker.PublishFailure(err)
			return
		}
		broker.PublishReload(stats)
	}

	apiRouter := api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, onReload)

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
		if _, err := svc.Index(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"no index"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Start image watcher with SSE callback.
	if p != nil {
		g.Go(func() error {
			err := pipeline.Watch(gCtx, p, logger, func(result *pipeline.Result, err error) {
				if err != nil {
					broker.PublishFailure(err)
					return
				}
				svc.Set(result.Index, len(result.Artifact), src.String())
				stats, _ := svc.Stats()
				broker.PublishReload(stats)
			})
			if err != nil {
				logger.Error("watcher failed", slog.String("error", err.Error()))
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

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP loads the index and serves the MCP tools on stdio.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	logger := app.logger()

	res, err := app.open()
	if err != nil {
		return err
	}
	defer res.Close()

	src, err := res.source()
	if err != nil {
		return fmt.Errorf("init artifact source: %w", err)
	}
	svc := lookup.NewService(src)
	if stats, err := svc.Reload(ctx); err != nil {
		logger.Warn("initial load failed", slog.String("error", err.Error()))
	} else {
		logger.Info("index loaded", slog.String("source", stats.Source), slog.Int("instances", stats.Instances))
	}

	return mcpserver.New(svc, res.db).ServeStdio()
}
