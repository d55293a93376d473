package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mediafetch/mediafetch/internal/cleanup"
	"github.com/mediafetch/mediafetch/internal/config"
	"github.com/mediafetch/mediafetch/internal/executor"
	"github.com/mediafetch/mediafetch/internal/http/rest"
	"github.com/mediafetch/mediafetch/internal/logctx"
	"github.com/mediafetch/mediafetch/internal/notifier"
	"github.com/mediafetch/mediafetch/internal/platform"
	"github.com/mediafetch/mediafetch/internal/queue"
	"github.com/mediafetch/mediafetch/internal/storage"
	"github.com/mediafetch/mediafetch/internal/storage/sqlite"
	"github.com/mediafetch/mediafetch/internal/telemetry"
	"github.com/mediafetch/mediafetch/internal/thumbs"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	logger := slog.New(logctx.NewTraceHandler(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("mediafetch starting...", "log_level", cfg.LogLevel)

	if err := run(logctx.WithLogger(ctx, logger), cfg); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal error", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logger := logctx.LoggerFromContext(ctx)

	// =========================================================================
	// Start Telemetry
	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		ServiceName: cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}

	// =========================================================================
	// Start Database
	database, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		logger.Error("DB error", "err", err)

		return err
	}
	defer database.Close()

	repo := sqlite.NewInstrumentedDownloadRepository(database, tel)

	// =========================================================================
	// Start Thumbnail Cache
	thumbCache, err := thumbs.NewCache(cfg.ThumbsDir, thumbs.NewFFmpegExtractor(cfg.FFmpegBin))
	if err != nil {
		return fmt.Errorf("failed to setup thumbnail cache: %w", err)
	}

	// =========================================================================
	// Start Queue
	fetcher := executor.New(cfg.FetchBin, cfg.DownloadDir)
	orch := queue.NewOrchestrator(repo, fetcher, thumbCache, tel)

	if err := orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start queue: %w", err)
	}
	defer orch.Close()

	// =========================================================================
	// Start Notification
	setupNotification(ctx, orch, cfg)

	// =========================================================================
	// Start API Service
	server := setupServer(ctx, orch, repo, thumbCache, tel, cfg)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("initializing API support", "host", cfg.Web.BindAddress)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("start shutdown")

		// Give outstanding requests a deadline for completion.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("failed to gracefully shutdown the server", "err", err)

			if err = server.Close(); err != nil {
				return fmt.Errorf("could not stop server gracefully: %w", err)
			}
		}

		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to shutdown telemetry", "err", err)
		}

		return gctx.Err()
	})

	// =========================================================================
	// Start Retention Cleanup
	if cfg.RetentionFor > 0 {
		g.Go(func() error {
			runRetention(gctx, repo, thumbCache, cfg)

			return nil
		})
	}

	logger.Info("waiting for downloads...",
		"download_dir", cfg.DownloadDir,
		"db_path", cfg.DBPath,
		"retention", cfg.RetentionFor.String(),
	)

	return g.Wait()
}

func setupNotification(ctx context.Context, orch *queue.Orchestrator, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	var notif notifier.Notifier
	if cfg.DiscordWebhookURL != "" {
		notif = &notifier.DiscordNotifier{WebhookURL: cfg.DiscordWebhookURL, Username: "mediafetch"}
	}

	go func() {
		for rec := range orch.OnDownloadFailed {
			logger.Error("download failed", "download_id", rec.ID, "title", rec.Title, "reason", rec.ErrorMessage)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(ctx,
				"❌ Download failed: "+rec.Title+" ("+rec.ID+")",
			); notifyErr != nil {
				logger.Error("failed to send notification", "download_id", rec.ID, "err", notifyErr)
			}
		}
	}()

	go func() {
		for rec := range orch.OnDownloadFinished {
			logger.Info("download finished", "download_id", rec.ID, "title", rec.Title, "file", rec.FilePath)

			if notif == nil {
				continue
			}

			if notifyErr := notif.Notify(ctx,
				"✅ Download finished: "+rec.Title+" ("+rec.ID+")",
			); notifyErr != nil {
				logger.Error("failed to send notification", "download_id", rec.ID, "err", notifyErr)
			}
		}
	}()
}

// setupServer prepares the handlers and services to create the http rest server.
func setupServer(
	ctx context.Context,
	orch *queue.Orchestrator,
	repo storage.DownloadRepository,
	thumbCache *thumbs.Cache,
	tel *telemetry.Telemetry,
	cfg *config.Config,
) *http.Server {
	handler := rest.NewHandler(orch, repo, platform.NewResolver(cfg.FetchBin), thumbCache)

	r := chi.NewRouter()
	r.Use(telemetry.RequestID)
	r.Use(telemetry.HTTPLogging)
	r.Use(telemetry.NewHTTPMiddleware(tel).Middleware)

	r.Mount("/api", handler.Routes())
	r.Handle("/metrics", tel.Handler())

	return &http.Server{
		Addr:         cfg.Web.BindAddress,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		Handler:      r,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}
}

func runRetention(ctx context.Context, repo storage.DownloadRepository, thumbCache *thumbs.Cache, cfg *config.Config) {
	logger := logctx.LoggerFromContext(ctx)

	ticker := time.NewTicker(cfg.RetentionCheckIn)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("retention cleanup shutting down")

			return
		case <-ticker.C:
			if err := cleanup.DeleteExpiredDownloads(ctx, repo, thumbCache, cfg.RetentionFor); err != nil {
				logger.Error("failed to delete expired downloads", "err", err)
			}
		}
	}
}
