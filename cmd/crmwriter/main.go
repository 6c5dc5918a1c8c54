package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/JonMunkholm/crmwriter/internal/api"
	"github.com/JonMunkholm/crmwriter/internal/auth"
	"github.com/JonMunkholm/crmwriter/internal/catalog"
	"github.com/JonMunkholm/crmwriter/internal/config"
	"github.com/JonMunkholm/crmwriter/internal/core"
	"github.com/JonMunkholm/crmwriter/internal/ledger"
	"github.com/JonMunkholm/crmwriter/internal/logging"
	"github.com/JonMunkholm/crmwriter/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging based on config
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)

	if err := run(ctx, cfg, runID); err != nil {
		msg := core.MapError(err)
		if core.IsFatalInput(err) {
			logging.FromContext(ctx).Error("input rejected before any request was sent", "error", err, "code", msg.Code)
		} else {
			logging.FromContext(ctx).Error("run failed", "error", err, "code", msg.Code)
		}
		fmt.Fprintln(os.Stderr, core.FormatUserError(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, runID string) error {
	logger := logging.FromContext(ctx)
	mode := cfg.Mode()

	logger.Info("configuration loaded", "config", cfg.String())

	files, err := core.DiscoverCollections(cfg.Files.InDir)
	if err != nil {
		return err
	}
	logger.Info("input tables found", "count", len(files), "mode", mode)

	// Authentication
	tokens := auth.NewTokenManager(cfg.Auth.TokenURL, auth.Credentials{
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		RefreshToken: cfg.Auth.RefreshToken,
		Resource:     cfg.API.OrganizationURL,
	}, &http.Client{Timeout: cfg.API.Timeout})
	if _, err := tokens.Token(ctx); err != nil {
		return err
	}

	// Record API
	baseURL := api.BaseURL(cfg.API.OrganizationURL, cfg.API.Version)
	client := api.NewClient(&api.ClientConfig{
		BaseURL:       baseURL,
		Timeout:       cfg.API.Timeout,
		MaxRetries:    cfg.API.MaxRetries,
		BackoffFactor: cfg.API.BackoffFactor,
		RateLimit:     cfg.API.RateLimit,
		RateBurst:     cfg.API.RateBurst,
		Headers:       api.DefaultHeaders(),
	})
	session := api.NewSession(client, tokens)

	cat, err := newCatalog(cfg, session, baseURL)
	if err != nil {
		return err
	}

	// Ledger
	csvSink, err := ledger.NewCSVSink(cfg.Files.OutDir)
	if err != nil {
		return fmt.Errorf("writing ledger entry: %w", err)
	}
	sinks := []ledger.Sink{csvSink}
	if cfg.Ledger.DatabaseURL != "" {
		pg, err := ledger.NewPostgresSink(ctx, cfg.Ledger.DatabaseURL, runID)
		if err != nil {
			csvSink.Close()
			return fmt.Errorf("writing ledger entry: %w", err)
		}
		sinks = append(sinks, pg)
		logger.Info("ledger mirrored to postgres")
	}
	results := ledger.New(sinks...)

	progress := core.NewProgress(runID, mode)

	// Optional status server
	if cfg.Status.Enabled() {
		status := web.NewServer(progress)
		if err := status.Start(ctx, cfg.Status.Addr); err != nil {
			results.Close()
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Status.ShutdownTimeout)
			defer cancel()
			if err := status.Shutdown(shutdownCtx); err != nil {
				logger.Warn("status server shutdown", "error", err)
			}
		}()
	}

	pipeline := core.NewPipeline(core.PipelineConfig{
		Mode:       mode,
		Catalog:    cat,
		Dispatcher: api.NewDispatcher(session),
		Ledger:     results,
		Policy:     core.ErrorPolicy{ContinueOnError: cfg.API.ContinueOnError},
		Progress:   progress,
	})

	runErr := pipeline.Run(ctx, files)

	if err := results.Close(); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("writing ledger entry: %w", err))
	}

	if cfg.Export.Enabled() {
		exportLedger(ctx, cfg, runID, csvSink)
	}

	if runErr != nil {
		return runErr
	}

	for _, c := range progress.Snapshot().Collections {
		logger.Info("collection summary",
			"collection", c.Name,
			"processed", c.Processed,
			"succeeded", c.Succeeded,
			"failed", c.Failed,
		)
	}
	return nil
}

func newCatalog(cfg *config.Config, session *api.Session, baseURL string) (core.Catalog, error) {
	if cfg.Catalog.File != "" {
		return catalog.LoadFile(cfg.Catalog.File)
	}
	return catalog.NewHTTPCatalog(session, baseURL), nil
}

// exportLedger uploads the results table. Failures are logged only.
func exportLedger(ctx context.Context, cfg *config.Config, runID string, sink *ledger.CSVSink) {
	logger := logging.FromContext(ctx)

	exporter, err := ledger.NewExporter(ledger.ExportConfig{
		Endpoint:  cfg.Export.Endpoint,
		Bucket:    cfg.Export.Bucket,
		Prefix:    cfg.Export.Prefix,
		AccessKey: cfg.Export.AccessKey,
		SecretKey: cfg.Export.SecretKey,
		UseSSL:    cfg.Export.UseSSL,
	})
	if err != nil {
		logger.Error("ledger export not configured", "error", err)
		return
	}

	// Export even when the run was cancelled
	exportCtx := context.WithoutCancel(ctx)
	if err := exporter.Export(exportCtx, runID, sink.Path(), sink.ManifestPath()); err != nil {
		logger.Error("ledger export failed", "error", err)
	}
}
