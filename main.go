// Weplus retrieval service: chunks campus documents, embeds them through
// an OpenAI-compatible provider, and serves semantic retrieval and
// grounded chat over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mikeyan-promax/Weplus-sub000/internal/api"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/chat"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/chunker"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/config"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/database"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/embedding"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/log"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/monitor"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/retrieval"
	"github.com/Mikeyan-promax/Weplus-sub000/internal/vectorstore"
)

const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := database.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Open(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	store := vectorstore.NewPostgresStore(
		vectorstore.NewPgxQuerier(pool), cfg.EmbedderDimension, logger)

	mon := monitor.New(cfg.MonitorCapacity)

	provider := embedding.NewClient(embedding.ClientConfig{
		BaseURL:   cfg.EmbedderBaseURL,
		APIKey:    cfg.EmbedderAPIKey,
		Model:     cfg.EmbedderModel,
		Dimension: cfg.EmbedderDimension,
		RPS:       cfg.EmbedderRPS,
	})
	cache := embedding.NewCache(cfg.CacheTTL, cfg.CacheMaxEntries)
	embedder := embedding.NewCachedEmbedder(provider, cache, mon)

	ch, err := chunker.New(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("creating chunker: %w", err)
	}

	opts := []retrieval.Option{
		retrieval.WithMonitor(mon),
		retrieval.WithLogger(logger),
		retrieval.WithDefaults(cfg.TopK, cfg.Threshold),
	}

	if cfg.LegacyEnabled {
		legacy, err := vectorstore.OpenLegacy(ctx,
			cfg.LegacyDBPath, cfg.LegacyIndexPath, cfg.EmbedderDimension, logger)
		if err != nil {
			return fmt.Errorf("opening legacy store: %w", err)
		}
		defer func() {
			if closeErr := legacy.Close(); closeErr != nil {
				logger.Warn("legacy store close failed", "error", closeErr)
			}
		}()
		opts = append(opts, retrieval.WithLegacy(legacy))
	}

	if cfg.ChatAPIKey != "" {
		opts = append(opts, retrieval.WithChat(chat.NewClient(chat.ClientConfig{
			BaseURL: cfg.ChatBaseURL,
			APIKey:  cfg.ChatAPIKey,
			Model:   cfg.ChatModel,
		})))
	}

	engine, err := retrieval.New(ch, embedder, store, opts...)
	if err != nil {
		return fmt.Errorf("creating retrieval engine: %w", err)
	}

	apiServer, err := api.NewServer(api.ServerConfig{Logger: logger, Engine: engine})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr,
		"api", "/api/*",
		"health", "/healthz",
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down HTTP server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	}
}
