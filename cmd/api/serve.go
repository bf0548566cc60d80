package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"forgeboard/internal/app"
	"forgeboard/internal/config"
	"forgeboard/internal/export"
	"forgeboard/internal/lorearchive"
	"forgeboard/internal/media"
	"forgeboard/internal/search"
	"forgeboard/internal/session"
	"forgeboard/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, c.cfg, c.logger)
		},
	}
}

func openDatabase(ctx context.Context, cfg config.Config, migrate bool, logger *zap.Logger) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if migrate {
		applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		if len(applied) > 0 {
			logger.Info("applied migrations", zap.Strings("versions", applied))
		}
	}
	return db, nil
}

// newSearch builds the search service. Meilisearch is optional; Postgres
// full-text search always backs it.
func newSearch(db *sql.DB, cfg config.Config, logger *zap.Logger) *search.Service {
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
	}
	return search.NewService(meiliClient, search.NewPgFTS(db), logger)
}

func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := openDatabase(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	dataStore := store.NewPostgresStore(db)
	searchService := newSearch(db, cfg, logger)
	defer searchService.Close()

	deps := app.Dependencies{
		Search:   searchService,
		Exporter: export.NewService(),
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		logger.Info("refresh sessions in redis")
	} else {
		logger.Info("refresh sessions in postgres")
	}

	if cfg.StorageEnabled() {
		mediaStore, err := media.New(ctx, media.Config{
			Endpoint:   cfg.S3Endpoint,
			AccessKey:  cfg.S3AccessKey,
			SecretKey:  cfg.S3SecretKey,
			Bucket:     cfg.S3Bucket,
			UseSSL:     cfg.S3UseSSL,
			PresignTTL: 15 * time.Minute,
		}, logger)
		if err != nil {
			return fmt.Errorf("object storage failed: %w", err)
		}
		deps.Media = mediaStore
	} else {
		logger.Warn("object storage not configured; art uploads disabled")
	}

	if dir := strings.TrimSpace(cfg.LoreArchiveDir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create lore archive dir: %w", err)
		}
		deps.Archive = lorearchive.New(dir)
	}

	service := app.New(cfg, dataStore, deps, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("forgeboard api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
