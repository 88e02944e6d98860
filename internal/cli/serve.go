package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"thoughtful/api/internal/app"
	"thoughtful/api/internal/config"
	"thoughtful/api/internal/export"
	"thoughtful/api/internal/search"
	"thoughtful/api/internal/session"
	"thoughtful/api/internal/store"
)

var skipMigrations bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&skipMigrations, "skip-migrations", false, "Do not apply pending migrations on startup")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	if !skipMigrations {
		if err := store.ApplyMigrations(ctx, db.DB); err != nil {
			return fmt.Errorf("migrations failed: %w", err)
		}
	}

	dataStore := store.NewPostgresStore(db)

	var sessions app.SessionStore
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		sessions = redisStore
	} else {
		log.Printf("Using PostgreSQL for session storage")
	}

	meiliClient := newMeili(cfg)
	var searchService *search.Service
	if meiliClient != nil {
		defer meiliClient.Close()
		searchService = search.NewService(meiliClient)
		reindexer := search.NewReindexer(searchService, dataStore)
		if err := reindexer.Start(ctx, cfg.ReindexSchedule); err != nil {
			return err
		}
		defer reindexer.Stop()
	} else {
		log.Printf("Meilisearch not configured, relevance search disabled")
		searchService = search.NewService(nil)
	}
	defer searchService.Wait()

	archive, err := newArchive(ctx, cfg)
	if err != nil {
		return err
	}

	service := app.New(cfg, dataStore, sessions, searchService, archive)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Thoughtful API listening on %s", cfg.Addr)
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

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
	return nil
}

// newMeili returns nil when Meilisearch is not configured.
func newMeili(cfg config.Config) *search.Meili {
	if strings.TrimSpace(cfg.MeiliURL) == "" {
		return nil
	}
	return search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
}

func newArchive(ctx context.Context, cfg config.Config) (*export.Archive, error) {
	if strings.TrimSpace(cfg.ExportBucket) == "" {
		return nil, nil
	}
	archive, err := export.NewArchive(ctx, export.ArchiveConfig{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		Bucket:    cfg.ExportBucket,
		LinkTTL:   cfg.ExportLinkTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("export archive unavailable: %w", err)
	}
	log.Printf("Export links enabled (bucket %s)", cfg.ExportBucket)
	return archive, nil
}
