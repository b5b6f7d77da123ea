//	@title			QuickShare API
//	@version		1.0
//	@description	File sharing with share codes and access codes over pluggable object storage.
//
//	@host		localhost:3000
//	@BasePath	/api
//
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Admin JWT Bearer token. Format: **Bearer {token}**

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/quickshare/service/internal/admin"
	"github.com/quickshare/service/internal/config"
	"github.com/quickshare/service/internal/db"
	"github.com/quickshare/service/internal/files"
	appMiddleware "github.com/quickshare/service/internal/middleware"
	"github.com/quickshare/service/internal/settings"
	"github.com/quickshare/service/internal/share"
	"github.com/quickshare/service/internal/storage"

	_ "github.com/quickshare/service/docs/swagger"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, settingsRepo, closeStore := openStores(ctx, cfg)
	defer closeStore()

	local, err := storage.NewLocal(cfg.UploadDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.UploadDir).Msg("local storage init failed")
	}
	if err := os.MkdirAll(cfg.TempDir, 0o750); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.TempDir).Msg("temp dir init failed")
	}

	// Wire dependencies: store → service → handler
	registry := storage.NewRegistry(local, cfg.StorageTimeout)
	settingsMgr := settings.NewManager(settingsRepo, registry, clock.WallClock)

	fileSvc := files.NewService(store, settingsMgr, registry, clock.WallClock)
	fileHandler := files.NewHandler(fileSvc, files.HandlerConfig{
		TempDir:      cfg.TempDir,
		Redirect:     cfg.DownloadRedirect,
		SignedURLTTL: cfg.SignedURLTTL,
	})

	authn := admin.NewAuthenticator(cfg.AdminPassword, cfg.JWTSecret, cfg.AdminTokenTTL, clock.WallClock)
	adminHandler := admin.NewHandler(authn, settingsMgr, registry, fileSvc)

	uploadLimiter := appMiddleware.NewRateLimiter("upload", settings.UploadWindow, appMiddleware.UploadLimit(settingsMgr), clock.WallClock)
	downloadLimiter := appMiddleware.NewRateLimiter("download", settings.DownloadWindow, appMiddleware.DownloadLimit(settingsMgr), clock.WallClock)

	sweeper := files.NewSweeper(fileSvc, clock.WallClock, cfg.CleanupInterval, cfg.ReclaimStorage)
	sweeper.Start(ctx)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(appMiddleware.Metrics)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "Content-Length"},
		MaxAge:         300,
	}))

	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI, available at http://localhost:3000/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})

		r.With(uploadLimiter.Handler).Post("/upload", fileHandler.Upload)

		r.Route("/download", func(r chi.Router) {
			r.Use(downloadLimiter.Handler)
			r.Post("/info/{shareCode}", fileHandler.Info)
			r.Get("/file/{shareCode}", fileHandler.Download)
			r.Get("/preview/{shareCode}", fileHandler.Preview)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Post("/login", adminHandler.Login)

			// Protected admin endpoints
			r.Group(func(r chi.Router) {
				r.Use(appMiddleware.RequireAdmin(cfg.JWTSecret, admin.Role))
				r.Get("/settings", adminHandler.GetSettings)
				r.Put("/settings", adminHandler.UpdateSettings)
				r.Post("/settings/test", adminHandler.TestConnection)
				r.Get("/files", adminHandler.ListFiles)
				r.Get("/stats", adminHandler.Stats)
				r.Post("/cleanup", adminHandler.Cleanup)
				r.Post("/reclaim", adminHandler.Reclaim)
			})
		})
	})

	// WriteTimeout stays zero: downloads stream for as long as the client reads.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.AppEnv).Str("store", cfg.StoreDriver).Msg("server listening")
		log.Info().Msgf("swagger UI at http://localhost:%s/swagger/", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down gracefully...")

	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	log.Info().Msg("server stopped")
}

func setupLogging(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if !cfg.IsProduction() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
}

// openStores returns the share store and settings repository for the
// configured driver, plus a function releasing their resources.
func openStores(ctx context.Context, cfg *config.Config) (share.Store, settings.Repository, func()) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		log.Warn().Msg("using in-memory store, data is lost on restart")
		return share.NewMemoryStore(), settings.NewMemoryRepository(), func() {}

	case config.StoreDriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()

		pool, err := db.Connect(connectCtx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("database connection failed")
		}
		if err := db.Migrate(cfg.DatabaseURL); err != nil {
			pool.Close()
			log.Fatal().Err(err).Msg("database migration failed")
		}
		return share.NewPgStore(pool), settings.NewPgRepository(pool), closePool(pool)
	}

	log.Fatal().Str("driver", cfg.StoreDriver).Msg("unknown STORE_DRIVER, expected postgres or memory")
	return nil, nil, nil
}

func closePool(pool *pgxpool.Pool) func() {
	return func() {
		pool.Close()
		log.Info().Msg("database pool closed")
	}
}
