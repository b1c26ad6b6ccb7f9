package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"vidtube/internal/auth"
	"vidtube/internal/config"
	"vidtube/internal/db"
	"vidtube/internal/maintenance"
	"vidtube/internal/media"
	"vidtube/internal/observability"
	"vidtube/internal/user"
)

const appName = "vidtube"

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Config  config.Config
	Handler http.Handler
	Logger  *observability.Logger
	Close   func() error
}

// Build wires the whole application from configuration and returns a ready
// HTTP handler.
func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := observability.NewLogger(appName)

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, appName); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	if err := database.Ping(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.RunMigrations {
		if err := db.RunMigrations(database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	codec := auth.NewCodec(auth.CodecConfig{
		AccessSecret:  cfg.AccessTokenSecret,
		RefreshSecret: cfg.RefreshTokenSecret,
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
	})
	identityStore := auth.NewRepository(database, cfg.StoreTimeout)
	issuer := auth.NewIssuer(codec)
	authService := auth.NewService(identityStore, codec, issuer)
	verifier := auth.NewVerifier(identityStore, codec)
	authHandler := auth.NewHandler(authService, codec)

	cloudinaryClient, err := media.NewCloudinary(cfg.CloudinaryURL)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	mediaUploadHandler := media.NewUploadHandler(cloudinaryClient)

	userRepo := user.NewRepository(database, cfg.StoreTimeout)
	userHandler := user.NewHandler(userRepo, cloudinaryClient, verifier)

	cleanupHandler := maintenance.NewCleanupHandler(
		identityStore,
		userRepo,
		logger,
		cfg.CronSecret,
		cfg.WatchHistoryRetention,
		cfg.CleanupBatchSize,
	)

	protected := verifier.Middleware

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", authHandler.Login)
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.Handle("POST /auth/logout", protected(http.HandlerFunc(authHandler.Logout)))

	mux.HandleFunc("POST /users/register", userHandler.Register)
	mux.Handle("GET /users/me", protected(http.HandlerFunc(userHandler.CurrentUser)))
	mux.Handle("POST /users/change-password", protected(http.HandlerFunc(userHandler.ChangePassword)))
	mux.Handle("PATCH /users/me", protected(http.HandlerFunc(userHandler.UpdateAccount)))
	mux.Handle("PATCH /users/avatar", protected(http.HandlerFunc(userHandler.UpdateAvatar)))
	mux.Handle("PATCH /users/cover", protected(http.HandlerFunc(userHandler.UpdateCoverImage)))
	mux.HandleFunc("GET /users/c/{username}", userHandler.ChannelProfile)
	mux.Handle("GET /users/history", protected(http.HandlerFunc(userHandler.WatchHistory)))

	mux.Handle("POST /media/upload", protected(http.HandlerFunc(mediaUploadHandler.Upload)))

	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)

	mux.HandleFunc("GET /health", healthHandler(database))

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, mux))

	return &Runtime{
		Config:  cfg,
		Handler: handler,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

func healthHandler(database *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := database.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
