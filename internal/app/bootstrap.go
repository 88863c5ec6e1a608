package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"workspace-auth/internal/auth"
	"workspace-auth/internal/db"
	"workspace-auth/internal/maintenance"
	"workspace-auth/internal/observability"
)

type Options struct {
	LoadDotEnv    bool
	RunMigrations bool
}

type Runtime struct {
	Handler http.Handler
	Config  Config
	Logger  *observability.Logger
	Close   func() error
}

func Build(ctx context.Context, options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}

	return BuildWithConfig(ctx, cfg, options)
}

func BuildWithConfig(ctx context.Context, cfg Config, options Options) (*Runtime, error) {
	logger := observability.NewLogger()

	hostname, _ := os.Hostname()
	if err := observability.InitSentry(cfg.SentryDSN, cfg.Environment, hostname); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	if options.RunMigrations {
		if err := migrateUp(cfg.DatabaseURL); err != nil {
			return nil, err
		}
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL, cfg.Pool)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	closers := []func() error{func() error { pool.Close(); return nil }}
	fail := func(err error) (*Runtime, error) {
		for _, closeFn := range closers {
			_ = closeFn()
		}
		return nil, err
	}

	hasher, err := auth.NewHasher(cfg.PasswordAlgorithm)
	if err != nil {
		return fail(fmt.Errorf("init password hasher: %w", err))
	}
	signer, err := auth.NewJWTSigner(cfg.JWTSecret, auth.WithIssuer(cfg.JWTIssuer))
	if err != nil {
		return fail(fmt.Errorf("init token signer: %w", err))
	}

	metrics := observability.NewMetrics()
	authRepo := auth.NewRepository(pool)
	refreshRepo := auth.NewRefreshTokenRepository(pool)

	authService := auth.NewService(auth.Dependencies{
		Credentials:   authRepo,
		RefreshTokens: refreshRepo,
		Permissions:   authRepo,
		Hasher:        hasher,
		Signer:        signer,
	}, cfg.TokenPolicy,
		auth.WithRecorder(metrics),
		auth.WithLogger(logger),
	)

	if userID, err := auth.BootstrapCredential(ctx, authRepo, hasher, cfg.AdminUsername, cfg.AdminPassword, cfg.AdminSoftwareID); err != nil {
		return fail(fmt.Errorf("bootstrap admin: %w", err))
	} else if userID != "" {
		logger.Info("admin_bootstrapped", map[string]any{"user_id": userID, "software_id": cfg.AdminSoftwareID})
	}

	var counter auth.LoginIPCounter
	switch cfg.LoginLimiterBackend {
	case LimiterRedis:
		redisOptions, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("parse redis url: %w", err))
		}
		client := redis.NewClient(redisOptions)
		closers = append(closers, client.Close)
		counter = auth.NewRedisLoginCounter(client)
	case LimiterMemory:
		counter = auth.NewMemoryLoginCounter()
	default:
		counter = authRepo
	}
	loginLimiter := auth.NewLoginRateLimiter(counter, cfg.LoginRateLimitMax, cfg.LoginRateLimitWin, logger)

	authHandler := auth.NewHandler(authService)
	cleanupHandler := maintenance.NewCleanupHandler(
		authRepo,
		logger,
		cfg.CronSecret,
		cfg.RefreshRetention,
		cfg.IPLimitRetention,
		cfg.CleanupBatchSize,
	)

	mux := http.NewServeMux()
	mux.Handle("POST /auth/login", loginLimiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /auth/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /auth/logout", authHandler.Logout)
	mux.Handle("GET /auth/me", auth.Middleware(signer, http.HandlerFunc(authHandler.Me)))
	mux.HandleFunc("GET /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("POST /internal/maintenance/cleanup", cleanupHandler.Handle)
	mux.HandleFunc("GET /health", healthHandler(pool))
	mux.Handle("GET /metrics", metrics.Handler())

	handler := observability.RecoverMiddleware(logger, observability.RequestLoggingMiddleware(logger, metrics, mux))

	return &Runtime{
		Handler: handler,
		Config:  cfg,
		Logger:  logger,
		Close: func() error {
			observability.FlushSentry()
			for i := len(closers) - 1; i >= 0; i-- {
				if err := closers[i](); err != nil {
					return err
				}
			}
			return nil
		},
	}, nil
}

func migrateUp(databaseURL string) error {
	migrator, err := db.NewMigrator(databaseURL)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	defer migrator.Close()

	if err := migrator.Up(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func healthHandler(pool *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		body := map[string]any{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)}
		if err := pool.Ping(ctx); err != nil {
			status = http.StatusServiceUnavailable
			body = map[string]any{"status": "degraded", "time": time.Now().UTC().Format(time.RFC3339)}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}
}
