package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"workspace-auth/internal/auth"
	"workspace-auth/internal/db"
)

const (
	LimiterPostgres = "postgres"
	LimiterRedis    = "redis"
	LimiterMemory   = "memory"
)

type Config struct {
	Port        string
	Environment string
	SentryDSN   string

	DatabaseURL string
	Pool        db.PoolConfig

	JWTSecret         string
	JWTIssuer         string
	PasswordAlgorithm auth.PasswordAlgorithm
	TokenPolicy       auth.TokenPolicy

	LoginLimiterBackend string
	LoginRateLimitMax   int
	LoginRateLimitWin   time.Duration
	RedisURL            string

	CronSecret       string
	RefreshRetention time.Duration
	IPLimitRetention time.Duration
	CleanupBatchSize int

	AdminUsername   string
	AdminPassword   string
	AdminSoftwareID int64
}

func LoadConfig() (Config, error) {
	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("APP_ENV", "development"),
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),

		DatabaseURL: databaseURL,
		Pool: db.PoolConfig{
			MaxConns:        int32(envIntOrDefault("DB_MAX_CONNS", 10)),
			MinConns:        int32(envIntOrDefault("DB_MIN_CONNS", 1)),
			MaxConnLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
			MaxConnIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
			ConnectRetries:  uint64(envIntOrDefault("DB_CONNECT_RETRIES", 5)),
		},

		JWTSecret:         jwtSecret,
		JWTIssuer:         envOrDefault("JWT_ISSUER", "workspace-auth"),
		PasswordAlgorithm: auth.PasswordAlgorithm(strings.ToLower(envOrDefault("PASSWORD_HASH_ALGORITHM", string(auth.AlgorithmBcrypt)))),
		TokenPolicy: auth.TokenPolicy{
			Single: auth.TokenLifetimes{
				Access:  envMinutesOrDefault("SINGLE_WORKSPACE_ACCESS_TTL_MINUTES", 7*24*60),
				Refresh: envHoursOrDefault("SINGLE_WORKSPACE_REFRESH_TTL_HOURS", 30*24),
			},
			Multi: auth.TokenLifetimes{
				Access:  envMinutesOrDefault("MULTI_WORKSPACE_ACCESS_TTL_MINUTES", 60),
				Refresh: envHoursOrDefault("MULTI_WORKSPACE_REFRESH_TTL_HOURS", 7*24),
			},
		},

		LoginLimiterBackend: strings.ToLower(envOrDefault("LOGIN_RATE_LIMIT_BACKEND", LimiterPostgres)),
		LoginRateLimitMax:   envIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWin:   envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),
		RedisURL:            strings.TrimSpace(os.Getenv("REDIS_URL")),

		CronSecret:       os.Getenv("CRON_SECRET"),
		RefreshRetention: envDaysOrDefault("AUTH_REFRESH_TOKEN_RETENTION_DAYS", 90),
		IPLimitRetention: envDaysOrDefault("AUTH_IP_LIMIT_RETENTION_DAYS", 30),
		CleanupBatchSize: envIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),

		AdminUsername:   os.Getenv("ADMIN_USERNAME"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		AdminSoftwareID: int64(envIntOrDefault("ADMIN_SOFTWARE_ID", 1)),
	}

	switch cfg.LoginLimiterBackend {
	case LimiterPostgres, LimiterMemory:
	case LimiterRedis:
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("missing required env: REDIS_URL (LOGIN_RATE_LIMIT_BACKEND=redis)")
		}
	default:
		return Config{}, fmt.Errorf("unsupported LOGIN_RATE_LIMIT_BACKEND %q", cfg.LoginLimiterBackend)
	}

	return cfg, nil
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func envOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func envIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Hour
}

func envDaysOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * 24 * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(envIntOrDefault(name, fallback)) * time.Second
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
