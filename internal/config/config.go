package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config carries all process configuration. Secrets and TTLs are injected into
// the components that need them at construction; nothing reads the environment
// after Load returns.
type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	AppEnv string `env:"APP_ENV" envDefault:"development"`

	DatabaseURL       string        `env:"DATABASE_URL,required"`
	DBMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`
	StoreTimeout      time.Duration `env:"STORE_TIMEOUT" envDefault:"3s"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET,required"`
	AccessTokenTTL     time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`

	CloudinaryURL string `env:"CLOUDINARY_URL,required"`
	SentryDSN     string `env:"SENTRY_DSN"`

	CronSecret            string        `env:"CRON_SECRET"`
	WatchHistoryRetention time.Duration `env:"WATCH_HISTORY_RETENTION" envDefault:"2160h"`
	CleanupBatchSize      int           `env:"CLEANUP_BATCH_SIZE" envDefault:"500"`

	RunMigrations bool `env:"RUN_MIGRATIONS_ON_STARTUP" envDefault:"true"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	// Compromising one token class must not compromise the other.
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		return Config{}, fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if cfg.AccessTokenTTL <= 0 || cfg.RefreshTokenTTL <= 0 {
		return Config{}, fmt.Errorf("token TTLs must be positive")
	}

	return cfg, nil
}
