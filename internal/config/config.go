package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken    string  `env:"TELEGRAM_BOT_TOKEN"`
	OperatorIDs []int64 `env:"OPERATOR_IDS" envSeparator:","`
	CatalogPath string  `env:"CATALOG_PATH" envDefault:"configs/catalog.yaml"`
	LogLevel    string  `env:"LOG_LEVEL" envDefault:"info"`

	DBDriver   string `env:"DB_DRIVER" envDefault:"mysql"`
	MySQLDSN   string `env:"MYSQL_DSN"`
	SQLitePath string `env:"SQLITE_PATH" envDefault:"channelpass.db"`

	PendingListLimit   int `env:"PENDING_LIST_LIMIT" envDefault:"10"`
	BroadcastPerSecond int `env:"BROADCAST_PER_SECOND" envDefault:"20"` // 0 disables throttling

	AdminListenAddr string `env:"ADMIN_LISTEN_ADDR" envDefault:":8080"`
	AdminUsername   string `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword   string `env:"ADMIN_PASSWORD" envDefault:"change-me"`

	SnapshotInterval time.Duration `env:"SNAPSHOT_INTERVAL" envDefault:"0s"`
	S3Endpoint       string        `env:"S3_ENDPOINT"`
	S3Region         string        `env:"S3_REGION"`
	S3AccessKey      string        `env:"S3_ACCESS_KEY"`
	S3SecretKey      string        `env:"S3_SECRET_KEY"`
	S3Bucket         string        `env:"S3_BUCKET"`
	S3PublicBaseURL  string        `env:"S3_PUBLIC_BASE_URL"`
	S3UsePathStyle   bool          `env:"S3_USE_PATH_STYLE" envDefault:"false"`
	S3Prefix         string        `env:"S3_PREFIX" envDefault:"snapshots"`
}

// Load reads the optional env file and parses configuration from the environment.
func Load(envFile string) (Config, error) {
	if err := loadEnvFile(envFile); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.DBDriver = strings.ToLower(strings.TrimSpace(cfg.DBDriver))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every missing or inconsistent setting at once.
func (c Config) Validate() error {
	var missing []string
	if c.BotToken == "" {
		missing = append(missing, "TELEGRAM_BOT_TOKEN")
	}
	if len(c.OperatorIDs) == 0 {
		missing = append(missing, "OPERATOR_IDS")
	}
	switch c.DBDriver {
	case DriverMySQL:
		if c.MySQLDSN == "" {
			missing = append(missing, "MYSQL_DSN")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q; allowed: mysql, sqlite", c.DBDriver)
	}
	if c.PendingListLimit <= 0 {
		return fmt.Errorf("PENDING_LIST_LIMIT must be positive, got %d", c.PendingListLimit)
	}
	if c.BroadcastPerSecond < 0 {
		return fmt.Errorf("BROADCAST_PER_SECOND must not be negative, got %d", c.BroadcastPerSecond)
	}
	if c.SnapshotInterval > 0 {
		if c.S3Region == "" {
			missing = append(missing, "S3_REGION")
		}
		if c.S3AccessKey == "" {
			missing = append(missing, "S3_ACCESS_KEY")
		}
		if c.S3SecretKey == "" {
			missing = append(missing, "S3_SECRET_KEY")
		}
		if c.S3Bucket == "" {
			missing = append(missing, "S3_BUCKET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// SnapshotsEnabled reports whether periodic uploads should run.
func (c Config) SnapshotsEnabled() bool {
	return c.SnapshotInterval > 0 && c.S3Bucket != ""
}

// loadEnvFile overlays the first env file found. A missing file is not an
// error: production deployments usually set variables directly.
func loadEnvFile(custom string) error {
	candidates := []string{}
	if custom != "" {
		candidates = append(candidates, custom)
	}
	if fromEnv, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && fromEnv != "" {
		candidates = append(candidates, fromEnv)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				if path == custom {
					return fmt.Errorf("env file %s not found", path)
				}
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	return nil
}
