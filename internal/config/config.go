package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the attribution core.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	ClickHouse  ClickHouseConfig
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	Log         LogConfig
	Metrics     MetricsConfig
	Attribution AttributionConfig
	Sync        SyncConfig
	Geo         GeoConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// ClickHouseConfig configures the append-only pixel event archive.
type ClickHouseConfig struct {
	Enabled  bool
	Addr     string
	Database string
	User     string
	Password string
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled     bool
	IngestRPS   float64
	IngestBurst int
	MgmtRPS     float64
	MgmtBurst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// AttributionConfig selects the default window and model applied to
// organizations without an explicit setting.
type AttributionConfig struct {
	Window string
	Model  string
}

// SyncConfig tunes the periodic pipeline.
type SyncConfig struct {
	Interval    time.Duration
	Lookback    time.Duration
	Concurrency int
	// MaxAge is how old cached metrics may get before they count as stale.
	MaxAge time.Duration
}

// GeoConfig configures GeoIP enrichment of pixel events.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("LUCA_HTTP_ADDR", ":8080"),
			Env:             getEnv("LUCA_ENV", "development"),
			ShutdownTimeout: getDurationEnv("LUCA_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("LUCA_DB_HOST", "localhost"),
			Port:     getIntEnv("LUCA_DB_PORT", 5432),
			User:     getEnv("LUCA_DB_USER", "luca"),
			Password: getEnv("LUCA_DB_PASSWORD", "luca_secret"),
			DBName:   getEnv("LUCA_DB_NAME", "attribution"),
			SSLMode:  getEnv("LUCA_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("LUCA_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("LUCA_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("LUCA_REDIS_ENABLED", true),
			Addr:     getEnv("LUCA_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("LUCA_REDIS_PASSWORD", ""),
			DB:       getIntEnv("LUCA_REDIS_DB", 0),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:  getBoolEnv("LUCA_CLICKHOUSE_ENABLED", false),
			Addr:     getEnv("LUCA_CLICKHOUSE_ADDR", "localhost:9000"),
			Database: getEnv("LUCA_CLICKHOUSE_DB", "attribution"),
			User:     getEnv("LUCA_CLICKHOUSE_USER", "default"),
			Password: getEnv("LUCA_CLICKHOUSE_PASSWORD", ""),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("LUCA_AUTH_ENABLED", true),
			MasterKey: getEnv("LUCA_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("LUCA_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/v1/events"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:     getBoolEnv("LUCA_RATE_LIMIT_ENABLED", true),
			IngestRPS:   getFloatEnv("LUCA_RATE_LIMIT_INGEST_RPS", 1000),
			IngestBurst: getIntEnv("LUCA_RATE_LIMIT_INGEST_BURST", 200),
			MgmtRPS:     getFloatEnv("LUCA_RATE_LIMIT_MGMT_RPS", 100),
			MgmtBurst:   getIntEnv("LUCA_RATE_LIMIT_MGMT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("LUCA_LOG_LEVEL", "info"),
			Format: getEnv("LUCA_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("LUCA_METRICS_ENABLED", true),
			Path:      getEnv("LUCA_METRICS_PATH", "/metrics"),
			Namespace: getEnv("LUCA_METRICS_NAMESPACE", "luca"),
		},
		Attribution: AttributionConfig{
			Window: getEnv("LUCA_ATTRIBUTION_WINDOW", "7d_click"),
			Model:  getEnv("LUCA_ATTRIBUTION_MODEL", "last_click"),
		},
		Sync: SyncConfig{
			Interval:    getDurationEnv("LUCA_SYNC_INTERVAL", 15*time.Minute),
			Lookback:    getDurationEnv("LUCA_SYNC_LOOKBACK", 30*24*time.Hour),
			Concurrency: getIntEnv("LUCA_SYNC_CONCURRENCY", 4),
			MaxAge:      getDurationEnv("LUCA_SYNC_MAX_AGE", 15*time.Minute),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("LUCA_GEO_ENABLED", false),
			DatabasePath: getEnv("LUCA_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("LUCA_API_KEY_MASTER is required when auth is enabled")
	}
	if c.Sync.Concurrency < 1 {
		return fmt.Errorf("LUCA_SYNC_CONCURRENCY must be at least 1")
	}
	switch c.Attribution.Window {
	case "1d_click", "7d_click", "28d_click", "1d_view", "7d_view":
	default:
		return fmt.Errorf("LUCA_ATTRIBUTION_WINDOW %q is not a known window", c.Attribution.Window)
	}
	switch c.Attribution.Model {
	case "last_click", "first_click", "linear", "time_decay":
	default:
		return fmt.Errorf("LUCA_ATTRIBUTION_MODEL %q is not a known model", c.Attribution.Model)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
