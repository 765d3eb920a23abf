package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	Engine   EngineConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Port        int
	MetricsPort int
}

type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode)
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type LogConfig struct {
	Level    zapcore.Level
	FilePath string
}

type EngineConfig struct {
	AutoQueueReview         bool
	RequireReassignOnReject bool
	CachePrefix             string
	CacheTTL                time.Duration
	PersistRetryBackoff     time.Duration
	AutoMigrate             bool
}

// Load reads configuration from the environment, after loading a local
// .env file when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	level, err := zapcore.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "labcore"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnvInt("APP_PORT", 8080),
			MetricsPort: getEnvInt("METRICS_PORT", 9090),
		},
		Postgres: PostgresConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "labcore"),
			Password: getEnv("POSTGRES_PASSWORD", ""),
			Database: getEnv("POSTGRES_DB", "labcore"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", true),
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnvInt("REDIS_PORT", 6379),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
			Issuer: getEnv("JWT_ISSUER", "labcore"),
		},
		Log: LogConfig{
			Level:    level,
			FilePath: getEnv("LOG_FILE", "app.log"),
		},
		Engine: EngineConfig{
			AutoQueueReview:         getEnvBool("ENGINE_AUTO_QUEUE_REVIEW", true),
			RequireReassignOnReject: getEnvBool("ENGINE_REQUIRE_REASSIGN_ON_REJECT", false),
			CachePrefix:             getEnv("ENGINE_CACHE_PREFIX", "labcore:"),
			CacheTTL:                getEnvDuration("ENGINE_CACHE_TTL", 30*time.Minute),
			PersistRetryBackoff:     getEnvDuration("ENGINE_PERSIST_RETRY_BACKOFF", 100*time.Millisecond),
			AutoMigrate:             getEnvBool("ENGINE_AUTO_MIGRATE", true),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	var errs []string

	if cfg.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	} else if len(cfg.JWT.Secret) < 32 && cfg.App.Environment == "production" {
		errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
	}
	if cfg.Postgres.Password == "" && cfg.App.Environment != "development" {
		errs = append(errs, "POSTGRES_PASSWORD is required in non-development environments")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
