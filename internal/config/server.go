// Package config provides configuration management for Slawatch.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Environment represents the deployment environment.
type Environment string

const (
	// EnvDevelopment is the default local development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging is the staging/pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProduction is the production environment.
	EnvProduction Environment = "production"
)

// ServerConfig holds server-level configuration loaded from environment variables.
type ServerConfig struct {
	Environment Environment
	ListenAddr  string
	LogLevel    zerolog.Level

	DatabaseURL string
	DBMaxConns  int
	DBMinConns  int

	RedisURL string // empty disables the cross-replica cycle lock

	MonitorEnabled  bool
	MonitorInterval time.Duration
	MonitorLockTTL  time.Duration

	WebhookTimeout       time.Duration
	WebhookSigningSecret string
	WebhookAllowPrivate  bool // allow webhook targets on private networks

	AdminAPIToken     string
	RateLimitRequests int
	RateLimitPeriod   time.Duration
}

// LoadServerConfig reads server configuration from environment variables.
func LoadServerConfig() ServerConfig {
	env := Environment(os.Getenv("ENV"))
	switch env {
	case EnvDevelopment, EnvStaging, EnvProduction:
		// valid
	default:
		env = EnvDevelopment
	}

	level, err := zerolog.ParseLevel(strings.ToLower(getEnv("LOG_LEVEL", "info")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	dbMaxConns := getEnvInt("DB_MAX_CONNS", 25)
	if dbMaxConns <= 0 {
		dbMaxConns = 25
	}
	dbMinConns := getEnvInt("DB_MIN_CONNS", 5)
	if dbMinConns < 0 || dbMinConns > dbMaxConns {
		dbMinConns = min(5, dbMaxConns)
	}

	rateLimitRequests := getEnvInt("RATE_LIMIT_REQUESTS", 100)
	if rateLimitRequests <= 0 {
		rateLimitRequests = 100
	}

	return ServerConfig{
		Environment:          env,
		ListenAddr:           getEnv("LISTEN_ADDR", ":8080"),
		LogLevel:             level,
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		DBMaxConns:           dbMaxConns,
		DBMinConns:           dbMinConns,
		RedisURL:             os.Getenv("REDIS_URL"),
		MonitorEnabled:       getEnvBool("MONITOR_ENABLED", true),
		MonitorInterval:      getEnvDuration("MONITOR_INTERVAL", 5*time.Minute),
		MonitorLockTTL:       getEnvDuration("MONITOR_LOCK_TTL", 10*time.Minute),
		WebhookTimeout:       getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second),
		WebhookSigningSecret: os.Getenv("WEBHOOK_SIGNING_SECRET"),
		WebhookAllowPrivate:  getEnvBool("WEBHOOK_ALLOW_PRIVATE", false),
		AdminAPIToken:        os.Getenv("ADMIN_API_TOKEN"),
		RateLimitRequests:    rateLimitRequests,
		RateLimitPeriod:      getEnvDuration("RATE_LIMIT_PERIOD", time.Minute),
	}
}

// Validate checks that the configuration is usable by the server.
func (c ServerConfig) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Environment == EnvProduction && c.AdminAPIToken == "" {
		return errors.New("ADMIN_API_TOKEN is required in production")
	}
	return nil
}

// IsProduction reports whether the server runs in production.
func (c ServerConfig) IsProduction() bool {
	return c.Environment == EnvProduction
}

// getEnv reads a string from an environment variable, returning the default if unset.
func getEnv(key, defaultVal string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return defaultVal
}

// getEnvBool reads a boolean from an environment variable, returning the default if unset or invalid.
func getEnvBool(key string, defaultVal bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultVal
	}
}

// getEnvInt reads an integer from an environment variable, returning the default if unset or invalid.
func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

// getEnvDuration reads a duration such as "5m" from an environment variable,
// returning the default if unset, invalid or not positive.
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
