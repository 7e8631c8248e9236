package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `envPrefix:"SERVER_"`

	// Database configuration
	Database DatabaseConfig `envPrefix:"DB_"`

	// Redis transport, presence and region cache
	Redis RedisConfig `envPrefix:"REDIS_"`

	// Regions simulated by this process
	Region RegionConfig `envPrefix:"REGION_"`

	// Outbound envelope delivery
	Dispatch DispatchConfig `envPrefix:"DISPATCH_"`

	// JWT configuration
	JWT JWTConfig `envPrefix:"JWT_"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `envPrefix:"RATE_LIMIT_"`

	// WebSocket configuration
	WebSocket WebSocketConfig `envPrefix:"WS_"`

	// Logging configuration
	Logging LoggingConfig `envPrefix:"LOG_"`

	// Application metadata
	App AppConfig `envPrefix:"APP_"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	URL             string        `env:"URL"`
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"5m"`
	AutoMigrate     bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH" envDefault:"file://migrations"`
}

// RedisConfig holds redis configuration
type RedisConfig struct {
	URL            string        `env:"URL" envDefault:"redis://localhost:6379/0"`
	PoolSize       int           `env:"POOL_SIZE" envDefault:"20"`
	DialTimeout    time.Duration `env:"DIAL_TIMEOUT" envDefault:"5s"`
	ChannelPrefix  string        `env:"CHANNEL_PREFIX" envDefault:"region:"`
	PresenceTTL    time.Duration `env:"PRESENCE_TTL" envDefault:"24h"`
	RegionCacheTTL time.Duration `env:"REGION_CACHE_TTL" envDefault:"5m"`
}

// RegionConfig lists the regions hosted here.
type RegionConfig struct {
	HostedIDs []string `env:"HOSTED_IDS" envSeparator:","`
}

// DispatchConfig holds dispatch client configuration
type DispatchConfig struct {
	Workers     int           `env:"WORKERS" envDefault:"4"`
	QueueSize   int           `env:"QUEUE_SIZE" envDefault:"1024"`
	SendTimeout time.Duration `env:"SEND_TIMEOUT" envDefault:"5s"`
	Loopback    bool          `env:"LOOPBACK" envDefault:"true"`
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret         string        `env:"SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled           bool    `env:"ENABLED" envDefault:"true"`
	RequestsPerSecond float64 `env:"RPS" envDefault:"10"`
	BurstSize         int     `env:"BURST" envDefault:"20"`
	EnvelopeRPS       float64 `env:"ENVELOPE_RPS" envDefault:"200"` // per peer, inbound envelopes
	EnvelopeBurst     int     `env:"ENVELOPE_BURST" envDefault:"400"`
}

// WebSocketConfig holds WebSocket configuration
type WebSocketConfig struct {
	AllowedOrigins  []string `env:"ALLOWED_ORIGINS" envSeparator:","`
	ReadBufferSize  int      `env:"READ_BUFFER_SIZE" envDefault:"1024"`
	WriteBufferSize int      `env:"WRITE_BUFFER_SIZE" envDefault:"1024"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`  // debug, info, warn, error
	Format string `env:"FORMAT" envDefault:"json"` // json, text
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"regiond"`
	Version     string `env:"VERSION" envDefault:"dev"`
	Environment string `env:"ENV" envDefault:"development"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := Parse()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse reads the configuration from the process environment without
// loading .env or validating.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	var errs []string

	// Required fields
	if c.Database.URL == "" {
		errs = append(errs, "DB_URL is required")
	}
	if c.Redis.URL == "" {
		errs = append(errs, "REDIS_URL is required")
	}
	if c.JWT.Secret == "" {
		errs = append(errs, "JWT_SECRET is required")
	}
	if _, err := c.HostedRegionIDs(); err != nil {
		errs = append(errs, err.Error())
	}

	// Security validations
	if c.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			errs = append(errs, "JWT_SECRET must be at least 32 characters in production")
		}
		if len(c.WebSocket.AllowedOrigins) == 0 {
			errs = append(errs, "WS_ALLOWED_ORIGINS must be set in production")
		}
	}

	// Logical validations
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		errs = append(errs, "DB_MAX_IDLE_CONNS cannot be greater than DB_MAX_OPEN_CONNS")
	}
	if c.Dispatch.Workers <= 0 {
		errs = append(errs, "DISPATCH_WORKERS must be positive")
	}
	if c.Dispatch.QueueSize <= 0 {
		errs = append(errs, "DISPATCH_QUEUE_SIZE must be positive")
	}
	if c.Redis.ChannelPrefix == "" {
		errs = append(errs, "REDIS_CHANNEL_PREFIX must not be empty")
	}

	if len(errs) > 0 {
		return errors.New("configuration errors:\n  - " + strings.Join(errs, "\n  - "))
	}

	return nil
}

// HostedRegionIDs parses REGION_HOSTED_IDS.
func (c *Config) HostedRegionIDs() ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(c.Region.HostedIDs))
	for _, raw := range c.Region.HostedIDs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("REGION_HOSTED_IDS: invalid region id %q", raw)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.App.Environment == "production"
}

// String returns a redacted string representation of the config (safe for logging)
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Server: %s, DB: %s, Redis: %s, Regions: %d, JWT: [REDACTED], RateLimit: %v, Environment: %s}",
		c.Server.Port,
		redactURL(c.Database.URL),
		redactURL(c.Redis.URL),
		len(c.Region.HostedIDs),
		c.RateLimit.Enabled,
		c.App.Environment,
	)
}

// redactURL redacts the credentials of a connection URL
func redactURL(url string) string {
	if url == "" {
		return ""
	}
	if idx := strings.LastIndex(url, "@"); idx > 0 {
		return "[REDACTED]" + url[idx:]
	}
	return "[REDACTED]"
}
