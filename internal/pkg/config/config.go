package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	SessionBackendMongo  = "mongo"
	SessionBackendRedis  = "redis"
	SessionBackendMemory = "memory"
)

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth      AuthConfig
	Mongo     MongoConfig
	Redis     RedisConfig
	Email     EmailConfig
	Bootstrap BootstrapConfig
	Client    ClientConfig

	// SessionBackend selects where sessions live: mongo, redis or memory.
	SessionBackend string `env:"SESSION_BACKEND, default=mongo"`
	TouchWorkers   int    `env:"TOUCH_WORKERS,   default=4"`
}

type AuthConfig struct {
	JWTSecret     string        `env:"JWT_SECRET"`
	Issuer        string        `env:"JWT_ISSUER,      default=stallauth"`
	SessionTTL    time.Duration `env:"SESSION_TTL,     default=24h"`
	ResetTokenTTL time.Duration `env:"RESET_TOKEN_TTL, default=10m"`
	CodeTTL       time.Duration `env:"CODE_TTL,        default=5m"`
	BcryptCost    int           `env:"BCRYPT_COST,     default=10"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=stallpos"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type EmailConfig struct {
	Provider       string `env:"EMAIL_PROVIDER,   default=log"`
	From           string `env:"EMAIL_FROM,       default=no-reply@stallpos.local"`
	SendGridAPIKey string `env:"SENDGRID_API_KEY"`
	MailgunDomain  string `env:"MAILGUN_DOMAIN"`
	MailgunAPIKey  string `env:"MAILGUN_API_KEY"`
}

type BootstrapConfig struct {
	AdminUsername string `env:"BOOTSTRAP_ADMIN_USERNAME"`
	AdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
}

// ClientConfig is read by the offline CLI commands.
type ClientConfig struct {
	OfflineDBPath string        `env:"OFFLINE_DB_PATH, default=stallauth-offline.db"`
	ServerURL     string        `env:"SERVER_URL,      default=http://localhost:8080"`
	Timeout       time.Duration `env:"CLIENT_TIMEOUT,  default=10s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration through lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: lookuper}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	cfg.SessionBackend = strings.ToLower(strings.TrimSpace(cfg.SessionBackend))
	return &cfg, nil
}

// IsProduction reports whether ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// ValidateServer checks the settings only the HTTP server needs.
func (c *Config) ValidateServer() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.SessionBackend {
	case SessionBackendMongo, SessionBackendRedis, SessionBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("SESSION_BACKEND must be mongo, redis or memory, got %q", c.SessionBackend))
	}
	if (c.Bootstrap.AdminUsername == "") != (c.Bootstrap.AdminPassword == "") {
		errs = append(errs, errors.New("BOOTSTRAP_ADMIN_USERNAME and BOOTSTRAP_ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}
