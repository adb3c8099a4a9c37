package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all service configuration
type Config struct {
	Service   ServiceConfig   `toml:"service"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	Cache     CacheConfig     `toml:"cache"`
	Chain     ChainConfig     `toml:"chain"`
	Auth      AuthConfig      `toml:"auth"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string `toml:"name"`
	Port        int    `toml:"port"`
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
	LogFormat   string `toml:"log_format"`
}

// DatabaseConfig holds metadata store settings.
// Type selects the backend: "postgres" or "memory".
type DatabaseConfig struct {
	Type        string        `toml:"type"`
	Host        string        `toml:"host"`
	Port        int           `toml:"port"`
	Database    string        `toml:"database"`
	User        string        `toml:"user"`
	Password    string        `toml:"password"`
	MaxConns    int           `toml:"max_conns"`
	MinConns    int           `toml:"min_conns"`
	MaxIdleTime time.Duration `toml:"max_idle_time"`
	MaxLifetime time.Duration `toml:"max_lifetime"`
	AutoMigrate bool          `toml:"auto_migrate"`
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// RateLimitConfig holds limits for the unlock endpoint
type RateLimitConfig struct {
	UnlockPerUser int64 `toml:"unlock_per_user"`
	UnlockGlobal  int64 `toml:"unlock_global"`
	WindowSeconds int   `toml:"window_seconds"`
}

// CacheConfig holds cache settings
type CacheConfig struct {
	Enabled    bool          `toml:"enabled"`
	DefaultTTL time.Duration `toml:"default_ttl"`
}

// ChainConfig holds settings for the on-chain payment oracle
type ChainConfig struct {
	RPCURL         string        `toml:"rpc_url"`
	Network        string        `toml:"network"`
	Decimals       int32         `toml:"decimals"`
	RetryAttempts  int           `toml:"retry_attempts"`
	RetryInterval  time.Duration `toml:"retry_interval"`
	DetachVerify   bool          `toml:"detach_verify"`
	VerifyTimeout  time.Duration `toml:"verify_timeout"`
	RequestTimeout time.Duration `toml:"request_timeout"`
}

// AuthConfig holds session token settings
type AuthConfig struct {
	JWTSecret  string        `toml:"jwt_secret"`
	TokenTTL   time.Duration `toml:"token_ttl"`
	CookieName string        `toml:"cookie_name"`
}

// TelemetryConfig holds observability settings
type TelemetryConfig struct {
	EnablePprof bool `toml:"enable_pprof"`
	PprofPort   int  `toml:"pprof_port"`
}

// Default returns the configuration used when nothing is overridden
func Default(serviceName string) *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        4001,
			Environment: "development",
			LogLevel:    "info",
			LogFormat:   "text",
		},
		Database: DatabaseConfig{
			Type:        "postgres",
			Host:        "localhost",
			Port:        5432,
			Database:    "contentgate",
			User:        "contentgate",
			Password:    "contentgate",
			MaxConns:    20,
			MinConns:    2,
			MaxIdleTime: 30 * time.Minute,
			MaxLifetime: 1 * time.Hour,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		RateLimit: RateLimitConfig{
			UnlockPerUser: 30,
			UnlockGlobal:  600,
			WindowSeconds: 60,
		},
		Cache: CacheConfig{
			Enabled:    true,
			DefaultTTL: 1 * time.Hour,
		},
		Chain: ChainConfig{
			RPCURL:         "https://fullnode.testnet.sui.io:443",
			Network:        "sui:testnet",
			Decimals:       9,
			RetryAttempts:  10,
			RetryInterval:  2 * time.Second,
			DetachVerify:   true,
			VerifyTimeout:  30 * time.Second,
			RequestTimeout: 10 * time.Second,
		},
		Auth: AuthConfig{
			TokenTTL:   7 * 24 * time.Hour,
			CookieName: "auth_token",
		},
		Telemetry: TelemetryConfig{
			EnablePprof: false,
			PprofPort:   6060,
		},
	}
}

// Load loads configuration from an optional TOML file (CONTENTGATE_CONFIG)
// and then from environment variables, which take precedence.
func Load(serviceName string) (*Config, error) {
	cfg := Default(serviceName)

	if path := os.Getenv("CONTENTGATE_CONFIG"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	return cfg, cfg.Validate()
}

func (c *Config) mergeFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	if _, err := toml.NewDecoder(f).Decode(c); err != nil {
		return fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Service.Port = getEnvInt("PORT", c.Service.Port)
	c.Service.Environment = getEnv("ENVIRONMENT", c.Service.Environment)
	c.Service.LogLevel = getEnv("LOG_LEVEL", c.Service.LogLevel)
	c.Service.LogFormat = getEnv("LOG_FORMAT", c.Service.LogFormat)

	c.Database.Type = getEnv("DATABASE_TYPE", c.Database.Type)
	c.Database.Host = getEnv("POSTGRES_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("POSTGRES_PORT", c.Database.Port)
	c.Database.Database = getEnv("POSTGRES_DB", c.Database.Database)
	c.Database.User = getEnv("POSTGRES_USER", c.Database.User)
	c.Database.Password = getEnv("POSTGRES_PASSWORD", c.Database.Password)
	c.Database.MaxConns = getEnvInt("POSTGRES_MAX_CONNS", c.Database.MaxConns)
	c.Database.MinConns = getEnvInt("POSTGRES_MIN_CONNS", c.Database.MinConns)
	c.Database.MaxIdleTime = getEnvDuration("POSTGRES_MAX_IDLE_TIME", c.Database.MaxIdleTime)
	c.Database.MaxLifetime = getEnvDuration("POSTGRES_MAX_LIFETIME", c.Database.MaxLifetime)
	c.Database.AutoMigrate = getEnvBool("DB_AUTO_MIGRATE", c.Database.AutoMigrate)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.RateLimit.UnlockPerUser = int64(getEnvInt("RATE_LIMIT_UNLOCK_PER_USER", int(c.RateLimit.UnlockPerUser)))
	c.RateLimit.UnlockGlobal = int64(getEnvInt("RATE_LIMIT_UNLOCK_GLOBAL", int(c.RateLimit.UnlockGlobal)))
	c.RateLimit.WindowSeconds = getEnvInt("RATE_LIMIT_WINDOW_SECONDS", c.RateLimit.WindowSeconds)

	c.Cache.Enabled = getEnvBool("CACHE_ENABLED", c.Cache.Enabled)
	c.Cache.DefaultTTL = getEnvDuration("CACHE_DEFAULT_TTL", c.Cache.DefaultTTL)

	c.Chain.RPCURL = getEnv("SUI_RPC_URL", c.Chain.RPCURL)
	c.Chain.Network = getEnv("SUI_NETWORK", c.Chain.Network)
	c.Chain.Decimals = int32(getEnvInt("SUI_DECIMALS", int(c.Chain.Decimals)))
	c.Chain.RetryAttempts = getEnvInt("UNLOCK_RETRY_ATTEMPTS", c.Chain.RetryAttempts)
	c.Chain.RetryInterval = getEnvDuration("UNLOCK_RETRY_INTERVAL", c.Chain.RetryInterval)
	c.Chain.DetachVerify = getEnvBool("UNLOCK_DETACH_VERIFICATION", c.Chain.DetachVerify)
	c.Chain.VerifyTimeout = getEnvDuration("UNLOCK_VERIFY_TIMEOUT", c.Chain.VerifyTimeout)
	c.Chain.RequestTimeout = getEnvDuration("SUI_REQUEST_TIMEOUT", c.Chain.RequestTimeout)

	c.Auth.JWTSecret = getEnv("JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.TokenTTL = getEnvDuration("JWT_TTL", c.Auth.TokenTTL)
	c.Auth.CookieName = getEnv("AUTH_COOKIE_NAME", c.Auth.CookieName)

	c.Telemetry.EnablePprof = getEnvBool("ENABLE_PPROF", c.Telemetry.EnablePprof)
	c.Telemetry.PprofPort = getEnvInt("PPROF_PORT", c.Telemetry.PprofPort)
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	switch c.Database.Type {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			return fmt.Errorf("max_conns must be >= min_conns")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type: %s", c.Database.Type)
	}

	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain rpc url is required")
	}
	if c.Chain.RetryAttempts < 1 {
		return fmt.Errorf("retry attempts must be >= 1, got %d", c.Chain.RetryAttempts)
	}
	if c.Chain.RetryInterval < 0 {
		return fmt.Errorf("retry interval must not be negative")
	}
	if c.Chain.Decimals < 0 || c.Chain.Decimals > 18 {
		return fmt.Errorf("invalid chain decimals: %d", c.Chain.Decimals)
	}

	if c.Auth.JWTSecret == "" && c.Service.Environment == "production" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
