package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Mode         string `mapstructure:"mode"` // debug, release, test
	MaxBodyBytes int64  `mapstructure:"max_body_bytes"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// WalletConfig controls the balance store and the retry protocol around it.
type WalletConfig struct {
	Store       string        `mapstructure:"store"`    // postgres, memory
	Strategy    string        `mapstructure:"strategy"` // optimistic, pessimistic
	MaxAttempts int           `mapstructure:"max_attempts"`
	BaseDelay   time.Duration `mapstructure:"base_delay"`
	Multiplier  float64       `mapstructure:"multiplier"`
	MaxDelay    time.Duration `mapstructure:"max_delay"`
	Jitter      bool          `mapstructure:"jitter"`
	TxTimeout   time.Duration `mapstructure:"tx_timeout"`
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// Validate rejects wallet settings the service cannot run with.
func (w WalletConfig) Validate() error {
	var errs []error
	switch w.Store {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("wallet.store must be postgres or memory, got %q", w.Store))
	}
	switch w.Strategy {
	case "optimistic", "pessimistic":
	default:
		errs = append(errs, fmt.Errorf("wallet.strategy must be optimistic or pessimistic, got %q", w.Strategy))
	}
	if w.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("wallet.max_attempts must be at least 1, got %d", w.MaxAttempts))
	}
	if w.BaseDelay < 0 || w.MaxDelay < 0 {
		errs = append(errs, errors.New("wallet.base_delay and wallet.max_delay must not be negative"))
	}
	if w.Multiplier < 1 {
		errs = append(errs, fmt.Errorf("wallet.multiplier must be at least 1, got %v", w.Multiplier))
	}
	if w.TxTimeout <= 0 {
		errs = append(errs, errors.New("wallet.tx_timeout must be positive"))
	}
	if w.LockTimeout <= 0 {
		errs = append(errs, errors.New("wallet.lock_timeout must be positive"))
	}
	return errors.Join(errs...)
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: WLT_.
// Nested keys use underscore: WLT_DATABASE_HOST, WLT_WALLET_STRATEGY, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.max_body_bytes", 1<<20)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "wallets")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("wallet.store", "postgres")
	v.SetDefault("wallet.strategy", "optimistic")
	v.SetDefault("wallet.max_attempts", 5)
	v.SetDefault("wallet.base_delay", "100ms")
	v.SetDefault("wallet.multiplier", 2.0)
	v.SetDefault("wallet.max_delay", "2s")
	v.SetDefault("wallet.jitter", false)
	v.SetDefault("wallet.tx_timeout", "5s")
	v.SetDefault("wallet.lock_timeout", "1s")
	v.SetDefault("wallet.cache_ttl", "30s")
	v.SetDefault("rate_limit.rps", 100.0)
	v.SetDefault("rate_limit.burst", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: WLT_DATABASE_HOST -> database.host
	v.SetEnvPrefix("WLT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Wallet.Validate(); err != nil {
		return nil, fmt.Errorf("invalid wallet config: %w", err)
	}

	return &cfg, nil
}
