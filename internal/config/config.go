package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logger     LoggerConfig     `mapstructure:"logger"`
	Lifecycle  LifecycleConfig  `mapstructure:"lifecycle"`
	Outbox     OutboxConfig     `mapstructure:"outbox"`
	Blockchain BlockchainConfig `mapstructure:"blockchain"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Exports    ExportsConfig    `mapstructure:"exports"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// LifecycleConfig tunes bill validation rules
type LifecycleConfig struct {
	AllowedPaymentQuarters []int  `mapstructure:"allowed_payment_quarters"`
	DefaultCurrency        string `mapstructure:"default_currency"`
	// MaxDiscountRate is a percentage
	MaxDiscountRate float64 `mapstructure:"max_discount_rate"`
}

// OutboxConfig holds side-effect retry configuration
type OutboxConfig struct {
	PollInterval   time.Duration `mapstructure:"poll_interval"`
	BatchSize      int           `mapstructure:"batch_size"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
}

// BlockchainConfig holds the deed service client configuration.
// When disabled deeds are recorded locally.
type BlockchainConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Network string        `mapstructure:"network"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// AuthConfig holds actor token configuration
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	Issuer    string        `mapstructure:"issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

// ExportsConfig holds where generated workbooks are archived
type ExportsConfig struct {
	Dir string `mapstructure:"dir"`
}

// Load reads configPath (optional) and environment variables.
// An empty configPath uses defaults and the environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("failed to bind environment: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	// SQLite has a single writer
	v.SetDefault("database.path", "data/portal.db")
	v.SetDefault("database.max_open_conns", 1)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Lifecycle defaults
	v.SetDefault("lifecycle.allowed_payment_quarters", []int{2, 4, 6, 8})
	v.SetDefault("lifecycle.default_currency", "NGN")
	v.SetDefault("lifecycle.max_discount_rate", 100)

	// Outbox defaults
	v.SetDefault("outbox.poll_interval", 10*time.Second)
	v.SetDefault("outbox.batch_size", 20)
	v.SetDefault("outbox.max_attempts", 5)
	v.SetDefault("outbox.process_timeout", 30*time.Second)

	// Blockchain defaults
	v.SetDefault("blockchain.enabled", false)
	v.SetDefault("blockchain.network", "hedera-testnet")
	v.SetDefault("blockchain.timeout", 15*time.Second)

	// Auth defaults
	v.SetDefault("auth.issuer", "receivables-portal")
	v.SetDefault("auth.token_ttl", 24*time.Hour)

	v.SetDefault("exports.dir", "data/exports")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"blockchain.api_key": "BLOCKCHAIN_API_KEY",
		"auth.jwt_secret":    "AUTH_JWT_SECRET",
		"database.path":      "DATABASE_PATH",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if len(c.Lifecycle.AllowedPaymentQuarters) == 0 {
		return fmt.Errorf("lifecycle.allowed_payment_quarters must not be empty")
	}
	for _, q := range c.Lifecycle.AllowedPaymentQuarters {
		if q <= 0 {
			return fmt.Errorf("lifecycle.allowed_payment_quarters must be positive, got %d", q)
		}
	}
	if c.Lifecycle.MaxDiscountRate <= 0 || c.Lifecycle.MaxDiscountRate > 100 {
		return fmt.Errorf("lifecycle.max_discount_rate must be in (0, 100]")
	}
	if len(c.Lifecycle.DefaultCurrency) != 3 {
		return fmt.Errorf("lifecycle.default_currency must be a 3-letter code")
	}

	if c.Outbox.MaxAttempts <= 0 {
		return fmt.Errorf("outbox.max_attempts must be positive")
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive")
	}

	if c.Blockchain.Enabled && c.Blockchain.BaseURL == "" {
		return fmt.Errorf("blockchain.base_url is required when blockchain.enabled is set")
	}

	if c.Exports.Dir == "" {
		return fmt.Errorf("exports.dir is required")
	}

	return nil
}

// MaxDiscountRateDecimal returns the configured bound as a decimal
func (c LifecycleConfig) MaxDiscountRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.MaxDiscountRate)
}

// Addr returns the listen address
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
