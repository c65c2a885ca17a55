// Package config provides configuration loading for the draw service.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the draw service
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	NATS       NATSConfig       `mapstructure:"nats"`
	Redis      RedisConfig      `mapstructure:"redis"`
	OpenSearch OpenSearchConfig `mapstructure:"opensearch"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig selects the ticket and schedule store.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver         string         `mapstructure:"driver"`
	MigrationsPath string         `mapstructure:"migrations_path"`
	Postgres       PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// ConnString builds a postgres:// URL from the settings.
func (p PostgresConfig) ConnString() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + url.QueryEscape(p.SSLMode),
	}
	return u.String()
}

// NATSConfig holds NATS JetStream configuration
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	Enabled       bool          `mapstructure:"enabled"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	BatchSize     int           `mapstructure:"batch_size"`
	FetchWait     time.Duration `mapstructure:"fetch_wait"`
	AckWait       time.Duration `mapstructure:"ack_wait"`
	// StopOnFailure halts a feed consumer after its first transient failure.
	StopOnFailure bool `mapstructure:"stop_on_failure"`
}

// RedisConfig holds Redis configuration for the winners cache
type RedisConfig struct {
	URL        string        `mapstructure:"url"`
	Enabled    bool          `mapstructure:"enabled"`
	WinnersTTL time.Duration `mapstructure:"winners_ttl"`
	MaxRetries int           `mapstructure:"max_retries"`
	PoolSize   int           `mapstructure:"pool_size"`
}

// OpenSearchConfig holds draw audit index configuration
type OpenSearchConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Insecure    bool   `mapstructure:"insecure"`
	Enabled     bool   `mapstructure:"enabled"`
	IndexPrefix string `mapstructure:"index_prefix"`
	SigningKey  string `mapstructure:"signing_key"`
}

// SchedulerConfig holds the periodic draw and export intervals
type SchedulerConfig struct {
	// Enabled runs the periodic loop in this process. Run it in one replica only.
	Enabled        bool          `mapstructure:"enabled"`
	DrawInterval   time.Duration `mapstructure:"draw_interval"`
	ExportInterval time.Duration `mapstructure:"export_interval"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8090)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.migrations_path", "file://migrations")
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.user", "draw")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.database", "lottery")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 25)
	v.SetDefault("database.postgres.min_conns", 5)
	v.SetDefault("database.postgres.max_conn_lifetime", "5m")
	v.SetDefault("database.postgres.max_conn_idle_time", "1m")

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.batch_size", 100)
	v.SetDefault("nats.fetch_wait", "5s")
	v.SetDefault("nats.ack_wait", "30s")
	v.SetDefault("nats.stop_on_failure", false)

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.winners_ttl", "10m")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("opensearch.url", "https://localhost:9200")
	v.SetDefault("opensearch.username", "admin")
	v.SetDefault("opensearch.password", "")
	v.SetDefault("opensearch.insecure", true)
	v.SetDefault("opensearch.enabled", false)
	v.SetDefault("opensearch.index_prefix", "lottery-draws")
	v.SetDefault("opensearch.signing_key", "")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.draw_interval", "1m")
	v.SetDefault("scheduler.export_interval", "1m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/lottery/draw")
	}

	// Environment variables override (DRAW_SERVER_PORT, DRAW_DATABASE_POSTGRES_HOST, ...)
	v.SetEnvPrefix("DRAW")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		// Only fail if a specific config path was given
		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("invalid database.driver %q: want postgres or memory", c.Database.Driver)
	}
	if c.NATS.BatchSize <= 0 {
		return fmt.Errorf("nats.batch_size must be positive, got %d", c.NATS.BatchSize)
	}
	if c.Scheduler.DrawInterval <= 0 || c.Scheduler.ExportInterval <= 0 {
		return fmt.Errorf("scheduler intervals must be positive")
	}
	return nil
}
