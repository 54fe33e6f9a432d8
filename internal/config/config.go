// Package config holds the listings service configuration.
package config

import (
	"fmt"
	"time"

	infraconfig "github.com/jonesrussell/north-cloud/listings/infrastructure/config"
	"github.com/jonesrussell/north-cloud/listings/internal/lifecycle"
)

// Config holds all configuration for the listings service.
type Config struct {
	Service       ServiceConfig       `yaml:"service"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Database      DatabaseConfig      `yaml:"database"`
	Redis         RedisConfig         `yaml:"redis"`
	Logging       LoggingConfig       `yaml:"logging"`
	Lifecycle     LifecycleConfig     `yaml:"lifecycle"`
	Reclassifier  ReclassifierConfig  `yaml:"reclassifier"`
	Sync          SyncConfig          `yaml:"sync"`
}

// ServiceConfig holds service-level configuration.
type ServiceConfig struct {
	Name            string        `yaml:"name"`
	Version         string        `yaml:"version"`
	Port            int           `env:"LISTINGS_PORT"              yaml:"port"`
	Debug           bool          `env:"LISTINGS_DEBUG"             yaml:"debug"`
	MaxPageSize     int           `env:"LISTINGS_MAX_PAGE_SIZE"     yaml:"max_page_size"`
	DefaultPageSize int           `env:"LISTINGS_DEFAULT_PAGE_SIZE" yaml:"default_page_size"`
	MaxQueryLength  int           `yaml:"max_query_length"`
	SearchTimeout   time.Duration `yaml:"search_timeout"`
}

// ElasticsearchConfig holds Elasticsearch connection configuration.
type ElasticsearchConfig struct {
	URL        string        `env:"ELASTICSEARCH_URL"      yaml:"url"`
	Username   string        `env:"ELASTICSEARCH_USERNAME" yaml:"username"`
	Password   string        `env:"ELASTICSEARCH_PASSWORD" yaml:"password"`
	APIKey     string        `env:"ELASTICSEARCH_API_KEY"  yaml:"api_key"`
	MaxRetries int           `yaml:"max_retries"`
	Timeout    time.Duration `yaml:"timeout"`
	// IndexAlias is the alias every read and write goes through.
	IndexAlias string `env:"LISTINGS_INDEX_ALIAS" yaml:"index_alias"`
	// IndexName is the concrete index created behind the alias on bootstrap.
	IndexName string `env:"LISTINGS_INDEX_NAME" yaml:"index_name"`
	Shards    int    `yaml:"shards"`
	Replicas  int    `yaml:"replicas"`
}

// DatabaseConfig holds primary store configuration.
type DatabaseConfig struct {
	Host            string        `env:"POSTGRES_HOST"     yaml:"host"`
	Port            int           `env:"POSTGRES_PORT"     yaml:"port"`
	User            string        `env:"POSTGRES_USER"     yaml:"user"`
	Password        string        `env:"POSTGRES_PASSWORD" yaml:"password"` //nolint:gosec // DB connection config
	Database        string        `env:"POSTGRES_DB"       yaml:"database"`
	SSLMode         string        `env:"POSTGRES_SSLMODE"  yaml:"sslmode"`
	MaxConnections  int           `yaml:"max_connections"`
	MaxIdleConns    int           `yaml:"max_idle_connections"`
	ConnMaxLifetime time.Duration `yaml:"connection_max_lifetime"`
}

// DSN returns the lib/pq keyword connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Database, d.SSLMode,
	)
}

// URL returns the postgres:// form used by golang-migrate.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// RedisConfig holds the Redis connection used for the reclassifier run lock.
type RedisConfig struct {
	Address  string `env:"REDIS_ADDRESS"  yaml:"address"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB"       yaml:"db"`
	// Enabled turns the run lock on. Without it runs are not serialized,
	// which is safe but wasteful.
	Enabled bool `env:"REDIS_ENABLED" yaml:"enabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL"  yaml:"level"`
	Format string `env:"LOG_FORMAT" yaml:"format"`
}

// LifecycleConfig holds the reference timezone used to define "today".
type LifecycleConfig struct {
	// Timezone is a fixed offset ("+09:00") or IANA name ("Asia/Seoul").
	Timezone string `env:"LISTINGS_TIMEZONE" yaml:"timezone"`
}

// ReclassifierConfig controls the batch reclassifier schedule.
type ReclassifierConfig struct {
	Enabled bool `env:"RECLASSIFIER_ENABLED" yaml:"enabled"`
	// Interval between periodic runs. Zero disables the periodic entry.
	Interval time.Duration `env:"RECLASSIFIER_INTERVAL" yaml:"interval"`
	// RunAtMidnight adds a run at 00:00 in the reference timezone.
	RunAtMidnight bool `env:"RECLASSIFIER_RUN_AT_MIDNIGHT" yaml:"run_at_midnight"`
	// LockTTL bounds how long a crashed run can hold the lock.
	LockTTL time.Duration `yaml:"lock_ttl"`
	// PassTimeout bounds a single update-by-query pass.
	PassTimeout time.Duration `yaml:"pass_timeout"`
}

// SyncConfig controls the dual-write synchronizer worker pool.
type SyncConfig struct {
	Workers      int           `env:"SYNC_WORKERS"    yaml:"workers"`
	QueueSize    int           `env:"SYNC_QUEUE_SIZE" yaml:"queue_size"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
	// ReindexBatchSize is the page size used by the reindex command.
	ReindexBatchSize int `yaml:"reindex_batch_size"`
}

// Load loads configuration from file and environment variables.
func Load(path string) (*Config, error) {
	cfg, err := infraconfig.LoadWithDefaults[Config](path, setDefaults)
	if err != nil {
		return nil, err
	}

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	// Service defaults
	if cfg.Service.Name == "" {
		cfg.Service.Name = "listings"
	}
	if cfg.Service.Version == "" {
		cfg.Service.Version = "1.0.0"
	}
	if cfg.Service.Port == 0 {
		cfg.Service.Port = 8095
	}
	if cfg.Service.MaxPageSize == 0 {
		cfg.Service.MaxPageSize = 100
	}
	if cfg.Service.DefaultPageSize == 0 {
		cfg.Service.DefaultPageSize = 20
	}
	if cfg.Service.MaxQueryLength == 0 {
		cfg.Service.MaxQueryLength = 200
	}
	if cfg.Service.SearchTimeout == 0 {
		cfg.Service.SearchTimeout = 5 * time.Second
	}

	// Elasticsearch defaults
	if cfg.Elasticsearch.URL == "" {
		cfg.Elasticsearch.URL = "http://localhost:9200"
	}
	if cfg.Elasticsearch.MaxRetries == 0 {
		cfg.Elasticsearch.MaxRetries = 3
	}
	if cfg.Elasticsearch.Timeout == 0 {
		cfg.Elasticsearch.Timeout = 30 * time.Second
	}
	if cfg.Elasticsearch.IndexAlias == "" {
		cfg.Elasticsearch.IndexAlias = "listings"
	}
	if cfg.Elasticsearch.IndexName == "" {
		cfg.Elasticsearch.IndexName = cfg.Elasticsearch.IndexAlias + "_v1"
	}
	if cfg.Elasticsearch.Shards == 0 {
		cfg.Elasticsearch.Shards = 1
	}

	// Database defaults
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.Database == "" {
		cfg.Database.Database = "listings"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxConnections == 0 {
		cfg.Database.MaxConnections = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 5 * time.Minute
	}

	// Redis defaults
	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	// Lifecycle defaults
	if cfg.Lifecycle.Timezone == "" {
		cfg.Lifecycle.Timezone = "+09:00"
	}

	// Reclassifier defaults
	if cfg.Reclassifier.Interval == 0 {
		cfg.Reclassifier.Interval = 5 * time.Minute
	}
	if cfg.Reclassifier.LockTTL == 0 {
		cfg.Reclassifier.LockTTL = 10 * time.Minute
	}
	if cfg.Reclassifier.PassTimeout == 0 {
		cfg.Reclassifier.PassTimeout = 2 * time.Minute
	}

	// Sync defaults
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}
	if cfg.Sync.QueueSize == 0 {
		cfg.Sync.QueueSize = 1024
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = 10 * time.Second
	}
	if cfg.Sync.MaxAttempts == 0 {
		cfg.Sync.MaxAttempts = 3
	}
	if cfg.Sync.InitialDelay == 0 {
		cfg.Sync.InitialDelay = 200 * time.Millisecond
	}
	if cfg.Sync.MaxDelay == 0 {
		cfg.Sync.MaxDelay = 5 * time.Second
	}
	if cfg.Sync.ReindexBatchSize == 0 {
		cfg.Sync.ReindexBatchSize = 500
	}
}

// Validate validates the configuration. The reference timezone is resolved
// here so a bad value stops the process at startup.
func (c *Config) Validate() error {
	if err := infraconfig.ValidatePort("service.port", c.Service.Port); err != nil {
		return err
	}
	if c.Service.MaxPageSize < 1 {
		return &infraconfig.ValidationError{Field: "service.max_page_size", Message: "must be greater than 0"}
	}
	if c.Service.DefaultPageSize < 1 || c.Service.DefaultPageSize > c.Service.MaxPageSize {
		return &infraconfig.ValidationError{
			Field:   "service.default_page_size",
			Message: fmt.Sprintf("must be between 1 and %d", c.Service.MaxPageSize),
		}
	}
	if err := infraconfig.ValidateRequired("elasticsearch.url", c.Elasticsearch.URL); err != nil {
		return err
	}
	if err := infraconfig.ValidateRequired("elasticsearch.index_alias", c.Elasticsearch.IndexAlias); err != nil {
		return err
	}
	if c.Elasticsearch.IndexName == c.Elasticsearch.IndexAlias {
		return &infraconfig.ValidationError{Field: "elasticsearch.index_name", Message: "must differ from index_alias"}
	}
	if err := infraconfig.ValidateLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := lifecycle.ParseZone(c.Lifecycle.Timezone); err != nil {
		return &infraconfig.ValidationError{Field: "lifecycle.timezone", Message: err.Error()}
	}
	if c.Reclassifier.Enabled && c.Reclassifier.Interval <= 0 && !c.Reclassifier.RunAtMidnight {
		return &infraconfig.ValidationError{
			Field:   "reclassifier.interval",
			Message: "an interval or run_at_midnight is required when the reclassifier is enabled",
		}
	}
	if c.Sync.Workers < 1 {
		return &infraconfig.ValidationError{Field: "sync.workers", Message: "must be greater than 0"}
	}
	if c.Sync.QueueSize < 1 {
		return &infraconfig.ValidationError{Field: "sync.queue_size", Message: "must be greater than 0"}
	}
	return nil
}
