package elasticsearch

import (
	"time"

	"github.com/jonesrussell/north-cloud/listings/infrastructure/retry"
)

// Config holds Elasticsearch connection settings.
type Config struct {
	// URL is the server URL (e.g. http://elasticsearch:9200).
	URL      string
	Username string
	Password string
	APIKey   string
	// MaxRetries is the per-request retry count inside the transport.
	MaxRetries int
	// PingTimeout bounds each connection verification attempt.
	PingTimeout time.Duration
	// RetryConfig controls connection verification at startup.
	RetryConfig *retry.Config
}

// SetDefaults applies default values to the config if not set.
func (c *Config) SetDefaults() {
	if c.URL == "" {
		c.URL = "http://localhost:9200"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = 5 * time.Second
	}
	if c.RetryConfig == nil {
		c.RetryConfig = &retry.Config{
			MaxAttempts:  5,
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			IsRetryable:  func(error) bool { return true },
		}
	}
}
