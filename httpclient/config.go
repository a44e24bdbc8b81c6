package httpclient

import (
	"slices"
	"time"

	"github.com/kbukum/httpreq/config"
	"github.com/kbukum/httpreq/resilience"
	"github.com/kbukum/httpreq/validation"
	"github.com/kbukum/httpreq/version"
)

const (
	// DefaultMaxRetries is the retry budget of DefaultConfig.
	DefaultMaxRetries = 3
	// DefaultBackoffFactor is the backoff factor of DefaultConfig.
	DefaultBackoffFactor = 0.3
	// DefaultMaxBackoff caps a single backoff delay.
	DefaultMaxBackoff = 120 * time.Second
	// DefaultTimeout is the per-request timeout new builders start with.
	DefaultTimeout = 300 * time.Second
)

// Config configures a Transport.
//
// MaxRetries and BackoffFactor are taken as given, so a zero value
// disables retries or backoff. Start from DefaultConfig for the standard
// policy.
type Config struct {
	// Name identifies the transport in logs and component registries.
	Name string `yaml:"name" mapstructure:"name"`

	// MaxRetries bounds the retries after the first attempt.
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0,lte=50"`

	// BackoffFactor scales the exponential delay between retries, in seconds.
	BackoffFactor float64 `yaml:"backoff_factor" mapstructure:"backoff_factor" validate:"gte=0"`

	// MaxBackoff caps a single delay. Defaults to 120s.
	MaxBackoff time.Duration `yaml:"max_backoff" mapstructure:"max_backoff" validate:"gte=0"`

	// RetryStatusCodes lists the statuses that trigger a retry.
	RetryStatusCodes []int `yaml:"retry_status_codes" mapstructure:"retry_status_codes" validate:"dive,gte=100,lte=599"`

	// RetryMethods lists the methods eligible for read and status retries.
	RetryMethods []string `yaml:"retry_methods" mapstructure:"retry_methods" validate:"dive,oneof=DELETE GET HEAD OPTIONS PATCH POST PUT TRACE"`

	// UserAgent is applied to requests that carry none.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`

	// DefaultTimeout is the timeout builders created from this transport
	// start with. Defaults to 300s.
	DefaultTimeout time.Duration `yaml:"default_timeout" mapstructure:"default_timeout" validate:"gte=0"`
}

// DefaultConfig returns three retries with a 0.3 backoff factor on 500,
// 502 and 504 for idempotent methods.
func DefaultConfig() Config {
	return Config{
		Name:             "httpclient",
		MaxRetries:       DefaultMaxRetries,
		BackoffFactor:    DefaultBackoffFactor,
		MaxBackoff:       DefaultMaxBackoff,
		RetryStatusCodes: slices.Clone(resilience.DefaultRetryStatusCodes),
		RetryMethods:     slices.Clone(resilience.DefaultRetryMethods),
		UserAgent:        version.UserAgent(),
		DefaultTimeout:   DefaultTimeout,
	}
}

// ApplyDefaults fills in zero-value fields other than the retry budget
// and backoff factor.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "httpclient"
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.RetryStatusCodes == nil {
		c.RetryStatusCodes = slices.Clone(resilience.DefaultRetryStatusCodes)
	}
	if c.RetryMethods == nil {
		c.RetryMethods = slices.Clone(resilience.DefaultRetryMethods)
	}
	if c.UserAgent == "" {
		c.UserAgent = version.UserAgent()
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = DefaultTimeout
	}
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	return validation.Validate(c)
}

// RetryPolicy returns the retry policy described by c.
func (c *Config) RetryPolicy() resilience.RetryPolicy {
	return resilience.RetryPolicy{
		MaxRetries:    c.MaxRetries,
		BackoffFactor: c.BackoffFactor,
		MaxBackoff:    c.MaxBackoff,
		StatusCodes:   slices.Clone(c.RetryStatusCodes),
		Methods:       slices.Clone(c.RetryMethods),
	}
}

type fileConfig struct {
	Transport Config `mapstructure:"transport"`
}

// LoadConfig reads the "transport" section from the config file and
// environment (HTTPREQ_TRANSPORT_MAX_RETRIES and so on) over DefaultConfig.
func LoadConfig(opts ...config.LoaderOption) (Config, error) {
	// Slices are left nil so that a configured list replaces the default
	// rather than being decoded over it; ApplyDefaults restores them.
	fc := fileConfig{Transport: DefaultConfig()}
	fc.Transport.RetryStatusCodes = nil
	fc.Transport.RetryMethods = nil
	if err := config.Load(&fc, opts...); err != nil {
		return Config{}, err
	}
	cfg := fc.Transport
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
