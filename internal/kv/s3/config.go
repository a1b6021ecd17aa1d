package s3

import (
	"time"

	"github.com/objectfs/rados/internal/circuit"
)

// Config represents S3 store configuration
type Config struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket" validate:"required"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix"`
	Region          string `mapstructure:"region" yaml:"region"`
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	SessionToken    string `mapstructure:"session_token" yaml:"session_token"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`

	MaxRetries     int           `mapstructure:"max_retries" yaml:"max_retries"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`

	CircuitBreaker circuit.Config `mapstructure:"circuit_breaker" yaml:"circuit_breaker"`
}

// NewDefaultConfig returns a configuration with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Region:         "us-east-1",
		MaxRetries:     3,
		RequestTimeout: 30 * time.Second,
		CircuitBreaker: circuit.Config{
			MaxRequests:         1,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ConsecutiveFailures: 5,
		},
	}
}

// withDefaults fills zero fields from NewDefaultConfig.
func (c Config) withDefaults() Config {
	d := NewDefaultConfig()
	if c.Region == "" {
		c.Region = d.Region
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.CircuitBreaker.ConsecutiveFailures == 0 && c.CircuitBreaker.ReadyToTrip == nil {
		c.CircuitBreaker.ConsecutiveFailures = d.CircuitBreaker.ConsecutiveFailures
	}
	return c
}
