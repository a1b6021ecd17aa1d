package config

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/objectfs/rados/internal/kv/s3"
	"github.com/objectfs/rados/internal/metrics"
	"github.com/objectfs/rados/pkg/errors"
	"github.com/objectfs/rados/pkg/retry"
)

// EnvPrefix prefixes environment overrides, e.g. RADOS_CLUSTER_USER.
const EnvPrefix = "RADOS"

// Backend types.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendS3     = "s3"
)

const component = "config"

// Configuration represents the complete client configuration
type Configuration struct {
	Cluster ClusterConfig  `yaml:"cluster" mapstructure:"cluster"`
	Backend BackendConfig  `yaml:"backend" mapstructure:"backend"`
	Logging LoggingConfig  `yaml:"logging" mapstructure:"logging"`
	Metrics metrics.Config `yaml:"metrics" mapstructure:"metrics"`
	Retry   retry.Config   `yaml:"retry" mapstructure:"retry"`
}

// ClusterConfig identifies the session to open.
type ClusterConfig struct {
	Name string `yaml:"name" mapstructure:"name" validate:"required"`
	User string `yaml:"user" mapstructure:"user" validate:"required"`
	// ConfigFile is handed to the cluster handle before connecting.
	ConfigFile string `yaml:"config_file" mapstructure:"config_file"`
	// Pool is the default pool for commands that take one.
	Pool string `yaml:"pool" mapstructure:"pool"`
	// OperationTimeout bounds each command. Zero means no limit.
	OperationTimeout time.Duration `yaml:"operation_timeout" mapstructure:"operation_timeout" validate:"gte=0"`
	// ShutdownTimeout bounds the wait for in-flight operations on exit.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// BackendConfig selects and configures the simulated cluster and its
// persistence. Only the section matching Type is used.
type BackendConfig struct {
	Type          string        `yaml:"type" mapstructure:"type" validate:"required,oneof=memory badger sqlite s3"`
	Workers       int           `yaml:"workers" mapstructure:"workers" validate:"gte=0"`
	Latency       time.Duration `yaml:"latency" mapstructure:"latency" validate:"gte=0"`
	PageSize      int           `yaml:"page_size" mapstructure:"page_size" validate:"gte=0"`
	// MaxObjectSize bounds object data in bytes; 0 keeps the 128 MiB default.
	MaxObjectSize uint64        `yaml:"max_object_size" mapstructure:"max_object_size"`
	AllowedUsers  []string      `yaml:"allowed_users" mapstructure:"allowed_users"`

	Badger map[string]any `yaml:"badger,omitempty" mapstructure:"badger"`
	SQLite map[string]any `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
	S3     map[string]any `yaml:"s3,omitempty" mapstructure:"s3"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`
	Format string `yaml:"format" mapstructure:"format" validate:"required,oneof=text json"`
	// Output is stderr, stdout or a file path.
	Output string `yaml:"output" mapstructure:"output"`
}

var validate = validator.New()

// NewDefault returns a configuration with sensible defaults
func NewDefault() *Configuration {
	m := metrics.DefaultConfig()
	m.Enabled = false
	return &Configuration{
		Cluster: ClusterConfig{
			Name:            "ceph",
			User:            "client.admin",
			ShutdownTimeout: 30 * time.Second,
		},
		Backend: BackendConfig{
			Type:     BackendMemory,
			Workers:  4,
			PageSize: 64,
		},
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Metrics: *m,
		Retry:   retry.DefaultConfig(),
	}
}

// Load reads configuration from path, the environment and defaults, in
// that order of precedence from lowest to highest: defaults, file,
// environment. An empty path searches the default locations and tolerates
// a missing file.
func Load(path string) (*Configuration, error) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile merges the file at filename and RADOS_* environment
// variables over c.
func (c *Configuration) LoadFromFile(filename string) error {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, c)

	if filename != "" {
		v.SetConfigFile(filename)
	} else {
		v.AddConfigPath(DefaultConfigDir())
		v.AddConfigPath(".")
		v.SetConfigName("rados")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if filename == "" && stderrors.As(err, &notFound) {
			err = nil
		}
		if err != nil {
			return errors.NewError(errors.ErrCodeConfigLoad, "failed to read config file").
				WithComponent(component).
				WithContext("path", filename).
				WithCause(err)
		}
	}

	if err := v.Unmarshal(c); err != nil {
		return errors.NewError(errors.ErrCodeConfigLoad, "failed to parse config file").
			WithComponent(component).
			WithContext("path", v.ConfigFileUsed()).
			WithCause(err)
	}
	return nil
}

// setDefaults registers every key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, c *Configuration) {
	v.SetDefault("cluster.name", c.Cluster.Name)
	v.SetDefault("cluster.user", c.Cluster.User)
	v.SetDefault("cluster.config_file", c.Cluster.ConfigFile)
	v.SetDefault("cluster.pool", c.Cluster.Pool)
	v.SetDefault("cluster.operation_timeout", c.Cluster.OperationTimeout)
	v.SetDefault("cluster.shutdown_timeout", c.Cluster.ShutdownTimeout)

	v.SetDefault("backend.type", c.Backend.Type)
	v.SetDefault("backend.workers", c.Backend.Workers)
	v.SetDefault("backend.latency", c.Backend.Latency)
	v.SetDefault("backend.page_size", c.Backend.PageSize)
	v.SetDefault("backend.max_object_size", c.Backend.MaxObjectSize)
	v.SetDefault("backend.allowed_users", c.Backend.AllowedUsers)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.format", c.Logging.Format)
	v.SetDefault("logging.output", c.Logging.Output)

	v.SetDefault("metrics.enabled", c.Metrics.Enabled)
	v.SetDefault("metrics.address", c.Metrics.Address)
	v.SetDefault("metrics.path", c.Metrics.Path)
	v.SetDefault("metrics.namespace", c.Metrics.Namespace)
	v.SetDefault("metrics.subsystem", c.Metrics.Subsystem)

	v.SetDefault("retry.max_attempts", c.Retry.MaxAttempts)
	v.SetDefault("retry.initial_delay", c.Retry.InitialDelay)
	v.SetDefault("retry.max_delay", c.Retry.MaxDelay)
	v.SetDefault("retry.multiplier", c.Retry.Multiplier)
	v.SetDefault("retry.jitter", c.Retry.Jitter)
}

func (c *Configuration) normalize() {
	c.Logging.Level = strings.ToUpper(c.Logging.Level)
	c.Logging.Format = strings.ToLower(c.Logging.Format)
	c.Backend.Type = strings.ToLower(c.Backend.Type)
}

// SaveToFile saves the configuration to a YAML file
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to marshal config").
			WithComponent(component).WithCause(err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0750); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to create config directory").
			WithComponent(component).WithContext("path", filename).WithCause(err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return errors.NewError(errors.ErrCodeConfigSave, "failed to write config file").
			WithComponent(component).WithContext("path", filename).WithCause(err)
	}

	return nil
}

// Validate validates the configuration
func (c *Configuration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return validationError(err)
	}

	switch c.Backend.Type {
	case BackendBadger:
		bc, err := c.Backend.BadgerConfig()
		if err != nil {
			return err
		}
		if bc.Path == "" && !bc.InMemory {
			return invalid("backend.badger.path", "path is required unless in_memory is set")
		}
	case BackendSQLite:
		if _, err := c.Backend.SQLiteConfig(); err != nil {
			return err
		}
	case BackendS3:
		sc, err := c.Backend.S3Config()
		if err != nil {
			return err
		}
		if err := validate.Struct(sc); err != nil {
			return validationError(err)
		}
	}

	if c.Metrics.Enabled && c.Metrics.Address == "" {
		return invalid("metrics.address", "address is required when metrics are enabled")
	}
	if c.Retry.MaxAttempts < 0 {
		return invalid("retry.max_attempts", "must not be negative")
	}
	return nil
}

func invalid(field, msg string) error {
	return errors.Newf(errors.ErrCodeConfigValidation, "%s: %s", field, msg).
		WithComponent(component).
		WithContext("field", field)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		e := verrs[0]
		return errors.Newf(errors.ErrCodeConfigValidation, "%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value()).
			WithComponent(component).
			WithContext("field", e.Namespace()).
			WithCause(err)
	}
	return errors.NewError(errors.ErrCodeConfigValidation, "invalid configuration").
		WithComponent(component).WithCause(err)
}

// decodeSection decodes a backend section into out, accepting duration
// strings such as "30s".
func decodeSection(name string, in map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err == nil {
		err = dec.Decode(in)
	}
	if err != nil {
		return errors.NewError(errors.ErrCodeConfigValidation, fmt.Sprintf("invalid backend.%s section", name)).
			WithComponent(component).
			WithContext("field", "backend."+name).
			WithCause(err)
	}
	return nil
}

// S3Config decodes the s3 section over the S3 store defaults.
func (b BackendConfig) S3Config() (s3.Config, error) {
	cfg := *s3.NewDefaultConfig()
	err := decodeSection(BackendS3, b.S3, &cfg)
	return cfg, err
}

// DefaultConfigDir returns $XDG_CONFIG_HOME/rados, falling back to
// ~/.config/rados and then the working directory.
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rados")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "rados")
}
