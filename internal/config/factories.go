package config

import (
	"context"
	"io"
	"log/slog"

	"github.com/objectfs/rados/internal/kv"
	"github.com/objectfs/rados/internal/kv/badger"
	"github.com/objectfs/rados/internal/kv/memory"
	"github.com/objectfs/rados/internal/kv/s3"
	"github.com/objectfs/rados/internal/kv/sqlite"
	"github.com/objectfs/rados/internal/metrics"
	"github.com/objectfs/rados/internal/native/sim"
	"github.com/objectfs/rados/pkg/errors"
	"github.com/objectfs/rados/pkg/rados"
	"github.com/objectfs/rados/pkg/utils"
)

// BadgerConfig decodes the badger section.
func (b BackendConfig) BadgerConfig() (badger.Config, error) {
	var cfg badger.Config
	err := decodeSection(BackendBadger, b.Badger, &cfg)
	return cfg, err
}

// SQLiteConfig decodes the sqlite section. An empty path keeps the
// database in memory.
func (b BackendConfig) SQLiteConfig() (sqlite.Config, error) {
	var cfg sqlite.Config
	if err := decodeSection(BackendSQLite, b.SQLite, &cfg); err != nil {
		return cfg, err
	}
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	return cfg, nil
}

// BuildStore opens the persistence layer selected by Backend.Type.
func (c *Configuration) BuildStore(ctx context.Context, logger *slog.Logger) (kv.Store, error) {
	switch c.Backend.Type {
	case BackendMemory, "":
		return memory.New(), nil
	case BackendBadger:
		cfg, err := c.Backend.BadgerConfig()
		if err != nil {
			return nil, err
		}
		return badger.Open(ctx, cfg)
	case BackendSQLite:
		cfg, err := c.Backend.SQLiteConfig()
		if err != nil {
			return nil, err
		}
		return sqlite.Open(ctx, cfg)
	case BackendS3:
		cfg, err := c.Backend.S3Config()
		if err != nil {
			return nil, err
		}
		return s3.Open(ctx, cfg, logger)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unknown backend type: %s", c.Backend.Type).
			WithComponent(component).
			WithContext("field", "backend.type")
	}
}

// Backend is an opened simulated cluster together with its store.
type Backend struct {
	*sim.Backend
	store kv.Store
}

// Close stops the simulated cluster and then closes its store.
func (b *Backend) Close() error {
	err := b.Backend.Close()
	if cerr := b.store.Close(); err == nil {
		err = cerr
	}
	return err
}

// OpenBackend opens the store and starts a simulated cluster over it.
func (c *Configuration) OpenBackend(ctx context.Context, logger *slog.Logger) (*Backend, error) {
	logger = utils.OrDiscard(logger)
	store, err := c.BuildStore(ctx, logger)
	if err != nil {
		return nil, err
	}
	b := sim.New(sim.Config{
		Store:         store,
		Workers:       c.Backend.Workers,
		Latency:       c.Backend.Latency,
		PageSize:      c.Backend.PageSize,
		MaxObjectSize: c.Backend.MaxObjectSize,
		AllowedUsers:  c.Backend.AllowedUsers,
		Logger:        logger.With("component", "sim"),
	})
	logger.Debug("backend opened", "type", c.Backend.Type)
	return &Backend{Backend: b, store: store}, nil
}

// ClientOptions returns the options for rados.Connect.
func (c *Configuration) ClientOptions(driver *Backend, logger *slog.Logger, collector *metrics.Collector) rados.Options {
	return rados.Options{
		Driver:      driver,
		ClusterName: c.Cluster.Name,
		User:        c.Cluster.User,
		ConfigFile:  c.Cluster.ConfigFile,
		Logger:      logger,
		Metrics:     collector,
		Retry:       c.Retry,
	}
}

// NewLogger builds the logger described by the logging section. The
// returned closer releases a log file when one was opened.
func (c *Configuration) NewLogger() (*slog.Logger, func() error, error) {
	level, err := utils.ParseLogLevel(c.Logging.Level)
	if err != nil {
		return nil, nil, invalid("logging.level", err.Error())
	}
	out, closer, err := utils.OpenLogOutput(c.Logging.Output)
	if err != nil {
		return nil, nil, errors.NewError(errors.ErrCodeInvalidConfig, "failed to open log output").
			WithComponent(component).
			WithContext("path", c.Logging.Output).
			WithCause(err)
	}
	logger, err := utils.NewLogger(level, c.Logging.Format, out)
	if err != nil {
		_ = closer()
		return nil, nil, invalid("logging.format", err.Error())
	}
	return logger, closer, nil
}

var _ io.Closer = (*Backend)(nil)
