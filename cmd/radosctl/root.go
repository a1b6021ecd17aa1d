package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/objectfs/rados/internal/config"
	"github.com/objectfs/rados/internal/metrics"
	"github.com/objectfs/rados/pkg/errors"
	"github.com/objectfs/rados/pkg/rados"
)

// app carries the state shared by every subcommand of one invocation.
type app struct {
	cfgFile     string
	pool        string
	backendType string
	logLevel    string
	metricsAddr string

	cfg       *config.Configuration
	logger    *slog.Logger
	closeLog  func() error
	backend   *config.Backend
	collector *metrics.Collector
	cluster   *rados.Cluster
	ctx       context.Context
	cancel    context.CancelFunc
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "radosctl",
		Short:         "Inspect and modify a rados cluster",
		Long:          `radosctl talks to a cluster through the rados client. Pools, objects, extended attributes and pool snapshots can be listed, created and removed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				_ = a.close()
				return err
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/rados/rados.yaml)")
	flags.StringVarP(&a.pool, "pool", "p", "", "pool to operate on (overrides cluster.pool)")
	flags.StringVar(&a.backendType, "backend", "", "backend store: memory, badger, sqlite or s3")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	flags.StringVar(&a.metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address while running")

	root.AddCommand(
		a.lspoolsCmd(), a.mkpoolCmd(), a.rmpoolCmd(), a.dfCmd(),
		a.lsCmd(), a.putCmd(), a.getCmd(), a.appendCmd(), a.statCmd(), a.truncateCmd(), a.rmCmd(),
		a.getxattrCmd(), a.setxattrCmd(), a.listxattrCmd(), a.rmxattrCmd(),
		a.mksnapCmd(), a.rmsnapCmd(), a.lssnapCmd(), a.rollbackCmd(),
	)
	return root
}

// open loads configuration, applies flag overrides and connects.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.pool != "" {
		cfg.Cluster.Pool = a.pool
	}
	if a.backendType != "" {
		cfg.Backend.Type = a.backendType
	}
	if a.logLevel != "" {
		cfg.Logging.Level = strings.ToUpper(a.logLevel)
	}
	if a.metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = a.metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	a.logger, a.closeLog, err = cfg.NewLogger()
	if err != nil {
		return err
	}

	if cfg.Cluster.OperationTimeout > 0 {
		a.ctx, a.cancel = context.WithTimeout(cmd.Context(), cfg.Cluster.OperationTimeout)
	} else {
		a.ctx, a.cancel = context.WithCancel(cmd.Context())
	}

	if cfg.Metrics.Enabled {
		a.collector, err = metrics.NewCollector(&cfg.Metrics)
		if err != nil {
			return err
		}
		if err := a.collector.Start(a.ctx); err != nil {
			return err
		}
		a.logger.Info("serving metrics", "address", cfg.Metrics.Address, "path", cfg.Metrics.Path)
	}

	a.backend, err = cfg.OpenBackend(a.ctx, a.logger)
	if err != nil {
		return err
	}
	a.cluster, err = rados.Connect(a.ctx, cfg.ClientOptions(a.backend, a.logger, a.collector))
	return err
}

// close shuts the session down and releases what open acquired. It is
// safe to call more than once.
func (a *app) close() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if a.cluster != nil {
		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Cluster.ShutdownTimeout)
		keep(a.cluster.Shutdown(ctx))
		cancel()
		a.cluster = nil
	}
	if a.backend != nil {
		keep(a.backend.Close())
		a.backend = nil
	}
	if a.collector != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		keep(a.collector.Stop(ctx))
		cancel()
		a.collector = nil
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.closeLog != nil {
		keep(a.closeLog())
		a.closeLog = nil
	}
	return first
}

// run wraps a command body so the session is closed even when it fails.
// cobra skips PersistentPostRunE after an error.
func (a *app) run(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if err := fn(cmd, args); err != nil {
			_ = a.close()
			return err
		}
		return nil
	}
}

// currentPool returns the pool selected by --pool or cluster.pool.
func (a *app) currentPool() (*rados.Pool, error) {
	if a.cfg.Cluster.Pool == "" {
		return nil, errors.NewError(errors.ErrCodeInvalidConfig, "no pool selected; pass --pool or set cluster.pool").
			WithComponent("radosctl")
	}
	return a.cluster.Pool(a.cfg.Cluster.Pool), nil
}

// object resolves name in the current pool.
func (a *app) object(name string) (*rados.Object, error) {
	pool, err := a.currentPool()
	if err != nil {
		return nil, err
	}
	return pool.Object(name), nil
}

// openInput returns the named file or stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	return os.Open(path)
}

// openOutput returns the named file or stdout for "-".
func openOutput(cmd *cobra.Command, path string) (io.WriteCloser, error) {
	if path == "-" {
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
