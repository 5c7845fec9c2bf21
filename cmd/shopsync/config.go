package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	shopsync "github.com/goliatone/go-shopsync"
	promadapter "github.com/goliatone/go-shopsync/adapters/prometheus"
	"github.com/goliatone/go-shopsync/adapters/zaplog"
	"github.com/goliatone/go-shopsync/core"
)

const envPrefix = "SHOPSYNC"

// globalFlags feed the runtime layer of the config stack. Zero values leave
// the environment and defaults in charge.
type globalFlags struct {
	driver    string
	dsn       string
	logLevel  string
	logFormat string
	addr      string
}

func (f *globalFlags) bind(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&f.driver, "driver", "", "persistence driver (sqlite, postgres, memory)")
	cmd.PersistentFlags().StringVar(&f.dsn, "dsn", "", "persistence data source name")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&f.logFormat, "log-format", zaplog.FormatJSON, "log format (json, console)")
	cmd.PersistentFlags().StringVar(&f.addr, "addr", "", "http listen address")
}

func (f *globalFlags) runtimeConfig() core.Config {
	var cfg core.Config
	cfg.Persistence.Driver = f.driver
	cfg.Persistence.DSN = f.dsn
	cfg.LogLevel = f.logLevel
	cfg.HTTP.Addr = f.addr
	return cfg
}

// loadConfig resolves defaults < SHOPSYNC_* environment < flags.
func loadConfig(ctx context.Context, flags *globalFlags) (core.Config, error) {
	provider := core.NewCfgxConfigProvider(core.NewEnvRawConfigLoader(envPrefix))
	return core.ResolveConfig(ctx, provider, core.GoOptionsResolver{}, flags.runtimeConfig())
}

func newLogger(cfg core.Config, flags *globalFlags) (*zaplog.Provider, error) {
	return zaplog.New(zaplog.Config{Level: cfg.LogLevel, Format: flags.logFormat})
}

func newMetrics() (*prometheus.Registry, *promadapter.Recorder) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registry, promadapter.NewRecorder(registry)
}

// session is one command's runtime plus the resources it must release.
type session struct {
	runtime *shopsync.Runtime
	logger  *zaplog.Provider
	closers []func() error
}

func openSession(ctx context.Context, flags *globalFlags, migrate bool) (*session, error) {
	cfg, err := loadConfig(ctx, flags)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg, flags)
	if err != nil {
		return nil, err
	}
	// zap reports EINVAL syncing a terminal stdout; the flush itself is best effort.
	s := &session{logger: logger, closers: []func() error{func() error { _ = logger.Sync(); return nil }}}

	opts := []shopsync.Option{shopsync.WithLoggerProvider(logger)}
	registry, recorder := newMetrics()
	opts = append(opts, shopsync.WithMetrics(recorder, registry))

	if !isMemoryDriver(cfg.Persistence.Driver) {
		client, err := openPersistence(cfg.Persistence)
		if err != nil {
			_ = s.close(ctx)
			return nil, err
		}
		s.closers = append(s.closers, client.Close)
		if migrate {
			if err := runMigrations(ctx, client, cfg.Persistence.Driver); err != nil {
				_ = s.close(ctx)
				return nil, err
			}
		}
		opts = append(opts, shopsync.WithPersistence(client))
	}

	rt, err := shopsync.NewRuntime(cfg, opts...)
	if err != nil {
		_ = s.close(ctx)
		return nil, err
	}
	s.runtime = rt
	return s, nil
}

func (s *session) close(ctx context.Context) error {
	var firstErr error
	if s.runtime != nil {
		if err := s.runtime.Close(ctx); err != nil {
			firstErr = err
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
