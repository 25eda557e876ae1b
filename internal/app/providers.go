package app

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/config"
	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/logging"
	"github.com/systemshift/chanhist/internal/metrics"
	"github.com/systemshift/chanhist/internal/peersync"
)

// Flags are the command line values the providers start from.
type Flags struct {
	ConfigPath string
	Debug      bool
}

func NewConfigProvider(flags *Flags) (*config.Config, error) {
	return config.Load(flags.ConfigPath, flags.Debug)
}

// NewLogProvider returns the process logger and a cleanup closing its file.
func NewLogProvider(conf *config.Config) (*logging.Logger, func(), error) {
	l, err := logging.New(conf)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { _ = l.Close() }, nil
}

func NewZerologProvider(l *logging.Logger) zerolog.Logger {
	return l.Logger
}

// NewPrometheusRegistry returns nil when metrics are disabled.
func NewPrometheusRegistry(conf *config.Config) *prometheus.Registry {
	if !conf.Metrics.Enabled {
		return nil
	}
	return prometheus.NewRegistry()
}

func NewMetricsProvider(reg *prometheus.Registry) metrics.Recorder {
	if reg == nil {
		return metrics.Noop()
	}
	return metrics.New(reg)
}

// NewCacheProvider returns nil, a disabled cache, when caching is off.
func NewCacheProvider(conf *config.Config, rec metrics.Recorder) *dag.CommitCache {
	if !conf.Cache.Enabled {
		return nil
	}
	return dag.NewCommitCache(conf.Cache.Size, rec)
}

func NewRegistryProvider(conf *config.Config, log zerolog.Logger, cache *dag.CommitCache, rec metrics.Recorder) (*channel.Registry, error) {
	return channel.OpenRegistry(conf.Storage.Root, channel.Options{
		Logger:  log,
		Cache:   cache,
		Metrics: rec,
	})
}

func NewTransportProvider(conf *config.Config) (*peersync.HTTPTransport, error) {
	return peersync.NewHTTPTransport(conf.Transport.Proxy, conf.Transport.Timeout)
}

func NewSynchronizerProvider(conf *config.Config, t peersync.Transport, log zerolog.Logger, rec metrics.Recorder) *peersync.Synchronizer {
	return peersync.NewSynchronizer(t, conf.Transport.Timeout, log, rec)
}

func NewSyncerProvider(conf *config.Config, reg *channel.Registry, s *peersync.Synchronizer, log zerolog.Logger) *peersync.Syncer {
	return peersync.NewSyncer(reg, s, conf.Sync.Peers, conf.Sync.Interval, log)
}

func NewServerProvider(reg *channel.Registry, log zerolog.Logger, rec metrics.Recorder) *peersync.Server {
	return peersync.NewServer(reg, log, rec)
}
