//go:build wireinject
// +build wireinject

package di

import (
	wire "github.com/google/wire"

	"github.com/systemshift/chanhist/internal/app"
	"github.com/systemshift/chanhist/internal/peersync"
)

func InitApp(flags *app.Flags) (*app.App, func(), error) {

	wire.Build(
		app.NewConfigProvider,
		app.NewLogProvider,
		app.NewZerologProvider,
		app.NewPrometheusRegistry,
		app.NewMetricsProvider,
		app.NewCacheProvider,
		app.NewRegistryProvider,
		app.NewTransportProvider,
		wire.Bind(new(peersync.Transport), new(*peersync.HTTPTransport)),
		app.NewSynchronizerProvider,
		app.NewSyncerProvider,
		app.NewServerProvider,
		app.NewApp,
	)

	return nil, nil, nil
}
