// Package app assembles the history daemon: the history server, the
// background syncer and the metrics endpoint.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/config"
	"github.com/systemshift/chanhist/internal/peersync"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	WebServer *http.Server
	Registry  *channel.Registry

	syncer *peersync.Syncer
	log    zerolog.Logger
}

func NewApp(conf *config.Config, reg *channel.Registry, server *peersync.Server, syncer *peersync.Syncer, promReg *prometheus.Registry, log zerolog.Logger) *App {
	extra := map[string]http.Handler{}
	if promReg != nil {
		extra["GET /metrics"] = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}
	return &App{
		WebServer: &http.Server{
			Addr:         conf.Addr(),
			Handler:      server.Handler(extra),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: conf.Transport.Timeout,
			IdleTimeout:  60 * time.Second,
		},
		Registry: reg,
		syncer:   syncer,
		log:      log.With().Str("component", "app").Logger(),
	}
}

// Run listens on the configured address and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.WebServer.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.WebServer.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve runs the history server on ln and the background syncer until ctx
// is done or the server fails, then shuts both down.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.log.Info().
		Str("root", a.Registry.Root()).
		Int("channels", len(a.Registry.Channels())).
		Msg("starting chanhist")

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", ln.Addr().String()).Msg("listening for peers")
		if err := a.WebServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	a.syncer.Start()
	defer a.syncer.Stop()

	select {
	case <-ctx.Done():
		a.log.Info().Msg("shutdown signal received")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.WebServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.log.Info().Msg("gracefully stopped")
	return nil
}
