package peersync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/systemshift/chanhist/internal/channel"
)

// Syncer periodically synchronizes every local channel with every
// configured peer in the background.
type Syncer struct {
	registry *channel.Registry
	sync     *Synchronizer
	peers    []string
	interval time.Duration
	log      zerolog.Logger

	cancel context.CancelFunc
	stopCh chan struct{}
	doneCh chan struct{}
}

// Summary counts the outcomes of one pass.
type Summary struct {
	Synced int
	Failed int
}

// NewSyncer creates a syncer that runs at the given interval.
func NewSyncer(reg *channel.Registry, s *Synchronizer, peers []string, interval time.Duration, log zerolog.Logger) *Syncer {
	return &Syncer{
		registry: reg,
		sync:     s,
		peers:    peers,
		interval: interval,
		log:      log.With().Str("component", "syncer").Logger(),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background goroutine.
func (s *Syncer) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				if len(s.peers) == 0 {
					continue
				}
				sum := s.RunOnce(ctx)
				if sum.Synced > 0 || sum.Failed > 0 {
					s.log.Info().Int("synced", sum.Synced).Int("failed", sum.Failed).Msg("sync pass")
				}
			}
		}
	}()
}

// Stop cancels any sync in flight and waits for the goroutine to finish.
func (s *Syncer) Stop() {
	if s.cancel == nil {
		return
	}
	close(s.stopCh)
	s.cancel()
	<-s.doneCh
}

// RunOnce synchronizes every channel with every peer once. Failures are
// logged and counted, never fatal.
func (s *Syncer) RunOnce(ctx context.Context) Summary {
	var sum Summary
	for _, name := range s.registry.Channels() {
		repo, err := s.registry.Channel(name)
		if err != nil {
			continue // removed since listing
		}
		for _, peer := range s.peers {
			if ctx.Err() != nil {
				return sum
			}
			_, err := s.sync.Sync(ctx, repo, peer)
			switch {
			case err == nil:
				sum.Synced++
			case errors.Is(err, channel.ErrChannelNotFound):
			default:
				sum.Failed++
			}
		}
	}
	return sum
}
