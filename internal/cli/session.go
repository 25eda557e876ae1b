package cli

import (
	"errors"
	"fmt"

	gocid "github.com/ipfs/go-cid"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/config"
	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/logging"
	"github.com/systemshift/chanhist/internal/metrics"
)

// session is the state shared by commands working on the local store.
type session struct {
	conf *config.Config
	log  *logging.Logger
	reg  *channel.Registry
}

func openSession(opts *RootOptions) (*session, error) {
	conf, err := config.Load(opts.ConfigPath, opts.Verbose)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load config", err)
	}
	log, err := logging.New(conf)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "init logger", err)
	}
	var cache *dag.CommitCache
	if conf.Cache.Enabled {
		cache = dag.NewCommitCache(conf.Cache.Size, metrics.Noop())
	}
	reg, err := channel.OpenRegistry(conf.Storage.Root, channel.Options{
		Logger: log.Logger,
		Cache:  cache,
	})
	if err != nil {
		_ = log.Close()
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return &session{conf: conf, log: log, reg: reg}, nil
}

func (s *session) Close() {
	_ = s.log.Close()
}

// channel returns the named repository, mapping a missing channel to a
// command error.
func (s *session) channel(name string) (*channel.Repository, error) {
	repo, err := s.reg.Channel(name)
	if errors.Is(err, channel.ErrChannelNotFound) {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("channel %q", name), err)
	}
	return repo, err
}

func headString(c gocid.Cid, ok bool) string {
	if !ok {
		return ""
	}
	return dag.CIDToFilename(c)
}
