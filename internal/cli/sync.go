package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/metrics"
	"github.com/systemshift/chanhist/internal/peersync"
)

type syncResult struct {
	Channel string `json:"channel"`
	Peer    string `json:"peer"`
	Outcome string `json:"outcome"`
	Fetched int    `json:"fetched"`
	Head    string `json:"head,omitempty"`
	Error   string `json:"error,omitempty"`
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <peer> [channel]...",
		Short: "Reconcile channels with a peer",
		Long: `Fetch the peer's history of each named channel, or of every local
channel when none is named, and merge it into the local history.

The peer is a host:port or URL of another chanhist server. Requests go
through transport.proxy when it is configured.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, args[0], args[1:])
		},
	}
}

func runSync(cmd *cobra.Command, opts *RootOptions, peer string, names []string) error {
	f := newFormatter(opts, cmd)
	s, err := openSession(opts)
	if err != nil {
		return f.Fail(err)
	}
	defer s.Close()

	t, err := peersync.NewHTTPTransport(s.conf.Transport.Proxy, s.conf.Transport.Timeout)
	if err != nil {
		return f.Fail(WrapExitError(ExitCommandError, "transport", err))
	}
	syncer := peersync.NewSynchronizer(t, s.conf.Transport.Timeout, s.log.Logger, metrics.Noop())

	if len(names) == 0 {
		names = s.reg.Channels()
	}
	results := make([]syncResult, 0, len(names))
	failed := 0
	for _, name := range names {
		repo, err := s.channel(name)
		if err != nil {
			return f.Fail(err)
		}
		f.VerboseLog("syncing %s with %s", name, peer)
		res, err := syncer.Sync(cmd.Context(), repo, peer)
		r := syncResult{Channel: name, Peer: peer, Outcome: res.Outcome, Fetched: res.Fetched}
		if res.Head.Defined() {
			r.Head = dag.CIDToFilename(res.Head)
		}
		if err != nil {
			r.Outcome = metrics.OutcomeError
			r.Error = err.Error()
			failed++
		}
		results = append(results, r)
	}

	if err := f.Result(results, func(w io.Writer) {
		for _, r := range results {
			if r.Error != "" {
				fmt.Fprintf(w, "%s: %s\n", r.Channel, r.Error)
				continue
			}
			fmt.Fprintf(w, "%s: %s, %d new objects, head %s\n", r.Channel, r.Outcome, r.Fetched, shortCID(r.Head))
		}
	}); err != nil {
		return err
	}
	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d channels failed to sync", failed, len(results)))
	}
	return nil
}

func shortCID(s string) string {
	if s == "" {
		return "(empty)"
	}
	if len(s) > 16 {
		return s[len(s)-12:]
	}
	return s
}
