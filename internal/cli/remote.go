package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/systemshift/chanhist/internal/config"
	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/peersync"
)

// NewRemoteCommand groups commands that query a peer without changing local
// state.
func NewRemoteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Inspect a peer's history server",
	}
	cmd.AddCommand(newRemoteListCommand(rootOpts))
	cmd.AddCommand(newRemoteRefsCommand(rootOpts))
	return cmd
}

func newRemoteListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls <peer>",
		Short: "List the channels a peer serves",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			conf, err := config.Load(rootOpts.ConfigPath, rootOpts.Verbose)
			if err != nil {
				return f.Fail(WrapExitError(ExitCommandError, "load config", err))
			}
			t, err := peersync.NewHTTPTransport(conf.Transport.Proxy, conf.Transport.Timeout)
			if err != nil {
				return f.Fail(WrapExitError(ExitCommandError, "transport", err))
			}
			names, err := t.ListRemoteChannels(cmd.Context(), args[0])
			if err != nil {
				return f.Fail(err)
			}
			return f.Result(names, func(w io.Writer) {
				for _, name := range names {
					fmt.Fprintln(w, name)
				}
			})
		},
	}
}

type remoteRef struct {
	Peer string `json:"peer"`
	Head string `json:"head"`
}

func newRemoteRefsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "refs <channel>",
		Short: "Show the last head fetched from each peer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			s, err := openSession(rootOpts)
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			repo, err := s.channel(args[0])
			if err != nil {
				return f.Fail(err)
			}
			peers, err := repo.RemotePeers()
			if err != nil {
				return f.Fail(err)
			}
			refs := make([]remoteRef, 0, len(peers))
			for _, peer := range peers {
				c, ok, err := repo.RemoteRef(peer)
				if err != nil {
					return f.Fail(err)
				}
				if ok {
					refs = append(refs, remoteRef{Peer: peer, Head: dag.CIDToFilename(c)})
				}
			}
			return f.Result(refs, func(w io.Writer) {
				for _, r := range refs {
					fmt.Fprintf(w, "%s\t%s\n", r.Peer, r.Head)
				}
			})
		},
	}
}
