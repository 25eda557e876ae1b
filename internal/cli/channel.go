package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/systemshift/chanhist/internal/channel"
)

type channelInfo struct {
	Name string `json:"name"`
	Head string `json:"head,omitempty"`
}

// NewChannelCommand groups the channel management subcommands.
func NewChannelCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Create, list and remove local channels",
	}
	cmd.AddCommand(newChannelCreateCommand(rootOpts))
	cmd.AddCommand(newChannelListCommand(rootOpts))
	cmd.AddCommand(newChannelRemoveCommand(rootOpts))
	return cmd
}

func newChannelCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create an empty channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			s, err := openSession(rootOpts)
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			repo, err := s.reg.CreateChannel(args[0])
			switch {
			case errors.Is(err, channel.ErrChannelAlreadyExists), errors.Is(err, channel.ErrInvalidChannelName):
				return f.Fail(WrapExitError(ExitCommandError, "create channel", err))
			case err != nil:
				return f.Fail(err)
			}
			f.VerboseLog("created %s", repo.Path())
			return f.Result(channelInfo{Name: repo.Name()}, func(w io.Writer) {
				fmt.Fprintf(w, "created channel %s\n", repo.Name())
			})
		},
	}
}

func newChannelListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List local channels and their heads",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			s, err := openSession(rootOpts)
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			infos := []channelInfo{}
			for _, name := range s.reg.Channels() {
				repo, err := s.reg.Channel(name)
				if err != nil {
					continue
				}
				infos = append(infos, channelInfo{Name: name, Head: headString(repo.TopOfTree())})
			}
			return f.Result(infos, func(w io.Writer) {
				for _, info := range infos {
					head := info.Head
					if head == "" {
						head = "(empty)"
					}
					fmt.Fprintf(w, "%s\t%s\n", info.Name, head)
				}
			})
		},
	}
}

func newChannelRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Delete a channel and its history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			s, err := openSession(rootOpts)
			if err != nil {
				return f.Fail(err)
			}
			defer s.Close()

			err = s.reg.RemoveChannel(args[0])
			switch {
			case errors.Is(err, channel.ErrChannelNotFound):
				return f.Fail(WrapExitError(ExitCommandError, "remove channel", err))
			case err != nil:
				return f.Fail(err)
			}
			return f.Result(channelInfo{Name: args[0]}, func(w io.Writer) {
				fmt.Fprintf(w, "removed channel %s\n", args[0])
			})
		},
	}
}
