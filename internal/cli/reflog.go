package cli

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/systemshift/chanhist/internal/dag"
)

// NewReflogCommand creates the reflog command.
func NewReflogCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reflog <channel>",
		Short: "Show how a channel's head moved, newest first",
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
			entries, err := repo.Reflog()
			if err != nil {
				return f.Fail(err)
			}
			if entries == nil {
				entries = []dag.ReflogEntry{}
			}
			slices.Reverse(entries)
			return f.Result(entries, func(w io.Writer) {
				for _, e := range entries {
					fmt.Fprintf(w, "%s  %s  %s\n", shortCID(e.New), e.Time.UTC().Format(time.RFC3339), e.Reason)
				}
			})
		},
	}
}
