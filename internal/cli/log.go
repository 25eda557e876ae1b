package cli

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/systemshift/chanhist/internal/identity"
	"github.com/systemshift/chanhist/internal/message"
)

// LogOptions holds flags for the log command.
type LogOptions struct {
	*RootOptions
	OldestFirst bool
	Verify      bool
	Limit       int
}

type logEntry struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Content   string `json:"content"`
	Signer    string `json:"signer,omitempty"`
	Petname   string `json:"petname,omitempty"`
	Status    string `json:"status,omitempty"` // with --verify: verified, unsigned or invalid
}

// Signature states reported by log --verify.
const (
	statusVerified = "verified"
	statusUnsigned = "unsigned"
	statusInvalid  = "invalid"
)

// NewLogCommand creates the log command.
func NewLogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "log <channel>",
		Short: "Print a channel's messages",
		Long: `Print the messages of a channel in history order, newest first
unless --oldest-first is given. Merge commits are not shown and each
message id appears once.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLog(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.OldestFirst, "oldest-first", false, "print the oldest message first")
	cmd.Flags().BoolVar(&opts.Verify, "verify", false, "check message signatures")
	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 0, "print at most n messages (0 = all)")

	return cmd
}

func runLog(cmd *cobra.Command, opts *LogOptions, name string) error {
	f := newFormatter(opts.RootOptions, cmd)
	s, err := openSession(opts.RootOptions)
	if err != nil {
		return f.Fail(err)
	}
	defer s.Close()

	repo, err := s.channel(name)
	if err != nil {
		return f.Fail(err)
	}

	entries := []logEntry{}
	for m, err := range repo.EnumerateMessages(opts.OldestFirst) {
		if err != nil {
			return f.Fail(err)
		}
		entries = append(entries, newLogEntry(m, opts.Verify))
		if opts.Limit > 0 && len(entries) == opts.Limit {
			break
		}
	}

	return f.Result(entries, func(w io.Writer) {
		for _, e := range entries {
			ts := time.UnixMilli(e.Timestamp).UTC().Format(time.RFC3339)
			switch e.Status {
			case "":
				fmt.Fprintf(w, "%s  %s  %s\n", ts, e.ID, e.Content)
			case statusVerified:
				fmt.Fprintf(w, "%s  %s  [%s]  %s\n", ts, e.ID, e.Petname, e.Content)
			default:
				fmt.Fprintf(w, "%s  %s  [%s]  %s\n", ts, e.ID, e.Status, e.Content)
			}
		}
	})
}

func newLogEntry(m message.ChannelMessage, verify bool) logEntry {
	e := logEntry{ID: m.ID, Timestamp: m.Timestamp, Content: string(m.Content)}
	if !verify {
		return e
	}
	did, err := identity.Verify(m)
	switch {
	case err == nil:
		e.Status = statusVerified
		e.Signer = did
		e.Petname = identity.Petname(did)
	case errors.Is(err, identity.ErrUnsigned):
		e.Status = statusUnsigned
	default:
		e.Status = statusInvalid
		e.Signer = did
	}
	return e
}
