package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/systemshift/chanhist/internal/channel"
	"github.com/systemshift/chanhist/internal/dag"
	"github.com/systemshift/chanhist/internal/identity"
	"github.com/systemshift/chanhist/internal/message"
)

// PostOptions holds flags for the post command.
type PostOptions struct {
	*RootOptions
	ID       string
	Unsigned bool
}

type postResult struct {
	Channel string `json:"channel"`
	ID      string `json:"id"`
	Head    string `json:"head"`
	Signer  string `json:"signer,omitempty"`
}

// NewPostCommand creates the post command.
func NewPostCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PostOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "post <channel> <text>...",
		Short: "Append a message to a channel",
		Long: `Append a message to a channel's history.

The message gets a time-ordered UUID unless --id is given and is signed
with the local identity unless --unsigned is set.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPost(cmd, opts, args[0], strings.Join(args[1:], " "))
		},
	}

	cmd.Flags().StringVar(&opts.ID, "id", "", "message id (default: new UUIDv7)")
	cmd.Flags().BoolVar(&opts.Unsigned, "unsigned", false, "do not sign the message")

	return cmd
}

func runPost(cmd *cobra.Command, opts *PostOptions, name, text string) error {
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

	id := opts.ID
	if id == "" {
		u, err := uuid.NewV7()
		if err != nil {
			return f.Fail(fmt.Errorf("generate message id: %w", err))
		}
		id = u.String()
	}
	m := message.ChannelMessage{
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Content:   []byte(text),
	}

	var signer string
	if !opts.Unsigned {
		ident, created, err := identity.Load(s.conf.Identity.Path)
		if err != nil {
			return f.Fail(WrapExitError(ExitCommandError, "load identity", err))
		}
		if created {
			f.VerboseLog("generated identity %s at %s", ident.DID, s.conf.Identity.Path)
		}
		if m, err = ident.Sign(m); err != nil {
			return f.Fail(err)
		}
		signer = ident.DID
	}

	head, err := repo.AppendMessage(cmd.Context(), m)
	switch {
	case errors.Is(err, channel.ErrDuplicateMessage), errors.Is(err, channel.ErrInvalidMessage):
		return f.Fail(WrapExitError(ExitFailure, "append", err))
	case err != nil:
		return f.Fail(err)
	}

	res := postResult{Channel: repo.Name(), ID: id, Head: dag.CIDToFilename(head), Signer: signer}
	return f.Result(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s\n", res.ID, res.Head)
	})
}
