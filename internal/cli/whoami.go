package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/systemshift/chanhist/internal/config"
	"github.com/systemshift/chanhist/internal/identity"
)

type whoamiResult struct {
	DID     string `json:"did"`
	Petname string `json:"petname"`
	Created bool   `json:"created"`
}

// NewWhoamiCommand prints the local signing identity, creating it on first
// use.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity used to sign posted messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			conf, err := config.Load(rootOpts.ConfigPath, rootOpts.Verbose)
			if err != nil {
				return f.Fail(WrapExitError(ExitCommandError, "load config", err))
			}
			id, created, err := identity.Load(conf.Identity.Path)
			if err != nil {
				return f.Fail(err)
			}
			res := whoamiResult{DID: id.DID, Petname: identity.Petname(id.DID), Created: created}
			return f.Result(res, func(w io.Writer) {
				fmt.Fprintf(w, "%s (%s)\n", res.DID, res.Petname)
			})
		},
	}
}
