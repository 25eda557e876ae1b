package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/systemshift/chanhist/internal/app"
	"github.com/systemshift/chanhist/internal/di"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve channel histories to peers and sync in the background",
		Long: `Run the history server on server.host:server.port. Every
sync.interval each local channel is reconciled with each peer in
sync.peers. /metrics is served when metrics.enabled is set.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, cleanup, err := di.InitApp(&app.Flags{
				ConfigPath: rootOpts.ConfigPath,
				Debug:      rootOpts.Verbose,
			})
			if err != nil {
				return WrapExitError(ExitCommandError, "init", err)
			}
			defer cleanup()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(ctx)
		},
	}
}
