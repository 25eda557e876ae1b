package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	chfuse "github.com/systemshift/chanhist/internal/fuse"
)

// NewMountCommand creates the mount command.
func NewMountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mount <mountpoint>",
		Short: "Mount a read-only view of the local channels",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			mountpoint := args[0]
			if err := os.MkdirAll(mountpoint, 0755); err != nil {
				return WrapExitError(ExitCommandError, "create mountpoint", err)
			}
			server, err := chfuse.MountFS(mountpoint, s.reg, rootOpts.Verbose)
			if err != nil {
				return fmt.Errorf("mount: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				s.log.Info().Msg("unmounting")
				_ = server.Unmount()
			}()

			s.log.Info().Str("mountpoint", mountpoint).Int("pid", os.Getpid()).Msg("mounted")
			server.Wait()
			return nil
		},
	}
}
