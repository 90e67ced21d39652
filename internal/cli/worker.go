package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"folio-core/internal/app"
)

func newWorkerCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run job workers, the view-sync scheduler and event subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.NewBuilder(cfg).WithDefaults(o.version).Build(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := o.output(cmd)
			out.Info("worker started (version %s)", o.version)
			if err := a.Run(ctx); err != nil {
				return err
			}
			out.Success("worker stopped")
			return nil
		},
	}
}
