package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"folio-core/internal/app"
	"folio-core/internal/queue"
)

// inspector 只需要 Redis
func (o *rootOptions) inspector(cmd *cobra.Command) (*queue.Inspector, func(), error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	a, err := o.build(cmd.Context(), cfg, &app.RedisComponent{})
	if err != nil {
		return nil, nil, err
	}
	return queue.NewInspector(a.Deps().Gateway, cfg.Cache.Prefix), func() { _ = a.Close() }, nil
}

func newQueueCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and repair job queues (views, view-sync, images)",
	}
	cmd.AddCommand(newQueueCountsCmd(o), newQueueFailedCmd(o), newQueueRetryCmd(o))
	return cmd
}

func newQueueCountsCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "counts <queue>",
		Short: "Show job counts per state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			insp, cleanup, err := o.inspector(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			c, err := insp.Counts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := o.output(cmd)
			out.Plain("%s", colorBold(args[0]))
			out.KeyValue("waiting", c.Waiting)
			out.KeyValue("active", c.Active)
			out.KeyValue("delayed", c.Delayed)
			out.KeyValue("failed", c.Failed)
			out.KeyValue("completed", c.Completed)
			return nil
		},
	}
}

func newQueueFailedCmd(o *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "failed <queue>",
		Short: "List the most recent failed jobs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			insp, cleanup, err := o.inspector(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			recs, err := insp.Failed(cmd.Context(), args[0], limit)
			if err != nil {
				return err
			}
			out := o.output(cmd)
			if len(recs) == 0 {
				out.Info("no failed jobs in %s", args[0])
				return nil
			}
			t := NewTable("ID", "NAME", "ATTEMPTS", "FAILED AT", "ERROR")
			for _, r := range recs {
				t.AddRow(
					r.ID,
					r.Name,
					strconv.Itoa(r.AttemptsMade)+"/"+strconv.Itoa(r.Attempts),
					r.UpdatedAt.UTC().Format(time.RFC3339),
					truncate(r.LastError, 60),
				)
			}
			t.Render(out)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	return cmd
}

func newQueueRetryCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <queue> <id>",
		Short: "Move a failed job back to waiting with a fresh attempt budget",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			insp, cleanup, err := o.inspector(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := insp.RetryFailed(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			o.output(cmd).Success("job %s requeued on %s", args[1], args[0])
			return nil
		},
	}
}
