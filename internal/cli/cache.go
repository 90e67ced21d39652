package cli

import (
	"github.com/spf13/cobra"

	"folio-core/internal/app"
	coreerrors "folio-core/internal/core/errors"
)

func newCacheCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Cache maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "purge <domain>",
		Short: "Delete every cached key of a domain (series, chapter, genres, settings, user)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}
			a, err := o.build(cmd.Context(), cfg, &app.RedisComponent{}, &app.CacheComponent{})
			if err != nil {
				return err
			}
			defer a.Close()

			d := a.Deps()
			pattern, err := d.Cache.Keys().DomainPattern(args[0])
			if err != nil {
				return err
			}
			// 缓存在存储不可用时静默降级，这里需要明确报错
			if err := d.Gateway.Ping(cmd.Context()); err != nil {
				return coreerrors.Wrap(err, coreerrors.CodeUnavailable, "cache store unreachable")
			}
			n := d.Cache.DelPattern(cmd.Context(), pattern)
			o.output(cmd).Success("purged %d keys matching %s", n, pattern)
			return nil
		},
	})
	return cmd
}
