// Package cli folio 命令行
package cli

import (
	"context"
	"fmt"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"folio-core/internal/app"
	"folio-core/internal/config/loader"
	"folio-core/internal/config/schema"
	"folio-core/internal/config/source"
	corelog "folio-core/internal/core/log"
)

// rootOptions 全局标志
type rootOptions struct {
	configFile  string
	redisURL    string
	databaseURL string
	logLevel    string
	httpListen  string
	noColor     bool
	version     string
}

// NewRootCmd 构建命令树
func NewRootCmd(version string) *cobra.Command {
	o := &rootOptions{version: version}
	cmd := &cobra.Command{
		Use:   "folio",
		Short: "Folio background workers and operator tools",
		Long: `folio runs the background job workers of the reading platform and
provides operator commands for signed URLs, cache purges and queue inspection.

Examples:
  folio worker                          Run job workers and event subscribers
  folio sign /media/covers/42.webp      Print a signed path
  folio cache purge series              Drop every cached series entry
  folio queue failed images -n 20       Show recent failed image jobs`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&o.configFile, "config", "c", "", "Config file path")
	f.StringVar(&o.redisURL, "redis-url", "", "Redis URL (overrides config)")
	f.StringVar(&o.databaseURL, "database-url", "", "Postgres DSN (overrides config)")
	f.StringVar(&o.logLevel, "log-level", "", "Log level: debug/info/warn/error")
	f.StringVar(&o.httpListen, "http-listen", "", "Health listener address (overrides config)")
	f.BoolVar(&o.noColor, "no-color", false, "Disable colored output")

	cmd.AddCommand(
		newWorkerCmd(o),
		newSignCmd(o),
		newVerifyCmd(o),
		newCacheCmd(o),
		newQueueCmd(o),
	)
	return cmd
}

// Execute 运行命令，失败时以非零码退出
func Execute(version string) {
	defer func() {
		if r := recover(); r != nil {
			corelog.Errorf("FATAL: panic recovered: %v\n%s", r, debug.Stack())
			fmt.Fprintf(os.Stderr, "\nPANIC: %v\n", r)
			os.Exit(2)
		}
	}()

	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, colorError("Error:"), err)
		os.Exit(1)
	}
}

// loadConfig 按 默认值 < YAML < 环境变量 < 命令行 合并并校验
func (o *rootOptions) loadConfig() (*schema.Root, error) {
	cfg, err := loader.Load(o.configFile, source.CLIOverrides{
		RedisURL:    o.redisURL,
		DatabaseURL: o.databaseURL,
		LogLevel:    o.logLevel,
		HTTPListen:  o.httpListen,
	})
	if err != nil {
		return nil, err
	}
	if _, err := corelog.Setup(corelog.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}); err != nil {
		return nil, err
	}
	return cfg, nil
}

// build 只组装命令需要的组件
func (o *rootOptions) build(ctx context.Context, cfg *schema.Root, components ...app.Component) (*app.App, error) {
	b := app.NewBuilder(cfg)
	for _, c := range components {
		b.With(c)
	}
	return b.Build(ctx)
}

func (o *rootOptions) output(cmd *cobra.Command) *Output {
	return NewOutput(cmd.OutOrStdout(), o.noColor)
}
