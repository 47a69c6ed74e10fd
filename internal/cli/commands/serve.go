package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/watch"
	"github.com/conduit-lang/hierroutes/internal/web/server"
)

// NewServeCommand creates the serve command
func NewServeCommand(opts *globalOptions) *cobra.Command {
	var (
		addr     string
		noWatch  bool
		debounce time.Duration
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve path resolution and the admin API over HTTP",
		Long: `Serve every request path through the route hierarchy.

Resolved records and listings are returned as JSON. The admin API under
/_hierarchy is mounted when auth.secret is set; prometheus metrics are
served on /metrics. The menu and config files are watched and a change
triggers a rebuild.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			base := cmd.Context()
			if base == nil {
				base = context.Background()
			}
			ctx, stop := signal.NotifyContext(base, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return withApp(cmd, opts, func(_ context.Context, a *app) error {
				if addr == "" {
					addr = a.cfg.Server.Address
				}
				if err := a.svc.Build(ctx, true); err != nil {
					return fmt.Errorf("initial build failed: %w", err)
				}
				if a.tokens == nil {
					a.logger.Warn("auth.secret is not set; admin API disabled")
				}

				config := server.DefaultConfig(a.router)
				config.Address = addr
				config.Database = server.DefaultDatabaseConfig(a.db)
				srv, err := server.New(config, a.logger)
				if err != nil {
					return err
				}
				gs := server.NewGracefulShutdown(srv, timeout, a.logger)

				if !noWatch {
					files := []string{a.defs.MenuPath, a.cfg.File}
					fw, err := watch.NewRebuildWatcher(ctx, files, debounce, a.svc, a.logger)
					if err != nil {
						return err
					}
					if err := fw.Start(); err != nil {
						return err
					}
					gs.RegisterHook(func(context.Context) error { return fw.Stop() })
				}

				color.New(color.FgGreen, color.Bold).Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", a.svc.Source(), addr)
				a.logger.Info("serving", zap.String("address", addr), zap.Bool("watch", !noWatch))
				return gs.Run(ctx)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&addr, "addr", "a", "", "listen address (default: server.address from the config)")
	flags.BoolVar(&noWatch, "no-watch", false, "do not rebuild when the menu or config file changes")
	flags.DurationVar(&debounce, "debounce", watch.DefaultDebounce, "delay before a file change triggers a rebuild")
	flags.DurationVar(&timeout, "shutdown-timeout", server.DefaultShutdownTimeout, "time allowed for in-flight requests on shutdown")
	return cmd
}
