package commands

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/hierroutes/internal/cli/ui"
)

// NewBuildCommand creates the build command
func NewBuildCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the route hierarchy",
		Long: `Import the menu and rules into the route hierarchy and store it in the route cache.

Without --force a fresh cache is reused; the hierarchy is rebuilt only when
the menu or extension config changed after the cache was written.`,
		Example: `  hierroutes build
  hierroutes build --force --config config/hierarchicalroutes.yml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				return runBuild(ctx, cmd, opts, a, force)
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "rebuild even when the cache is fresh")
	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, opts *globalOptions, a *app, force bool) error {
	start := time.Now()
	if err := a.svc.Build(ctx, !force); err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	ix, err := a.svc.Index(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	ui.Success(out, fmt.Sprintf("Hierarchy ready in %s", time.Since(start).Round(time.Millisecond)), opts.noColor)

	kv := ui.NewKeyValueTable(out, opts.noColor)
	kv.AddRow("Source", a.svc.Source())
	kv.AddRow("Nodes", strconv.Itoa(ix.Len()))
	kv.AddRow("Record routes", strconv.Itoa(len(ix.RecordRoutes())))
	kv.AddRow("Listing routes", strconv.Itoa(len(ix.ListingRoutes())))
	kv.AddRow("Rule parents", strconv.Itoa(len(ix.RuleParents())))
	kv.AddRow("Menu file", a.defs.MenuPath)
	kv.Render()
	return nil
}
