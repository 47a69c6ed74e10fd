package commands

import (
	"context"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/hierroutes/internal/cli/ui"
)

// confirm asks a yes/no question; tests replace it
var confirm = func(message string) (bool, error) {
	ok := false
	prompt := &survey.Confirm{
		Message: message,
		Default: false,
	}
	if err := survey.AskOne(prompt, &ok); err != nil {
		return false, err
	}
	return ok, nil
}

// NewCacheCommand creates the cache command group
func NewCacheCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the route cache",
	}
	cmd.AddCommand(newCacheClearCommand(opts))
	return cmd
}

func newCacheClearCommand(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop the persisted route cache",
		Long: `Drop every route cache blob so the next build rebuilds from the menu.

The memory backend lives inside the serving process; clear it there with
DELETE /_hierarchy/cache instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				ok, err := confirm("Clear the route cache?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				if !a.cfg.Cache.Enabled {
					ui.Message{Level: ui.LevelWarning, Problem: "the route cache is disabled", NoColor: opts.noColor}.Write(out)
					return nil
				}
				if a.cfg.Cache.Backend != "redis" {
					ui.Message{
						Level:   ui.LevelInfo,
						Problem: "the memory cache only lives in the serving process",
						Hints:   []string{"Clear it there: DELETE /_hierarchy/cache"},
						NoColor: opts.noColor,
					}.Write(out)
				}

				if err := a.svc.ClearCache(ctx); err != nil {
					return fmt.Errorf("failed to clear cache: %w", err)
				}
				ui.Success(out, "Route cache cleared", opts.noColor)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}
