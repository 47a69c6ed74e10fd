package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/hierroutes/internal/cli/ui"
	"github.com/conduit-lang/hierroutes/internal/linkgen"
	"github.com/conduit-lang/hierroutes/internal/resolver"
)

// NewResolveCommand creates the resolve command
func NewResolveCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <path>",
		Short: "Resolve a request path to a record or listing",
		Example: `  hierroutes resolve /about/team
  hierroutes resolve about/hello`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.Trim(args[0], "/")

			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				m, err := a.svc.Resolve(ctx, path)
				if errors.Is(err, resolver.ErrNotFound) {
					ix, ixErr := a.svc.Index(ctx)
					if ixErr != nil {
						return ixErr
					}
					routes := append(ix.RecordRoutes(), ix.ListingRoutes()...)
					fmt.Fprint(cmd.ErrOrStderr(), ui.RouteNotFound(path, ui.Suggest(path, routes, 0, 0), opts.noColor))
					return err
				}
				if err != nil {
					return err
				}

				kv := ui.NewKeyValueTable(cmd.OutOrStdout(), opts.noColor)
				kv.AddRow("Kind", m.Kind.String())
				kv.AddRow("Key", m.Key.String())
				kv.AddRow("Path", "/"+m.Path)
				if ct := m.ContentType(); ct != "" {
					kv.AddRow("Content type", ct)
				}
				if slug := m.Slug(); slug != "" {
					kv.AddRow("Slug", slug)
				}
				if m.Record != nil {
					kv.AddRow("Title", m.Record.Title)
					kv.AddRow("Status", m.Record.Status)
				}
				if !m.Parent.IsZero() {
					kv.AddRow("Parent", m.Parent.String())
				}
				kv.Render()
				return nil
			})
		},
	}
}

// NewLinkCommand creates the link command
func NewLinkCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <contenttype> <id-or-slug>",
		Short: "Generate the path of a record",
		Long: `Generate the path of a record the way templates link to it.

The content type may be given by its plural or singular slug.`,
		Example: `  hierroutes link pages 2
  hierroutes link entry hello`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				link, err := a.svc.Link(ctx, args[0], args[1])
				if errors.Is(err, linkgen.ErrNoRoute) {
					return fmt.Errorf("no route for %s/%s: %w", args[0], args[1], err)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), link)
				return nil
			})
		},
	}
}
