package commands

import (
	"context"
	"fmt"

	"github.com/ddddddO/gtree"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/hierroutes/internal/cli/ui"
	"github.com/conduit-lang/hierroutes/internal/service"
)

// Publish status markers used by view --full
const (
	markerPublished = "●"
	markerOther     = "○"
)

// NewViewCommand creates the view command
func NewViewCommand(opts *globalOptions) *cobra.Command {
	var full bool

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Print the route hierarchy as a tree",
		Long: `Print the current route hierarchy, root nodes first.

With --full every node shows its title, route and publish status
(● published, ○ draft or missing).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				tree, err := a.svc.AnnotatedTree(ctx)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(tree) == 0 {
					ui.Message{
						Level:   ui.LevelWarning,
						Problem: "the hierarchy is empty",
						Hints:   []string{"Check the menu file: " + a.defs.MenuPath},
						NoColor: opts.noColor,
					}.Write(out)
					return nil
				}

				root := gtree.NewRoot("/")
				for _, entry := range tree {
					addEntry(root, entry, full)
				}
				return gtree.OutputProgrammably(out, root)
			})
		},
	}

	cmd.Flags().BoolVar(&full, "full", false, "show titles, routes and publish status")
	return cmd
}

func addEntry(parent *gtree.Node, entry service.TreeEntry, full bool) {
	node := parent.Add(entryLabel(entry, full))
	for _, child := range entry.Children {
		addEntry(node, child, full)
	}
}

func entryLabel(entry service.TreeEntry, full bool) string {
	if !full {
		return entry.Key.String()
	}

	switch {
	case entry.Missing:
		return fmt.Sprintf("%s [%s] (missing) /%s", markerOther, entry.Key, entry.Route)
	case entry.Listing || entry.Record == nil:
		return fmt.Sprintf("[%s] (listing) /%s", entry.Key, entry.Route)
	}

	marker := markerOther
	if entry.Record.Published() {
		marker = markerPublished
	}
	return fmt.Sprintf("%s [%s] %s /%s", marker, entry.Key, entry.Record.Title, entry.Route)
}
