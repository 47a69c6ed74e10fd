package service

import (
	"context"

	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/relations"
)

// TreeEntry is one node of the annotated tree. Missing marks record nodes
// whose record was deleted after the last build.
type TreeEntry struct {
	relations.Node
	Missing  bool        `json:"missing,omitempty"`
	Children []TreeEntry `json:"children,omitempty"`
}

// AnnotatedTree returns the current forest with every node hydrated
func (s *Service) AnnotatedTree(ctx context.Context) ([]TreeEntry, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return nil, err
	}

	tree := snap.index.Tree()
	out := make([]TreeEntry, 0, len(tree))
	for _, n := range tree {
		entry, err := annotate(ctx, snap, n)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func annotate(ctx context.Context, snap *snapshot, n hierarchy.TreeNode) (TreeEntry, error) {
	node, ok, err := snap.relations.Node(ctx, n.Key)
	if err != nil {
		return TreeEntry{}, err
	}
	entry := TreeEntry{Node: node}
	if !ok {
		route, _ := snap.index.Route(n.Key)
		entry = TreeEntry{Node: relations.Node{Key: n.Key, Route: route}, Missing: true}
	}

	for _, c := range n.Children {
		child, err := annotate(ctx, snap, c)
		if err != nil {
			return TreeEntry{}, err
		}
		entry.Children = append(entry.Children, child)
	}
	return entry, nil
}
