// Package relations answers parent, ancestor, child and sibling questions
// over the route index and hydrates the answers through the content lookup.
package relations

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/hierarchy"
)

// Node is one hydrated hierarchy node. Record is nil for listing nodes.
type Node struct {
	Key     hierarchy.Key   `json:"key"`
	Record  *content.Record `json:"record,omitempty"`
	Route   string          `json:"route"`
	Listing bool            `json:"listing"`
}

// Facade is a read-only view of one index
type Facade struct {
	index  *hierarchy.Index
	lookup content.Lookup
	logger *zap.Logger
}

// New creates a Facade
func New(index *hierarchy.Index, lookup content.Lookup, logger *zap.Logger) *Facade {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Facade{
		index:  index,
		lookup: lookup,
		logger: logger.Named("relations"),
	}
}

// Parent returns the hydrated parent of k. ok is false for roots, unknown
// keys and parents whose record no longer exists.
func (f *Facade) Parent(ctx context.Context, k hierarchy.Key) (Node, bool, error) {
	p, ok := f.index.Parent(f.canonical(k))
	if !ok {
		return Node{}, false, nil
	}
	return f.hydrate(ctx, p)
}

// Parents returns the hydrated ancestors of k, immediate parent first. A
// cycle in the index is reported as hierarchy.ErrDataIntegrity.
func (f *Facade) Parents(ctx context.Context, k hierarchy.Key) ([]Node, error) {
	chain, err := f.index.Ancestors(f.canonical(k))
	if err != nil {
		f.logger.Error("parent chain is not a tree", zap.Stringer("key", k), zap.Error(err))
		return nil, err
	}
	return f.hydrateAll(ctx, chain)
}

// Node hydrates k itself. ok is false when k is not a node or its record no
// longer exists.
func (f *Facade) Node(ctx context.Context, k hierarchy.Key) (Node, bool, error) {
	k = f.canonical(k)
	if !f.index.Has(k) {
		return Node{}, false, nil
	}
	return f.hydrate(ctx, k)
}

// Children returns the hydrated direct children of k in menu order
func (f *Facade) Children(ctx context.Context, k hierarchy.Key) ([]Node, error) {
	return f.hydrateAll(ctx, f.index.Children(f.canonical(k)))
}

// Siblings returns every other hydrated node sharing k's parent
func (f *Facade) Siblings(ctx context.Context, k hierarchy.Key) ([]Node, error) {
	return f.hydrateAll(ctx, f.index.Siblings(f.canonical(k)))
}

// canonical maps a slug alias to the id key holding the same route
func (f *Facade) canonical(k hierarchy.Key) hierarchy.Key {
	if !k.IsAlias() {
		return k
	}
	route, ok := f.index.RecordRoute(k)
	if !ok {
		return k
	}
	if id, ok := f.index.RecordKeyForRoute(route); ok {
		return id
	}
	return k
}

func (f *Facade) hydrateAll(ctx context.Context, keys []hierarchy.Key) ([]Node, error) {
	out := make([]Node, 0, len(keys))
	for _, k := range keys {
		n, ok, err := f.hydrate(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// hydrate loads the record behind k. Records deleted since the build are
// reported as absent.
func (f *Facade) hydrate(ctx context.Context, k hierarchy.Key) (Node, bool, error) {
	route, _ := f.index.Route(k)
	if k.IsListing() {
		return Node{Key: k, Route: route, Listing: true}, true, nil
	}

	rec, err := f.lookup.FetchByKey(ctx, k.ContentType, k.ID)
	if errors.Is(err, content.ErrNotFound) {
		f.logger.Debug("indexed record is gone", zap.Stringer("key", k))
		return Node{}, false, nil
	}
	if err != nil {
		return Node{}, false, fmt.Errorf("failed to fetch %s: %w", k, err)
	}
	return Node{Key: k, Record: &rec, Route: route}, true, nil
}
