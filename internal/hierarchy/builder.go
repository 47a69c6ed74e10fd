// Package hierarchy builds the route index: parents, children, slugs,
// record routes, listing routes and content-type rules, imported from menu
// trees and rules.
package hierarchy

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/telemetry"
)

// Options controls duplicate and slug handling during import
type Options struct {
	// OverwriteDuplicates lets a later import of a key replace the earlier one
	OverwriteDuplicates bool
	// OverrideSlugs lets a menu item's slug replace the record's own slug
	OverrideSlugs bool
}

// DefaultOptions returns the default import options
func DefaultOptions() Options {
	return Options{
		OverwriteDuplicates: true,
		OverrideSlugs:       false,
	}
}

// Builder turns menus and rules into Indices
type Builder struct {
	lookup content.Lookup
	opts   Options
	logger *zap.Logger
}

// NewBuilder creates a Builder reading content through lookup
func NewBuilder(lookup content.Lookup, opts Options, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		lookup: lookup,
		opts:   opts,
		logger: logger.Named("builder"),
	}
}

// buildState is the accumulator threaded through one build
type buildState struct {
	ix      *Indices
	aliases map[Key]Key // id key -> slug alias key
	skipped int
}

func newBuildState() *buildState {
	return &buildState{
		ix:      NewIndices(),
		aliases: make(map[Key]Key),
	}
}

// Build imports every menu (depth-first, in order) and then every rule into
// fresh indices. Items and rules whose content cannot be resolved are
// skipped; lookup failures and invariant violations abort the build.
func (b *Builder) Build(ctx context.Context, menus []Menu, rules []Rule) (*Indices, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "hierarchy.Build")
	defer span.End()

	start := time.Now()
	st := newBuildState()

	for _, menu := range menus {
		for _, item := range menu.Items {
			if err := b.importMenuItem(ctx, st, item, Key{}); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "menu import")
				return nil, fmt.Errorf("failed to import menu %q: %w", menu.Name, err)
			}
		}
	}

	for i, rule := range rules {
		if err := b.importRule(ctx, st, rule); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "rule import")
			return nil, fmt.Errorf("failed to import rule %d (%s): %w", i, rule.Type, err)
		}
	}

	st.reroute()

	if err := st.ix.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "integrity")
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("hierarchy.nodes", len(st.ix.Parents)),
		attribute.Int("hierarchy.record_routes", len(st.ix.RecordRoutes)),
		attribute.Int("hierarchy.listing_routes", len(st.ix.ListingRoutes)),
		attribute.Int("hierarchy.skipped", st.skipped),
	)
	span.SetStatus(codes.Ok, "")

	b.logger.Debug("hierarchy imported",
		zap.Int("nodes", len(st.ix.Parents)),
		zap.Int("skipped", st.skipped),
		zap.Duration("duration", time.Since(start)),
	)
	return st.ix, nil
}

func (b *Builder) importMenuItem(ctx context.Context, st *buildState, item MenuItem, parent Key) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := strings.Trim(item.Path, "/")
	if path == "" {
		b.logger.Debug("menu item has no content path", zap.String("label", item.Label), zap.String("link", item.Link))
		return nil
	}
	if path == HomepagePath {
		return nil
	}

	res, err := b.lookup.FetchByPath(ctx, path)
	if err != nil {
		return fmt.Errorf("failed to look up %q: %w", path, err)
	}

	var key Key
	switch res.Kind {
	case content.KindRecord:
		rec := res.Record
		key = KeyOf(rec)
		slug := rec.Slug
		if b.opts.OverrideSlugs && item.Slug != "" {
			slug = item.Slug
		}
		b.placeRecord(st, key, parent, slug, rec.Slug, false)
	case content.KindAmbiguous:
		key = ListingKey(path)
		b.place(st, key, parent, key.Path, true)
	default:
		b.skip(st, "menu", path, parent, "content not found")
		return nil
	}

	for _, sub := range item.Submenu {
		if err := b.importMenuItem(ctx, st, sub, key); err != nil {
			return err
		}
	}
	return nil
}

func (b *Builder) importRule(ctx context.Context, st *buildState, rule Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	parentPath := strings.Trim(rule.Params.Parent, "/")
	if parentPath == "" {
		b.skip(st, "rule", parentPath, Key{}, "rule has no parent")
		return nil
	}

	res, err := b.lookup.FetchByPath(ctx, parentPath)
	if err != nil {
		return fmt.Errorf("failed to look up parent %q: %w", parentPath, err)
	}

	var parent Key
	switch res.Kind {
	case content.KindRecord:
		parent = KeyOf(res.Record)
	case content.KindAmbiguous:
		parent = ListingKey(parentPath)
	default:
		b.skip(st, "rule", parentPath, Key{}, "parent content not found")
		return nil
	}

	switch rule.Type {
	case RuleContentType:
		slug := rule.Params.Slug
		if slug == "" {
			b.skip(st, "rule", parentPath, parent, "contenttype rule without slug")
			return nil
		}
		for _, existing := range st.ix.ContentTypeRules[parent] {
			if existing == slug {
				return nil
			}
		}
		st.ix.ContentTypeRules[parent] = append(st.ix.ContentTypeRules[parent], slug)

	case RuleQuery:
		if _, ok := st.ix.Parents[parent]; !ok {
			b.skip(st, "rule", parentPath, parent, "parent is not part of the hierarchy")
			return nil
		}
		records, err := b.lookup.Query(ctx, rule.Params.Query, rule.Params.Parameters)
		if err != nil {
			return fmt.Errorf("failed to run query %q: %w", rule.Params.Query, err)
		}
		for _, rec := range records {
			b.placeRecord(st, KeyOf(rec), parent, rec.Slug, rec.Slug, parent.IsListing())
		}

	default:
		b.skip(st, "rule", parentPath, parent, fmt.Sprintf("unknown rule type %q", rule.Type))
	}
	return nil
}

// placeRecord places a record node and keeps its slug alias pointing at the
// same route. Records placed under a listing parent get a listing route and
// no alias.
func (b *Builder) placeRecord(st *buildState, key, parent Key, slug, naturalSlug string, listing bool) {
	if !b.place(st, key, parent, slug, listing) {
		return
	}

	if old, ok := st.aliases[key]; ok {
		delete(st.ix.RecordRoutes, old)
		delete(st.aliases, key)
	}
	if listing {
		return
	}
	// A numeric slug would be indistinguishable from an id key.
	if _, numeric := content.ParseID(naturalSlug); numeric || naturalSlug == "" {
		return
	}
	alias := SlugKey(key.ContentType, naturalSlug)
	st.aliases[key] = alias
	st.ix.RecordRoutes[alias] = st.ix.RecordRoutes[key]
}

// place applies the duplicate policy and attaches key under parent,
// reporting whether the node was (re)placed
func (b *Builder) place(st *buildState, key, parent Key, slug string, listing bool) bool {
	old, exists := st.ix.Parents[key]
	if exists && !b.opts.OverwriteDuplicates {
		b.logger.Debug("duplicate import dropped", zap.Stringer("key", key), zap.Stringer("parent", parent))
		return false
	}
	if !parent.IsZero() && st.wouldLoop(key, parent) {
		b.skip(st, "menu", key.String(), parent, "placement would create a cycle")
		return false
	}

	if exists {
		if !old.IsZero() {
			st.detach(old, key)
		}
		delete(st.ix.RecordRoutes, key)
		delete(st.ix.ListingRoutes, key)
	}

	st.ix.Parents[key] = parent
	if !parent.IsZero() {
		st.ix.Children[parent] = append(st.ix.Children[parent], key)
	}
	st.ix.Slugs[key] = slug

	route := slug
	if !parent.IsZero() {
		parentRoute, _ := st.ix.Route(parent)
		route = parentRoute + "/" + slug
	}
	if listing {
		st.ix.ListingRoutes[key] = route
	} else {
		st.ix.RecordRoutes[key] = route
	}
	return true
}

func (b *Builder) skip(st *buildState, kind, path string, parent Key, reason string) {
	st.skipped++
	telemetry.ImportSkipped.WithLabelValues(kind).Inc()
	b.logger.Warn("import skipped",
		zap.String("kind", kind),
		zap.String("path", path),
		zap.Stringer("parent", parent),
		zap.String("reason", reason),
	)
}

// detach removes exactly one occurrence of key from parent's children,
// preserving the order of the rest
func (st *buildState) detach(parent, key Key) {
	children := st.ix.Children[parent]
	for i, c := range children {
		if c != key {
			continue
		}
		rest := make([]Key, 0, len(children)-1)
		rest = append(rest, children[:i]...)
		rest = append(rest, children[i+1:]...)
		if len(rest) == 0 {
			delete(st.ix.Children, parent)
		} else {
			st.ix.Children[parent] = rest
		}
		return
	}
}

// wouldLoop reports whether attaching key under parent closes a loop
func (st *buildState) wouldLoop(key, parent Key) bool {
	for p := parent; !p.IsZero(); p = st.ix.Parents[p] {
		if p == key {
			return true
		}
	}
	return false
}

// reroute recomputes every route top-down so that nodes moved by an
// overwrite carry their descendants' routes along
func (st *buildState) reroute() {
	for k, p := range st.ix.Parents {
		if p.IsZero() {
			st.rerouteFrom(k, "", false)
		}
	}
}

func (st *buildState) rerouteFrom(k Key, parentRoute string, hasParent bool) {
	route := st.ix.Slugs[k]
	if hasParent {
		route = parentRoute + "/" + route
	}

	if _, ok := st.ix.ListingRoutes[k]; ok {
		st.ix.ListingRoutes[k] = route
	} else {
		st.ix.RecordRoutes[k] = route
		if alias, ok := st.aliases[k]; ok {
			st.ix.RecordRoutes[alias] = route
		}
	}

	for _, c := range st.ix.Children[k] {
		st.rerouteFrom(c, route, true)
	}
}
