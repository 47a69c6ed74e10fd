// Package resolver maps incoming paths to records and listings using the
// route index. Precedence is exact record, then exact listing, then a
// parent route followed by a slug of a content type ruled under that parent.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/telemetry"
)

// ErrNotFound is returned when no resolution stage matches a path
var ErrNotFound = errors.New("route not found")

// SlugPattern constrains the final segment of a fuzzy match
var SlugPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// MatchKind tells which stage produced a Match
type MatchKind int

const (
	// MatchRecord is an exact record route
	MatchRecord MatchKind = iota + 1
	// MatchListing is an exact listing route
	MatchListing
	// MatchFuzzy is a ruled content type below a known parent
	MatchFuzzy
)

// String returns the metric label of the kind
func (k MatchKind) String() string {
	switch k {
	case MatchRecord:
		return "record"
	case MatchListing:
		return "listing"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "none"
	}
}

// Match is a successful resolution
type Match struct {
	Kind MatchKind
	// Key is the record key for record and fuzzy matches, the listing key
	// otherwise
	Key hierarchy.Key
	// Record is the hydrated record; nil for listing matches
	Record *content.Record
	// Parent is the ruled parent of a fuzzy match
	Parent hierarchy.Key
	// Path is the normalized path that was resolved
	Path string
}

// ContentType returns the content type of the matched record
func (m Match) ContentType() string {
	if m.Record == nil {
		return ""
	}
	return m.Record.ContentType
}

// Slug returns the slug of the matched record
func (m Match) Slug() string {
	if m.Record == nil {
		return ""
	}
	return m.Record.Slug
}

// Options controls how path literals are matched
type Options struct {
	// UsePatterns matches through the constraint group patterns instead of
	// the hash lookups. Both give the same answers.
	UsePatterns bool
}

// Resolver resolves paths against one immutable index
type Resolver struct {
	index  *hierarchy.Index
	lookup content.Lookup
	opts   Options
	logger *zap.Logger

	records        *Constraint
	listings       *Constraint
	parents        *Constraint
	potentialRules *Constraint
}

// New creates a Resolver over index
func New(index *hierarchy.Index, lookup content.Lookup, opts Options, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}

	var parentRoutes, ruleKeys []string
	for _, k := range index.RuleParents() {
		ruleKeys = append(ruleKeys, k.String())
		if route, ok := index.Route(k); ok {
			parentRoutes = append(parentRoutes, route)
		}
	}

	return &Resolver{
		index:          index,
		lookup:         lookup,
		opts:           opts,
		logger:         logger.Named("resolver"),
		records:        NewConstraint(index.RecordRoutes()),
		listings:       NewConstraint(index.ListingRoutes()),
		parents:        NewConstraint(parentRoutes),
		potentialRules: NewConstraint(ruleKeys),
	}
}

// RecordConstraint is the constraint over every record route
func (r *Resolver) RecordConstraint() *Constraint { return r.records }

// ListingConstraint is the constraint over every listing route
func (r *Resolver) ListingConstraint() *Constraint { return r.listings }

// ParentConstraint is the constraint over the routes of nodes carrying
// content-type rules
func (r *Resolver) ParentConstraint() *Constraint { return r.parents }

// PotentialParentConstraint is the constraint over the keys of nodes
// carrying content-type rules
func (r *Resolver) PotentialParentConstraint() *Constraint { return r.potentialRules }

func (r *Resolver) matches(c *Constraint, s string) bool {
	if r.opts.UsePatterns {
		_, ok := c.MatchGroup(s)
		return ok
	}
	return c.Match(s)
}

// Resolve finds what path points at. It returns ErrNotFound when no stage
// matches and a wrapped lookup error when content cannot be read.
func (r *Resolver) Resolve(ctx context.Context, path string) (Match, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "resolver.Resolve")
	defer span.End()

	path = strings.Trim(path, "/")
	span.SetAttributes(attribute.String("resolver.path", path))

	m, err := r.resolve(ctx, path)
	switch {
	case errors.Is(err, ErrNotFound):
		telemetry.ResolveTotal.WithLabelValues("not_found").Inc()
		span.SetAttributes(attribute.String("resolver.result", "not_found"))
	case err != nil:
		telemetry.ResolveTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve")
		r.logger.Error("resolution failed", zap.String("path", path), zap.Error(err))
	default:
		telemetry.ResolveTotal.WithLabelValues(m.Kind.String()).Inc()
		span.SetAttributes(
			attribute.String("resolver.result", m.Kind.String()),
			attribute.String("resolver.key", m.Key.String()),
		)
	}
	return m, err
}

func (r *Resolver) resolve(ctx context.Context, path string) (Match, error) {
	if path == "" {
		return Match{}, ErrNotFound
	}

	if r.matches(r.records, path) {
		return r.resolveRecord(ctx, path)
	}

	if r.matches(r.listings, path) {
		key, ok := r.index.ListingKeyForRoute(path)
		if !ok {
			return Match{}, ErrNotFound
		}
		return Match{Kind: MatchListing, Key: key, Path: path}, nil
	}

	parents, slug, ok := cutLast(path)
	if !ok || !SlugPattern.MatchString(slug) || !r.matches(r.parents, parents) {
		return Match{}, ErrNotFound
	}
	return r.resolveFuzzy(ctx, path, parents, slug)
}

// resolveRecord hydrates an exact record route. A record that vanished since
// the build is a miss, not a fall-through to later stages.
func (r *Resolver) resolveRecord(ctx context.Context, path string) (Match, error) {
	key, ok := r.index.RecordKeyForRoute(path)
	if !ok {
		return Match{}, ErrNotFound
	}

	rec, err := r.lookup.FetchByKey(ctx, key.ContentType, key.ID)
	if errors.Is(err, content.ErrNotFound) {
		r.logger.Debug("indexed record is gone", zap.Stringer("key", key))
		return Match{}, ErrNotFound
	}
	if err != nil {
		return Match{}, fmt.Errorf("failed to fetch %s: %w", key, err)
	}

	return Match{Kind: MatchRecord, Key: hierarchy.KeyOf(rec), Record: &rec, Path: path}, nil
}

// resolveFuzzy tries each content type ruled under the parent, in order
func (r *Resolver) resolveFuzzy(ctx context.Context, path, parents, slug string) (Match, error) {
	parent, ok := r.index.RecordKeyForRoute(parents)
	if !ok {
		if parent, ok = r.index.ListingKeyForRoute(parents); !ok {
			return Match{}, ErrNotFound
		}
	}

	for _, ct := range r.index.ContentTypeRules(parent) {
		rec, err := r.lookup.FetchByKey(ctx, ct, slug)
		if errors.Is(err, content.ErrNotFound) {
			continue
		}
		if err != nil {
			return Match{}, fmt.Errorf("failed to fetch %s/%s: %w", ct, slug, err)
		}
		return Match{Kind: MatchFuzzy, Key: hierarchy.KeyOf(rec), Record: &rec, Parent: parent, Path: path}, nil
	}
	return Match{}, ErrNotFound
}

// cutLast splits a path at its last separator
func cutLast(path string) (string, string, bool) {
	i := strings.LastIndexByte(path, '/')
	if i <= 0 || i == len(path)-1 {
		return "", "", false
	}
	return path[:i], path[i+1:], true
}
