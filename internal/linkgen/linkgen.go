// Package linkgen generates hierarchical paths for records. It wraps another
// URL generator and only takes over content links it can answer from the
// route index.
package linkgen

import (
	"errors"
	"strconv"

	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/resolver"
)

// Route and parameter names shared with the HTTP router
const (
	RouteContentLink  = "contentlink"
	RouteRecordExact  = "hierarchicalroutes.record.exact"
	RouteListingExact = "hierarchicalroutes.listing.exact"
	RouteRecordRuled  = "hierarchicalroutes.record"

	ParamContentType = "contenttypeslug"
	ParamSlug        = "slug"
	ParamParents     = "parents"
)

// ErrNoRoute is returned when nothing, including the wrapped generator, can
// produce a URL
var ErrNoRoute = errors.New("no route for link")

// URLGenerator builds a URL for a named route
type URLGenerator interface {
	URL(name string, params map[string]string) (string, error)
}

// URLGeneratorFunc adapts a function to URLGenerator
type URLGeneratorFunc func(name string, params map[string]string) (string, error)

// URL implements URLGenerator
func (f URLGeneratorFunc) URL(name string, params map[string]string) (string, error) {
	return f(name, params)
}

// ExactRouteName returns the record route name for constraint group i of a
// sharded record constraint
func ExactRouteName(group int) string {
	return RouteRecordExact + "_" + strconv.Itoa(group)
}

// Options mirrors the link-related settings
type Options struct {
	// EnableRouting turns hierarchical links on; when false every call is
	// delegated
	EnableRouting bool
	// BypassURLGenerator returns paths directly instead of asking the
	// wrapped generator for the named routes
	BypassURLGenerator bool
}

// DefaultOptions returns the default link options
func DefaultOptions() Options {
	return Options{EnableRouting: true}
}

// Generator is a URLGenerator that answers content links from the index
type Generator struct {
	index   *hierarchy.Index
	records *resolver.Constraint
	catalog content.Catalog
	wrapped URLGenerator
	opts    Options
}

// New creates a Generator. records is the record-route constraint of the
// resolver built from the same index; wrapped may be nil.
func New(index *hierarchy.Index, records *resolver.Constraint, catalog content.Catalog, wrapped URLGenerator, opts Options) *Generator {
	return &Generator{
		index:   index,
		records: records,
		catalog: catalog,
		wrapped: wrapped,
		opts:    opts,
	}
}

// Link returns the path of the record identified by content type (plural or
// singular slug) and numeric id or slug
func (g *Generator) Link(contentType, idOrSlug string) (string, error) {
	return g.URL(RouteContentLink, map[string]string{
		ParamContentType: contentType,
		ParamSlug:        idOrSlug,
	})
}

// URL implements URLGenerator. Only RouteContentLink is intercepted.
func (g *Generator) URL(name string, params map[string]string) (string, error) {
	if !g.opts.EnableRouting || name != RouteContentLink {
		return g.delegate(name, params)
	}

	contentType := content.PluralSlug(g.catalog, params[ParamContentType])
	slug := params[ParamSlug]
	key := hierarchy.Key{Kind: hierarchy.KindRecord, ContentType: contentType, ID: slug}

	if route, ok := g.index.RecordRoute(key); ok {
		if g.opts.BypassURLGenerator {
			return "/" + route, nil
		}
		exact := map[string]string{ParamSlug: route}
		if g.records != nil && g.records.Sharded() {
			if group, ok := g.records.Group(route); ok {
				return g.delegate(ExactRouteName(group), exact)
			}
		}
		return g.delegate(RouteRecordExact, exact)
	}

	if parentRoute, ok := g.ruledParentRoute(contentType); ok {
		if g.opts.BypassURLGenerator {
			return "/" + parentRoute + "/" + slug, nil
		}
		return g.delegate(RouteRecordRuled, map[string]string{
			ParamParents: parentRoute,
			ParamSlug:    slug,
		})
	}

	return g.delegate(name, params)
}

// ruledParentRoute finds the first node, by key order, whose content-type
// rules admit contentType
func (g *Generator) ruledParentRoute(contentType string) (string, bool) {
	for _, parent := range g.index.RuleParents() {
		for _, ct := range g.index.ContentTypeRules(parent) {
			if ct != contentType {
				continue
			}
			if route, ok := g.index.Route(parent); ok {
				return route, true
			}
		}
	}
	return "", false
}

func (g *Generator) delegate(name string, params map[string]string) (string, error) {
	if g.wrapped == nil {
		return "", ErrNoRoute
	}
	return g.wrapped.URL(name, params)
}
