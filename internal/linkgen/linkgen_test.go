package linkgen

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/resolver"
)

var catalog = content.StaticCatalog{
	{Key: "pages", Slug: "pages", SingularSlug: "page"},
	{Key: "events", SingularSlug: "event"},
	{Key: "entries", Slug: "entries", SingularSlug: "entry"},
}

// patternRouter stands in for the HTTP router's named routes
type patternRouter struct {
	calls []string
}

func (p *patternRouter) URL(name string, params map[string]string) (string, error) {
	p.calls = append(p.calls, name)
	pattern := "/{slug}"
	switch {
	case name == RouteContentLink:
		pattern = "/{contenttypeslug}/{slug}"
	case name == RouteRecordRuled:
		pattern = "/{parents}/{slug}"
	case strings.HasPrefix(name, RouteRecordExact):
	default:
		return "", fmt.Errorf("route not found: %s", name)
	}
	for k, v := range params {
		pattern = strings.ReplaceAll(pattern, "{"+k+"}", v)
	}
	return pattern, nil
}

func fixture(t *testing.T) (*content.MemoryStore, *hierarchy.Index) {
	t.Helper()
	store := content.NewMemoryStore(
		content.Record{ContentType: "pages", ID: 1, Slug: "about", Status: content.StatusPublished},
		content.Record{ContentType: "pages", ID: 2, Slug: "team", Status: content.StatusPublished},
		content.Record{ContentType: "pages", ID: 3, Slug: "jane", Status: content.StatusPublished},
		content.Record{ContentType: "pages", ID: 4, Slug: "orphan", Status: content.StatusPublished},
		content.Record{ContentType: "events", ID: 20, Slug: "conference", Status: content.StatusPublished},
		content.Record{ContentType: "entries", ID: 10, Slug: "hello", Status: content.StatusPublished},
	)
	menus := []hierarchy.Menu{{Name: "main", Items: []hierarchy.MenuItem{
		{Path: "pages/1", Submenu: []hierarchy.MenuItem{
			{Path: "pages/2", Submenu: []hierarchy.MenuItem{{Path: "pages/3"}}},
		}},
	}}}
	rules := []hierarchy.Rule{
		{Type: hierarchy.RuleContentType, Params: hierarchy.RuleParams{Parent: "pages/2", Slug: "events"}},
	}
	ix, err := hierarchy.NewBuilder(store, hierarchy.DefaultOptions(), nil).Build(context.Background(), menus, rules)
	require.NoError(t, err)
	return store, hierarchy.NewIndex(ix)
}

func TestLink_ExactBypass(t *testing.T) {
	_, index := fixture(t)
	g := New(index, nil, catalog, nil, Options{EnableRouting: true, BypassURLGenerator: true})

	tests := []struct {
		contentType, key, want string
	}{
		{"pages", "1", "/about"},
		{"pages", "about", "/about"},
		{"page", "3", "/about/team/jane"},
		{"page", "jane", "/about/team/jane"},
		{"event", "conference", "/about/team/conference"},
	}
	for _, tt := range tests {
		t.Run(tt.contentType+"/"+tt.key, func(t *testing.T) {
			got, err := g.Link(tt.contentType, tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := g.Link("pages", "orphan")
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestLink_ThroughWrappedGenerator(t *testing.T) {
	store, index := fixture(t)
	r := resolver.New(index, store, resolver.Options{}, nil)
	router := &patternRouter{}
	g := New(index, r.RecordConstraint(), catalog, router, DefaultOptions())

	got, err := g.Link("page", "team")
	require.NoError(t, err)
	assert.Equal(t, "/about/team", got)

	got, err = g.Link("events", "conference")
	require.NoError(t, err)
	assert.Equal(t, "/about/team/conference", got)

	got, err = g.Link("entries", "hello")
	require.NoError(t, err)
	assert.Equal(t, "/entries/hello", got)

	assert.Equal(t, []string{RouteRecordExact, RouteRecordRuled, RouteContentLink}, router.calls)
}

func TestLink_RoutingDisabled(t *testing.T) {
	_, index := fixture(t)
	router := &patternRouter{}
	g := New(index, nil, catalog, router, Options{EnableRouting: false, BypassURLGenerator: true})

	got, err := g.Link("pages", "1")
	require.NoError(t, err)
	assert.Equal(t, "/pages/1", got)
}

func TestURL_OtherRoutesDelegate(t *testing.T) {
	_, index := fixture(t)
	router := &patternRouter{}
	g := New(index, nil, catalog, router, DefaultOptions())

	got, err := g.URL(RouteRecordExact, map[string]string{ParamSlug: "x/y"})
	require.NoError(t, err)
	assert.Equal(t, "/x/y", got)

	_, err = g.URL("unknown", nil)
	assert.Error(t, err)
}

func TestLink_ShardedRouteNames(t *testing.T) {
	ix := hierarchy.NewIndices()
	store := content.NewMemoryStore()
	for i := 0; i < 3000; i++ {
		k := hierarchy.RecordKey("pages", int64(i+1))
		route := fmt.Sprintf("section-%02d/item-%06d", i/100, i)
		ix.Parents[k] = hierarchy.Key{}
		ix.Slugs[k] = route
		ix.RecordRoutes[k] = route
	}
	index := hierarchy.NewIndex(ix)
	r := resolver.New(index, store, resolver.Options{}, nil)
	require.True(t, r.RecordConstraint().Sharded())

	router := &patternRouter{}
	g := New(index, r.RecordConstraint(), catalog, router, DefaultOptions())

	got, err := g.Link("pages", "2951")
	require.NoError(t, err)
	assert.Equal(t, "/section-29/item-002950", got)
	assert.Equal(t, []string{ExactRouteName(29)}, router.calls)
}

func TestLink_RoundTrip(t *testing.T) {
	for _, bypass := range []bool{true, false} {
		t.Run(fmt.Sprintf("bypass=%v", bypass), func(t *testing.T) {
			store, index := fixture(t)
			r := resolver.New(index, store, resolver.Options{}, nil)
			g := New(index, r.RecordConstraint(), catalog, &patternRouter{}, Options{EnableRouting: true, BypassURLGenerator: bypass})

			for k := range index.Indices().RecordRoutes {
				if k.IsAlias() {
					continue
				}
				path, err := g.Link(k.ContentType, k.ID)
				require.NoError(t, err, k.String())

				m, err := r.Resolve(context.Background(), path)
				require.NoError(t, err, path)
				assert.Equal(t, resolver.MatchRecord, m.Kind, path)
				assert.Equal(t, k, m.Key, path)
			}
		})
	}
}
