package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/hierroutes/internal/cache"
	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/linkgen"
	"github.com/conduit-lang/hierroutes/internal/resolver"
)

type staticDefinitions struct {
	menus []hierarchy.Menu
	rules []hierarchy.Rule
	calls atomic.Int32
	err   error
}

func (d *staticDefinitions) Menus(context.Context) ([]hierarchy.Menu, error) {
	d.calls.Add(1)
	return d.menus, d.err
}

func (d *staticDefinitions) Rules(context.Context) ([]hierarchy.Rule, error) {
	return d.rules, nil
}

type fakeSources struct {
	mu     sync.Mutex
	menu   time.Time
	config time.Time
}

func (f *fakeSources) MenuModTime() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.menu, nil
}

func (f *fakeSources) ConfigModTime() (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.config, nil
}

func (f *fakeSources) touchMenu(t time.Time) {
	f.mu.Lock()
	f.menu = t
	f.mu.Unlock()
}

func newFixture() (*content.MemoryStore, *staticDefinitions, *fakeSources) {
	store := content.NewMemoryStore(
		content.Record{ContentType: "pages", ID: 1, Slug: "about", Title: "About", Status: content.StatusPublished},
		content.Record{ContentType: "pages", ID: 2, Slug: "team", Title: "Team", Status: content.StatusPublished},
		content.Record{ContentType: "pages", ID: 3, Slug: "history", Title: "History", Status: content.StatusPublished},
		content.Record{ContentType: "events", ID: 20, Slug: "conference", Title: "Conference", Status: content.StatusPublished},
	)
	defs := &staticDefinitions{
		menus: []hierarchy.Menu{{Name: "main", Items: []hierarchy.MenuItem{
			{Path: "pages/1", Submenu: []hierarchy.MenuItem{{Path: "pages/2"}, {Path: "pages/3"}}},
		}}},
		rules: []hierarchy.Rule{
			{Type: hierarchy.RuleContentType, Params: hierarchy.RuleParams{Parent: "pages/1", Slug: "events"}},
		},
	}
	past := time.Now().Add(-time.Hour)
	return store, defs, &fakeSources{menu: past, config: past}
}

func newService(store *content.MemoryStore, defs Definitions, sources Sources, rc *cache.RouteCache) *Service {
	config := DefaultConfig()
	config.Links.BypassURLGenerator = true
	return New(Deps{
		Lookup:      store,
		Definitions: defs,
		Sources:     sources,
		Cache:       rc,
		Catalog:     content.StaticCatalog{{Key: "pages", Slug: "pages", SingularSlug: "page"}},
	}, config, nil)
}

func TestService_LazyBuildAndResolve(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()

	assert.Empty(t, svc.Source())

	m, err := svc.Resolve(ctx, "about/team")
	require.NoError(t, err)
	assert.Equal(t, resolver.MatchRecord, m.Kind)
	assert.Equal(t, hierarchy.RecordKey("pages", 2), m.Key)
	assert.Equal(t, SourceRebuild, svc.Source())

	m, err = svc.Resolve(ctx, "about/conference")
	require.NoError(t, err)
	assert.Equal(t, resolver.MatchFuzzy, m.Kind)

	_, err = svc.Resolve(ctx, "nowhere")
	assert.ErrorIs(t, err, resolver.ErrNotFound)

	link, err := svc.Link(ctx, "page", "history")
	require.NoError(t, err)
	assert.Equal(t, "/about/history", link)

	url, err := svc.URL(linkgen.RouteContentLink, map[string]string{"contenttypeslug": "pages", "slug": "2"})
	require.NoError(t, err)
	assert.Equal(t, "/about/team", url)

	assert.Equal(t, int32(1), defs.calls.Load())
}

func TestService_CacheReuse(t *testing.T) {
	store, defs, sources := newFixture()
	rc := cache.NewRouteCache(cache.NewMemoryStore(), 0, nil)
	ctx := context.Background()

	first := newService(store, defs, sources, rc)
	require.NoError(t, first.Build(ctx, true))
	assert.Equal(t, SourceRebuild, first.Source())
	require.NoError(t, first.Build(ctx, true))
	assert.Equal(t, int32(1), defs.calls.Load(), "fresh cache and snapshot are reused")

	second := newService(store, defs, sources, rc)
	require.NoError(t, second.Build(ctx, true))
	assert.Equal(t, SourceCache, second.Source())
	assert.Equal(t, int32(1), defs.calls.Load())

	m, err := second.Resolve(ctx, "about")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.RecordKey("pages", 1), m.Key)
}

func TestService_StaleCacheRebuilds(t *testing.T) {
	store, defs, sources := newFixture()
	rc := cache.NewRouteCache(cache.NewMemoryStore(), 0, nil)
	ctx := context.Background()

	require.NoError(t, newService(store, defs, sources, rc).Build(ctx, true))
	require.Equal(t, int32(1), defs.calls.Load())

	// every blob is present and well-formed, but the menu moved on
	_, err := rc.Load(ctx)
	require.NoError(t, err)
	sources.touchMenu(time.Now().Add(time.Hour))

	svc := newService(store, defs, sources, rc)
	require.NoError(t, svc.Build(ctx, true))
	assert.Equal(t, SourceRebuild, svc.Source())
	assert.Equal(t, int32(2), defs.calls.Load())
}

func TestService_CorruptCacheRebuilds(t *testing.T) {
	store, defs, sources := newFixture()
	blobs := cache.NewMemoryStore()
	rc := cache.NewRouteCache(blobs, 0, nil)
	ctx := context.Background()

	require.NoError(t, newService(store, defs, sources, rc).Build(ctx, true))
	require.NoError(t, blobs.Set(ctx, cache.BlobSlugs, []byte("{broken"), 0))

	svc := newService(store, defs, sources, rc)
	require.NoError(t, svc.Build(ctx, true))
	assert.Equal(t, SourceRebuild, svc.Source())
	assert.Equal(t, int32(2), defs.calls.Load())
}

func TestService_NoCacheReusesSnapshotUntilSourcesChange(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()

	require.NoError(t, svc.Build(ctx, true))
	require.NoError(t, svc.Build(ctx, true))
	assert.Equal(t, int32(1), defs.calls.Load())

	sources.touchMenu(time.Now().Add(time.Hour))
	require.NoError(t, svc.Build(ctx, true))
	assert.Equal(t, int32(2), defs.calls.Load())

	require.NoError(t, svc.Rebuild(ctx))
	assert.Equal(t, int32(3), defs.calls.Load())
}

func TestService_IdempotentRebuild(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()

	encode := func() []byte {
		index, err := svc.Index(ctx)
		require.NoError(t, err)
		b, err := json.Marshal(index.Indices())
		require.NoError(t, err)
		return b
	}

	require.NoError(t, svc.Rebuild(ctx))
	first := encode()
	require.NoError(t, svc.Rebuild(ctx))
	assert.Equal(t, first, encode())
}

func TestService_FailedBuildKeepsSnapshot(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()
	require.NoError(t, svc.Rebuild(ctx))

	defs.err = errors.New("menu.yml: permission denied")
	err := svc.Rebuild(ctx)
	require.Error(t, err)

	m, err := svc.Resolve(ctx, "about")
	require.NoError(t, err)
	assert.Equal(t, resolver.MatchRecord, m.Kind)
}

func TestService_OnContentChangedOncePerCycle(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)

	ctx := WithCycle(context.Background())
	require.NoError(t, svc.OnContentChanged(ctx, Event{Type: EventSaved, ContentType: "pages", ID: 4}))
	require.NoError(t, svc.OnContentChanged(ctx, Event{Type: EventDeleted, ContentType: "pages", ID: 2}))
	assert.Equal(t, int32(1), defs.calls.Load())
	assert.True(t, CycleFrom(ctx).Rebuilt())

	next := WithCycle(context.Background())
	require.NoError(t, svc.OnContentChanged(next, Event{Type: EventSaved, ContentType: "pages", ID: 4}))
	assert.Equal(t, int32(2), defs.calls.Load())

	require.NoError(t, svc.OnContentChanged(context.Background(), Event{Type: EventSaved}))
	assert.Equal(t, int32(3), defs.calls.Load())
}

func TestService_NewContentVisibleAfterChange(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()
	require.NoError(t, svc.Rebuild(ctx))

	store.Put(content.Record{ContentType: "pages", ID: 4, Slug: "jobs", Title: "Jobs"})
	defs.menus[0].Items[0].Submenu = append(defs.menus[0].Items[0].Submenu, hierarchy.MenuItem{Path: "pages/4"})

	_, err := svc.Resolve(ctx, "about/jobs")
	assert.ErrorIs(t, err, resolver.ErrNotFound)

	require.NoError(t, svc.OnContentChanged(WithCycle(ctx), Event{Type: EventSaved, ContentType: "pages", ID: 4}))
	m, err := svc.Resolve(ctx, "about/jobs")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.RecordKey("pages", 4), m.Key)
}

func TestService_Relations(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()
	about, team := hierarchy.RecordKey("pages", 1), hierarchy.RecordKey("pages", 2)

	p, ok, err := svc.Parent(ctx, team)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, about, p.Key)

	parents, err := svc.Parents(ctx, team)
	require.NoError(t, err)
	assert.Len(t, parents, 1)

	children, err := svc.Children(ctx, about)
	require.NoError(t, err)
	assert.Len(t, children, 2)

	siblings, err := svc.Siblings(ctx, team)
	require.NoError(t, err)
	require.Len(t, siblings, 1)
	assert.Equal(t, "history", siblings[0].Record.Slug)

	tree, err := svc.Tree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)
	assert.Len(t, tree[0].Children, 2)
}

func TestService_ConcurrentReadsDuringRebuild(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()
	require.NoError(t, svc.Rebuild(ctx))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				assert.NoError(t, svc.Rebuild(ctx))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m, err := svc.Resolve(ctx, "about/team")
				if assert.NoError(t, err) {
					assert.Equal(t, hierarchy.RecordKey("pages", 2), m.Key)
				}
			}
		}()
	}
	wg.Wait()
}

func TestService_AnnotatedTree(t *testing.T) {
	store, defs, sources := newFixture()
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()

	require.NoError(t, svc.Build(ctx, true))
	store.Delete("pages", 3)

	tree, err := svc.AnnotatedTree(ctx)
	require.NoError(t, err)
	require.Len(t, tree, 1)

	root := tree[0]
	assert.Equal(t, hierarchy.RecordKey("pages", 1), root.Key)
	assert.Equal(t, "About", root.Record.Title)
	assert.Equal(t, "about", root.Route)
	require.Len(t, root.Children, 2)

	assert.Equal(t, "about/team", root.Children[0].Route)
	assert.False(t, root.Children[0].Missing)

	gone := root.Children[1]
	assert.True(t, gone.Missing)
	assert.Nil(t, gone.Record)
	assert.Equal(t, "about/history", gone.Route)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []Published
}

func (o *recordingObserver) Published(ev Published) {
	o.mu.Lock()
	o.events = append(o.events, ev)
	o.mu.Unlock()
}

func TestService_ObserverSeesEveryPublish(t *testing.T) {
	store, defs, sources := newFixture()
	rc := cache.NewRouteCache(cache.NewMemoryStore(), 0, nil)
	obs := &recordingObserver{}
	ctx := context.Background()

	first := New(Deps{Lookup: store, Definitions: defs, Sources: sources, Cache: rc, Observer: obs}, DefaultConfig(), nil)
	require.NoError(t, first.Rebuild(ctx))

	second := New(Deps{Lookup: store, Definitions: defs, Sources: sources, Cache: rc, Observer: obs}, DefaultConfig(), nil)
	require.NoError(t, second.Build(ctx, true))

	require.Len(t, obs.events, 2)
	assert.Equal(t, SourceRebuild, obs.events[0].Source)
	assert.Equal(t, SourceCache, obs.events[1].Source)
	assert.Equal(t, 3, obs.events[0].Nodes)
	assert.Equal(t, obs.events[0].Nodes, obs.events[1].Nodes)
	assert.False(t, obs.events[0].BuiltAt.IsZero())
}

type settingsDefinitions struct {
	*staticDefinitions
	mu       sync.Mutex
	settings Settings
}

func (d *settingsDefinitions) Settings(context.Context) (Settings, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settings, nil
}

func (d *settingsDefinitions) set(settings Settings) {
	d.mu.Lock()
	d.settings = settings
	d.mu.Unlock()
}

func TestService_RebuildRereadsSettings(t *testing.T) {
	store, static, sources := newFixture()
	static.menus[0].Items[0].Slug = "info"
	defs := &settingsDefinitions{staticDefinitions: static, settings: Settings{
		Builder: hierarchy.DefaultOptions(),
		Links:   linkgen.Options{EnableRouting: true, BypassURLGenerator: true},
	}}
	svc := newService(store, defs, sources, nil)
	ctx := context.Background()

	_, err := svc.Resolve(ctx, "about/team")
	require.NoError(t, err)
	_, err = svc.Resolve(ctx, "info")
	assert.ErrorIs(t, err, resolver.ErrNotFound)

	defs.set(Settings{
		Builder: hierarchy.Options{OverwriteDuplicates: true, OverrideSlugs: true},
		Links:   linkgen.Options{EnableRouting: true, BypassURLGenerator: true},
	})
	require.NoError(t, svc.Rebuild(ctx))

	m, err := svc.Resolve(ctx, "info/team")
	require.NoError(t, err)
	assert.Equal(t, hierarchy.RecordKey("pages", 2), m.Key)
	_, err = svc.Resolve(ctx, "about/team")
	assert.ErrorIs(t, err, resolver.ErrNotFound)

	link, err := svc.Link(ctx, "page", "history")
	require.NoError(t, err)
	assert.Equal(t, "/info/history", link)
}

func TestService_SettingsOverrideConfig(t *testing.T) {
	store, static, sources := newFixture()
	static.menus[0].Items[0].Slug = "info"
	defs := &settingsDefinitions{staticDefinitions: static, settings: Settings{
		Builder: hierarchy.Options{OverrideSlugs: true},
		Links:   linkgen.Options{EnableRouting: true, BypassURLGenerator: true},
	}}
	config := DefaultConfig()
	config.Builder.OverrideSlugs = false
	svc := New(Deps{Lookup: store, Definitions: defs, Sources: sources}, config, nil)

	_, err := svc.Resolve(context.Background(), "info")
	require.NoError(t, err)
}

func TestParseEventType(t *testing.T) {
	for _, typ := range []EventType{EventSaved, EventDeleted} {
		got, err := ParseEventType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := ParseEventType("unknown")
	assert.Error(t, err)
}
