// Package service owns the current route snapshot. Builds run one at a time
// and publish a complete snapshot atomically; readers always see either the
// previous snapshot or the new one.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/cache"
	"github.com/conduit-lang/hierroutes/internal/content"
	"github.com/conduit-lang/hierroutes/internal/hierarchy"
	"github.com/conduit-lang/hierroutes/internal/linkgen"
	"github.com/conduit-lang/hierroutes/internal/relations"
	"github.com/conduit-lang/hierroutes/internal/resolver"
	"github.com/conduit-lang/hierroutes/internal/telemetry"
)

// Build sources reported in metrics and logs
const (
	SourceCache   = "cache"
	SourceRebuild = "rebuild"
)

// Definitions supplies the menus and rules to import
type Definitions interface {
	Menus(ctx context.Context) ([]hierarchy.Menu, error)
	Rules(ctx context.Context) ([]hierarchy.Rule, error)
}

// Settings are the import and link options a build runs with
type Settings struct {
	Builder hierarchy.Options
	Links   linkgen.Options
}

// SettingsSource is implemented by Definitions whose options live next to
// the menus and rules. They are read again for every build and take
// precedence over Config.Builder and Config.Links.
type SettingsSource interface {
	Settings(ctx context.Context) (Settings, error)
}

// Sources reports when the menu and extension configuration last changed
type Sources interface {
	MenuModTime() (time.Time, error)
	ConfigModTime() (time.Time, error)
}

// Published describes a snapshot that was just swapped in
type Published struct {
	Source        string    `json:"source"`
	Nodes         int       `json:"nodes"`
	RecordRoutes  int       `json:"record_routes"`
	ListingRoutes int       `json:"listing_routes"`
	BuiltAt       time.Time `json:"built_at"`
}

// Observer is told about every published snapshot. Published runs on the
// building goroutine and must not block.
type Observer interface {
	Published(ev Published)
}

// Deps are the collaborators of a Service. Cache, Sources, URLs and
// Observer may be nil.
type Deps struct {
	Lookup      content.Lookup
	Catalog     content.Catalog
	Definitions Definitions
	Sources     Sources
	Cache       *cache.RouteCache
	URLs        linkgen.URLGenerator
	Observer    Observer
}

// Config holds the settings that shape a build and its readers
type Config struct {
	Builder      hierarchy.Options
	Links        linkgen.Options
	Resolver     resolver.Options
	CacheEnabled bool
}

// DefaultConfig returns the default service configuration
func DefaultConfig() Config {
	return Config{
		Builder:      hierarchy.DefaultOptions(),
		Links:        linkgen.DefaultOptions(),
		CacheEnabled: true,
	}
}

// snapshot is everything derived from one Indices value
type snapshot struct {
	index     *hierarchy.Index
	resolver  *resolver.Resolver
	links     *linkgen.Generator
	relations *relations.Facade
	source    string
	builtAt   time.Time
	written   time.Time // cache stamp this snapshot matches, if any
}

// Service builds, caches and serves the route snapshot
type Service struct {
	deps   Deps
	config Config
	logger *zap.Logger

	mu      sync.Mutex // serializes builds
	current atomic.Pointer[snapshot]
	now     func() time.Time
}

// New creates a Service. Nothing is built until the first Build or read.
func New(deps Deps, config Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:   deps,
		config: config,
		logger: logger.Named("service"),
		now:    time.Now,
	}
}

// Build makes sure a snapshot consistent with the sources is published.
// With useCache a fresh route cache (or, without a cache, an in-process
// snapshot newer than both sources) is reused; otherwise the hierarchy is
// rebuilt from the definitions.
func (s *Service) Build(ctx context.Context, useCache bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if useCache {
		reused, err := s.reuse(ctx)
		if err != nil {
			return err
		}
		if reused {
			return nil
		}
	}
	return s.rebuild(ctx)
}

// Rebuild rebuilds unconditionally
func (s *Service) Rebuild(ctx context.Context) error {
	return s.Build(ctx, false)
}

// reuse keeps or loads a snapshot when the sources have not moved past it
func (s *Service) reuse(ctx context.Context) (bool, error) {
	mods, err := s.modTimes()
	if err != nil {
		return false, err
	}
	cur := s.current.Load()

	if s.deps.Cache == nil || !s.config.CacheEnabled {
		return cur != nil && !newer(mods, cur.builtAt), nil
	}

	stale, err := s.deps.Cache.IsStale(ctx, mods...)
	if err != nil {
		s.logger.Warn("route cache unavailable", zap.Error(err))
		return false, nil
	}
	if stale {
		telemetry.CacheLoads.WithLabelValues("stale").Inc()
		return false, nil
	}

	written, err := s.deps.Cache.Written(ctx)
	if err != nil {
		telemetry.CacheLoads.WithLabelValues("miss").Inc()
		return false, nil
	}
	if cur != nil && cur.written.Equal(written) {
		return true, nil
	}

	ix, err := s.deps.Cache.Load(ctx)
	if err != nil {
		telemetry.CacheLoads.WithLabelValues("miss").Inc()
		if !cache.IsCacheMiss(err) && !errors.Is(err, cache.ErrCorrupt) {
			s.logger.Warn("route cache load failed", zap.Error(err))
		} else {
			s.logger.Debug("route cache miss", zap.Error(err))
		}
		return false, nil
	}
	if err := ix.Validate(); err != nil {
		telemetry.CacheLoads.WithLabelValues("miss").Inc()
		s.logger.Warn("cached indices are inconsistent", zap.Error(err))
		return false, nil
	}

	settings, err := s.settings(ctx)
	if err != nil {
		return false, err
	}
	telemetry.CacheLoads.WithLabelValues("hit").Inc()
	s.publish(ix, SourceCache, written, settings.Links)
	return true, nil
}

// settings returns the options for the next build
func (s *Service) settings(ctx context.Context) (Settings, error) {
	src, ok := s.deps.Definitions.(SettingsSource)
	if !ok {
		return Settings{Builder: s.config.Builder, Links: s.config.Links}, nil
	}
	settings, err := src.Settings(ctx)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

func (s *Service) rebuild(ctx context.Context) error {
	start := time.Now()
	s.logger.Info("rebuilding hierarchy")

	menus, err := s.deps.Definitions.Menus(ctx)
	if err != nil {
		return fmt.Errorf("failed to load menus: %w", err)
	}
	rules, err := s.deps.Definitions.Rules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	settings, err := s.settings(ctx)
	if err != nil {
		return err
	}

	ix, err := hierarchy.NewBuilder(s.deps.Lookup, settings.Builder, s.logger).Build(ctx, menus, rules)
	if err != nil {
		return err
	}

	var written time.Time
	if s.deps.Cache != nil && s.config.CacheEnabled {
		if err := s.deps.Cache.Store(ctx, ix); err != nil {
			s.logger.Warn("failed to write route cache", zap.Error(err))
		} else if written, err = s.deps.Cache.Written(ctx); err != nil {
			written = time.Time{}
		}
	}

	s.publish(ix, SourceRebuild, written, settings.Links)
	telemetry.BuildDuration.Observe(time.Since(start).Seconds())
	s.logger.Info("hierarchy rebuilt",
		zap.Int("nodes", len(ix.Parents)),
		zap.Int("record_routes", len(ix.RecordRoutes)),
		zap.Int("listing_routes", len(ix.ListingRoutes)),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// publish derives every reader from ix and swaps the snapshot in
func (s *Service) publish(ix *hierarchy.Indices, source string, written time.Time, links linkgen.Options) {
	index := hierarchy.NewIndex(ix)
	res := resolver.New(index, s.deps.Lookup, s.config.Resolver, s.logger)
	snap := &snapshot{
		index:     index,
		resolver:  res,
		links:     linkgen.New(index, res.RecordConstraint(), s.deps.Catalog, s.deps.URLs, links),
		relations: relations.New(index, s.deps.Lookup, s.logger),
		source:    source,
		builtAt:   s.now(),
		written:   written,
	}
	s.current.Store(snap)
	telemetry.BuildTotal.WithLabelValues(source).Inc()
	telemetry.BuildNodes.Set(float64(index.Len()))

	if s.deps.Observer != nil {
		s.deps.Observer.Published(Published{
			Source:        source,
			Nodes:         index.Len(),
			RecordRoutes:  len(ix.RecordRoutes),
			ListingRoutes: len(ix.ListingRoutes),
			BuiltAt:       snap.builtAt,
		})
	}
}

func (s *Service) modTimes() ([]time.Time, error) {
	if s.deps.Sources == nil {
		return nil, nil
	}
	menu, err := s.deps.Sources.MenuModTime()
	if err != nil {
		return nil, fmt.Errorf("failed to stat menu definition: %w", err)
	}
	config, err := s.deps.Sources.ConfigModTime()
	if err != nil {
		return nil, fmt.Errorf("failed to stat configuration: %w", err)
	}
	return []time.Time{menu, config}, nil
}

func newer(mods []time.Time, than time.Time) bool {
	for _, m := range mods {
		if m.After(than) {
			return true
		}
	}
	return false
}

// ClearCache removes the persisted route cache
func (s *Service) ClearCache(ctx context.Context) error {
	if s.deps.Cache == nil {
		return nil
	}
	return s.deps.Cache.Clear(ctx)
}

// active returns the current snapshot, building one on first use
func (s *Service) active(ctx context.Context) (*snapshot, error) {
	if cur := s.current.Load(); cur != nil {
		return cur, nil
	}
	if err := s.Build(ctx, true); err != nil {
		return nil, err
	}
	return s.current.Load(), nil
}

// Source reports whether the current snapshot came from the cache or a
// rebuild; empty before the first build
func (s *Service) Source() string {
	if cur := s.current.Load(); cur != nil {
		return cur.source
	}
	return ""
}

// Index returns the current index
func (s *Service) Index(ctx context.Context) (*hierarchy.Index, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return snap.index, nil
}

// Resolver returns the resolver of the current snapshot
func (s *Service) Resolver(ctx context.Context) (*resolver.Resolver, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return snap.resolver, nil
}

// Resolve resolves path against the current snapshot
func (s *Service) Resolve(ctx context.Context, path string) (resolver.Match, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return resolver.Match{}, err
	}
	return snap.resolver.Resolve(ctx, path)
}

// Link generates the path of a record
func (s *Service) Link(ctx context.Context, contentType, idOrSlug string) (string, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return "", err
	}
	return snap.links.Link(contentType, idOrSlug)
}

// URL implements linkgen.URLGenerator over the current snapshot so the
// service can stand in wherever a URL generator is expected
func (s *Service) URL(name string, params map[string]string) (string, error) {
	snap, err := s.active(context.Background())
	if err != nil {
		return "", err
	}
	return snap.links.URL(name, params)
}

// Tree returns the current forest
func (s *Service) Tree(ctx context.Context) ([]hierarchy.TreeNode, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return snap.index.Tree(), nil
}

// Parent returns the hydrated parent of k
func (s *Service) Parent(ctx context.Context, k hierarchy.Key) (relations.Node, bool, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return relations.Node{}, false, err
	}
	return snap.relations.Parent(ctx, k)
}

// Parents returns the hydrated ancestors of k, immediate parent first
func (s *Service) Parents(ctx context.Context, k hierarchy.Key) ([]relations.Node, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return snap.relations.Parents(ctx, k)
}

// Children returns the hydrated children of k
func (s *Service) Children(ctx context.Context, k hierarchy.Key) ([]relations.Node, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return snap.relations.Children(ctx, k)
}

// Siblings returns the hydrated siblings of k
func (s *Service) Siblings(ctx context.Context, k hierarchy.Key) ([]relations.Node, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return nil, err
	}
	return snap.relations.Siblings(ctx, k)
}

// Node returns k itself, hydrated
func (s *Service) Node(ctx context.Context, k hierarchy.Key) (relations.Node, bool, error) {
	snap, err := s.active(ctx)
	if err != nil {
		return relations.Node{}, false, err
	}
	return snap.relations.Node(ctx, k)
}
