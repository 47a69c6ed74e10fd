package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/hierarchy"
)

// Blob names of the persisted indices
const (
	BlobParents          = "parents"
	BlobChildren         = "children"
	BlobSlugs            = "slugs"
	BlobRecordRoutes     = "recordroutes"
	BlobListingRoutes    = "listingroutes"
	BlobContentTypeRules = "contenttyperules"

	// BlobWritten holds the time of the last complete write
	BlobWritten = "written"
)

// ErrCorrupt is returned by Load when a blob is present but does not decode
var ErrCorrupt = errors.New("route cache corrupt")

// RouteCache reads and writes the six index blobs plus a write stamp
type RouteCache struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRouteCache creates a RouteCache over store. ttl is passed to every Set.
func NewRouteCache(store Store, ttl time.Duration, logger *zap.Logger) *RouteCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RouteCache{
		store:  store,
		ttl:    ttl,
		logger: logger.Named("cache"),
		now:    time.Now,
	}
}

// blobs pairs each blob name with the index field it persists
func blobs(ix *hierarchy.Indices) []struct {
	name string
	ptr  any
} {
	return []struct {
		name string
		ptr  any
	}{
		{BlobParents, &ix.Parents},
		{BlobChildren, &ix.Children},
		{BlobSlugs, &ix.Slugs},
		{BlobRecordRoutes, &ix.RecordRoutes},
		{BlobListingRoutes, &ix.ListingRoutes},
		{BlobContentTypeRules, &ix.ContentTypeRules},
	}
}

// Store writes every index blob and then the write stamp. The stamp is
// removed first so that an interrupted write reads back as a miss.
func (c *RouteCache) Store(ctx context.Context, ix *hierarchy.Indices) error {
	if err := c.store.Delete(ctx, BlobWritten); err != nil {
		return fmt.Errorf("failed to invalidate route cache: %w", err)
	}

	for _, b := range blobs(ix) {
		data, err := json.Marshal(b.ptr)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", b.name, err)
		}
		if err := c.store.Set(ctx, b.name, data, c.ttl); err != nil {
			return fmt.Errorf("failed to write %s: %w", b.name, err)
		}
	}

	stamp, err := c.now().UTC().MarshalText()
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, BlobWritten, stamp, c.ttl); err != nil {
		return fmt.Errorf("failed to write %s: %w", BlobWritten, err)
	}
	return nil
}

// Load reads the indices back. A missing blob yields ErrCacheMiss and a
// blob that fails to decode yields ErrCorrupt; callers treat both as a
// full miss.
func (c *RouteCache) Load(ctx context.Context) (*hierarchy.Indices, error) {
	ix := &hierarchy.Indices{}
	for _, b := range blobs(ix) {
		data, err := c.store.Get(ctx, b.name)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, b.ptr); err != nil {
			c.logger.Warn("route cache blob does not decode", zap.String("blob", b.name), zap.Error(err))
			return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, b.name, err)
		}
	}
	normalize(ix)
	return ix, nil
}

// normalize replaces JSON nulls with empty maps
func normalize(ix *hierarchy.Indices) {
	empty := hierarchy.NewIndices()
	if ix.Parents == nil {
		ix.Parents = empty.Parents
	}
	if ix.Children == nil {
		ix.Children = empty.Children
	}
	if ix.Slugs == nil {
		ix.Slugs = empty.Slugs
	}
	if ix.RecordRoutes == nil {
		ix.RecordRoutes = empty.RecordRoutes
	}
	if ix.ListingRoutes == nil {
		ix.ListingRoutes = empty.ListingRoutes
	}
	if ix.ContentTypeRules == nil {
		ix.ContentTypeRules = empty.ContentTypeRules
	}
}

// Written returns the time of the last complete Store
func (c *RouteCache) Written(ctx context.Context) (time.Time, error) {
	data, err := c.store.Get(ctx, BlobWritten)
	if err != nil {
		return time.Time{}, err
	}
	var t time.Time
	if err := t.UnmarshalText(data); err != nil {
		return time.Time{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, BlobWritten, err)
	}
	return t, nil
}

// IsStale reports whether the cache was written before any of the given
// source modification times, or has never been written at all
func (c *RouteCache) IsStale(ctx context.Context, sources ...time.Time) (bool, error) {
	written, err := c.Written(ctx)
	if err != nil {
		if IsCacheMiss(err) || errors.Is(err, ErrCorrupt) {
			return true, nil
		}
		return true, err
	}
	for _, mod := range sources {
		if written.Before(mod) {
			return true, nil
		}
	}
	return false, nil
}

// Clear removes every blob of the route cache
func (c *RouteCache) Clear(ctx context.Context) error {
	for _, name := range []string{
		BlobWritten, BlobParents, BlobChildren, BlobSlugs,
		BlobRecordRoutes, BlobListingRoutes, BlobContentTypeRules,
	} {
		if err := c.store.Delete(ctx, name); err != nil {
			return fmt.Errorf("failed to delete %s: %w", name, err)
		}
	}
	return nil
}
