// Package content defines the contracts the hierarchy consumes from the
// content store: record lookup by path or key, content queries and the
// content-type catalog.
package content

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// ErrNotFound is returned when a record cannot be found
var ErrNotFound = errors.New("content not found")

// StatusPublished is the publish status of a live record
const StatusPublished = "published"

// Record is a single content record
type Record struct {
	ContentType string `json:"contenttype"` // plural content-type slug
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Status      string `json:"status"`
}

// Published reports whether the record is live
func (r Record) Published() bool {
	return r.Status == StatusPublished
}

// Kind classifies the outcome of a path lookup
type Kind int

const (
	// KindNotFound means the path matched nothing
	KindNotFound Kind = iota
	// KindRecord means the path matched exactly one record
	KindRecord
	// KindAmbiguous means the path matched a set of records
	KindAmbiguous
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindAmbiguous:
		return "ambiguous"
	default:
		return "not_found"
	}
}

// Result is the tagged outcome of FetchByPath
type Result struct {
	Kind    Kind
	Record  Record   // set when Kind is KindRecord
	Records []Record // set when Kind is KindAmbiguous
}

// Found wraps a single record
func Found(r Record) Result {
	return Result{Kind: KindRecord, Record: r}
}

// Ambiguous wraps a set of records matched by one path
func Ambiguous(rs []Record) Result {
	return Result{Kind: KindAmbiguous, Records: rs}
}

// Missing is the result of a path that matched nothing
func Missing() Result {
	return Result{Kind: KindNotFound}
}

// Lookup is the content store as seen by the hierarchy
type Lookup interface {
	// FetchByPath resolves a content path such as "pages/1", "pages/about"
	// or "entries" to one record, a set of records, or nothing
	FetchByPath(ctx context.Context, path string) (Result, error)

	// FetchByKey fetches one record by content type and numeric id or slug.
	// Returns ErrNotFound when the record does not exist.
	FetchByKey(ctx context.Context, contentType, idOrSlug string) (Record, error)

	// Query runs an opaque content query and returns the matching records
	Query(ctx context.Context, query string, params map[string]any) ([]Record, error)
}

// ContentType is one entry of the content-type catalog
type ContentType struct {
	Key          string `json:"key" mapstructure:"key"`
	Name         string `json:"name" mapstructure:"name"`
	Slug         string `json:"slug" mapstructure:"slug"`
	SingularSlug string `json:"singular_slug" mapstructure:"singular_slug"`
}

// Catalog enumerates the configured content types
type Catalog interface {
	ContentTypes() []ContentType
}

// StaticCatalog is a fixed list of content types
type StaticCatalog []ContentType

// ContentTypes implements Catalog
func (c StaticCatalog) ContentTypes() []ContentType {
	return c
}

// PluralSlug normalizes a singular content-type slug to its plural slug.
// Slugs that match no singular form are returned unchanged.
func PluralSlug(catalog Catalog, slug string) string {
	if catalog == nil {
		return slug
	}
	for _, ct := range catalog.ContentTypes() {
		if ct.SingularSlug != slug {
			continue
		}
		if ct.Slug != "" {
			return ct.Slug
		}
		return ct.Key
	}
	return slug
}

// SplitPath splits a content path into its trimmed, non-empty segments
func SplitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// ParseID returns the numeric record id in s, if s is one
func ParseID(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
