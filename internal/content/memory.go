package content

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// MemoryStore is an in-memory Lookup, used in development and tests
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]Record // content type -> records ordered by id
	types   map[string]struct{}
}

// NewMemoryStore creates a store holding the given records
func NewMemoryStore(records ...Record) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string][]Record),
		types:   make(map[string]struct{}),
	}
	for _, r := range records {
		s.Put(r)
	}
	return s
}

// Define registers a content type that may have no records yet
func (s *MemoryStore) Define(contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.types[contentType] = struct{}{}
}

// Put inserts or replaces a record (matched by content type and id)
func (s *MemoryStore) Put(r Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.types[r.ContentType] = struct{}{}
	list := s.records[r.ContentType]
	for i := range list {
		if list[i].ID == r.ID {
			list[i] = r
			return
		}
	}
	list = append(list, r)
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	s.records[r.ContentType] = list
}

// Delete removes a record, reporting whether it existed
func (s *MemoryStore) Delete(contentType string, id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.records[contentType]
	for i := range list {
		if list[i].ID == id {
			s.records[contentType] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// FetchByPath implements Lookup
func (s *MemoryStore) FetchByPath(ctx context.Context, path string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	parts := SplitPath(path)
	switch len(parts) {
	case 1:
		s.mu.RLock()
		defer s.mu.RUnlock()
		if _, ok := s.types[parts[0]]; !ok {
			return Missing(), nil
		}
		return Ambiguous(cloneRecords(s.records[parts[0]])), nil
	case 2:
		r, err := s.FetchByKey(ctx, parts[0], parts[1])
		if err == ErrNotFound {
			return Missing(), nil
		}
		if err != nil {
			return Result{}, err
		}
		return Found(r), nil
	case 3:
		limit, err := strconv.Atoi(parts[2])
		if err != nil || limit < 0 {
			return Missing(), nil
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		if _, ok := s.types[parts[0]]; !ok {
			return Missing(), nil
		}
		list := cloneRecords(s.records[parts[0]])
		switch parts[1] {
		case "latest":
			sort.Slice(list, func(i, j int) bool { return list[i].ID > list[j].ID })
		case "first":
		default:
			return Missing(), nil
		}
		if limit < len(list) {
			list = list[:limit]
		}
		return Ambiguous(list), nil
	default:
		return Missing(), nil
	}
}

// FetchByKey implements Lookup
func (s *MemoryStore) FetchByKey(ctx context.Context, contentType, idOrSlug string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, numeric := ParseID(idOrSlug)
	for _, r := range s.records[contentType] {
		if numeric && r.ID == id {
			return r, nil
		}
		if !numeric && r.Slug == idOrSlug {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

// Query implements Lookup. The query is a comma separated list of content
// types, optionally wrapped in parentheses. Parameters filter on the record
// fields id, slug, title and status; "limit" caps the result and "order"
// sorts by id or title (prefix with "-" to reverse).
func (s *MemoryStore) Query(ctx context.Context, query string, params map[string]any) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	types := parseQueryTypes(query)
	if len(types) == 0 {
		return nil, fmt.Errorf("empty content query")
	}

	s.mu.RLock()
	var out []Record
	for _, ct := range types {
		for _, r := range s.records[ct] {
			if matchesParams(r, params) {
				out = append(out, r)
			}
		}
	}
	s.mu.RUnlock()

	if order, ok := params["order"].(string); ok && order != "" {
		sortRecords(out, order)
	}
	if limit, ok := toInt(params["limit"]); ok && limit >= 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// parseQueryTypes splits "(pages, entries)" into its content types
func parseQueryTypes(query string) []string {
	query = strings.TrimSpace(query)
	query = strings.TrimSuffix(strings.TrimPrefix(query, "("), ")")
	var types []string
	for _, t := range strings.Split(query, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}

func matchesParams(r Record, params map[string]any) bool {
	for k, v := range params {
		want := fmt.Sprint(v)
		switch k {
		case "id":
			if strconv.FormatInt(r.ID, 10) != want {
				return false
			}
		case "slug":
			if r.Slug != want {
				return false
			}
		case "title":
			if r.Title != want {
				return false
			}
		case "status":
			if r.Status != want {
				return false
			}
		}
	}
	return true
}

func sortRecords(rs []Record, order string) {
	desc := strings.HasPrefix(order, "-")
	field := strings.TrimPrefix(order, "-")
	less := func(a, b Record) bool {
		if field == "title" {
			return a.Title < b.Title
		}
		return a.ID < b.ID
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if desc {
			return less(rs[j], rs[i])
		}
		return less(rs[i], rs[j])
	})
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(n)
		return i, err == nil
	default:
		return 0, false
	}
}

func cloneRecords(rs []Record) []Record {
	if rs == nil {
		return []Record{}
	}
	out := make([]Record, len(rs))
	copy(out, rs)
	return out
}
