package hierarchy

import (
	"errors"
	"fmt"
	"sort"
)

// ErrDataIntegrity is returned when the built indices violate the tree
// invariants (a cycle, a dangling parent, or parent/child maps that are not
// inverses of each other)
var ErrDataIntegrity = errors.New("hierarchy data integrity violation")

// IntegrityError describes one invariant violation
type IntegrityError struct {
	Key    Key
	Reason string
}

// Error implements the error interface
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrDataIntegrity, e.Key, e.Reason)
}

// Unwrap makes errors.Is(err, ErrDataIntegrity) hold
func (e *IntegrityError) Unwrap() error {
	return ErrDataIntegrity
}

// Indices is the output of one build. A zero parent in Parents marks a root.
type Indices struct {
	Parents          map[Key]Key      `json:"parents"`
	Children         map[Key][]Key    `json:"children"`
	Slugs            map[Key]string   `json:"slugs"`
	RecordRoutes     map[Key]string   `json:"recordroutes"`
	ListingRoutes    map[Key]string   `json:"listingroutes"`
	ContentTypeRules map[Key][]string `json:"contenttyperules"`
}

// NewIndices returns empty indices
func NewIndices() *Indices {
	return &Indices{
		Parents:          make(map[Key]Key),
		Children:         make(map[Key][]Key),
		Slugs:            make(map[Key]string),
		RecordRoutes:     make(map[Key]string),
		ListingRoutes:    make(map[Key]string),
		ContentTypeRules: make(map[Key][]string),
	}
}

// Route returns the route of k from whichever route map holds it
func (ix *Indices) Route(k Key) (string, bool) {
	if r, ok := ix.RecordRoutes[k]; ok {
		return r, true
	}
	r, ok := ix.ListingRoutes[k]
	return r, ok
}

// Validate checks that Parents and Children are exact inverses, that every
// parent is itself a node and that no parent chain loops.
func (ix *Indices) Validate() error {
	for k, p := range ix.Parents {
		if p.IsZero() {
			continue
		}
		if _, ok := ix.Parents[p]; !ok {
			return &IntegrityError{Key: k, Reason: fmt.Sprintf("parent %s is not a node", p)}
		}
		if n := countKey(ix.Children[p], k); n != 1 {
			return &IntegrityError{Key: k, Reason: fmt.Sprintf("listed %d times under parent %s", n, p)}
		}
	}
	for p, children := range ix.Children {
		for _, c := range children {
			if ix.Parents[c] != p {
				return &IntegrityError{Key: c, Reason: fmt.Sprintf("orphaned child entry under %s", p)}
			}
		}
	}
	for k := range ix.Parents {
		if _, err := ix.Ancestors(k); err != nil {
			return err
		}
	}
	return nil
}

// Ancestors walks Parents upward from k and returns the chain, immediate
// parent first. A loop is reported as an IntegrityError.
func (ix *Indices) Ancestors(k Key) ([]Key, error) {
	var chain []Key
	seen := map[Key]struct{}{k: {}}
	for p := ix.Parents[k]; !p.IsZero(); p = ix.Parents[p] {
		if _, loop := seen[p]; loop {
			return chain, &IntegrityError{Key: k, Reason: fmt.Sprintf("cycle through %s", p)}
		}
		seen[p] = struct{}{}
		chain = append(chain, p)
	}
	return chain, nil
}

func countKey(keys []Key, k Key) int {
	n := 0
	for _, c := range keys {
		if c == k {
			n++
		}
	}
	return n
}

// Index is a read-only view over one Indices value with the reverse
// (route -> key) lookups precomputed. It must not be mutated once built.
type Index struct {
	ix             *Indices
	recordByRoute  map[string]Key
	listingByRoute map[string]Key
}

// NewIndex wraps ix. Where several keys share a route, id keys win over slug
// aliases and, among equals, the smallest key string wins.
func NewIndex(ix *Indices) *Index {
	if ix == nil {
		ix = NewIndices()
	}
	return &Index{
		ix:             ix,
		recordByRoute:  reverse(ix.RecordRoutes),
		listingByRoute: reverse(ix.ListingRoutes),
	}
}

func reverse(routes map[Key]string) map[string]Key {
	out := make(map[string]Key, len(routes))
	for _, k := range sortedKeys(routes) {
		if prev, ok := out[routes[k]]; ok && !(prev.IsAlias() && !k.IsAlias()) {
			continue
		}
		out[routes[k]] = k
	}
	return out
}

// sortedKeys returns the keys of m ordered by their string form
func sortedKeys[V any](m map[Key]V) []Key {
	keys := make([]Key, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortKeys(keys)
	return keys
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})
}

// Indices returns the underlying indices. Callers must not modify them.
func (x *Index) Indices() *Indices {
	return x.ix
}

// Len returns the number of nodes
func (x *Index) Len() int {
	return len(x.ix.Parents)
}

// Has reports whether k is a node
func (x *Index) Has(k Key) bool {
	_, ok := x.ix.Parents[k]
	return ok
}

// RecordKeyForRoute finds the record key whose route equals route
func (x *Index) RecordKeyForRoute(route string) (Key, bool) {
	k, ok := x.recordByRoute[route]
	return k, ok
}

// ListingKeyForRoute finds the listing key whose route equals route
func (x *Index) ListingKeyForRoute(route string) (Key, bool) {
	k, ok := x.listingByRoute[route]
	return k, ok
}

// RecordRoute returns the route registered for a record key or slug alias
func (x *Index) RecordRoute(k Key) (string, bool) {
	r, ok := x.ix.RecordRoutes[k]
	return r, ok
}

// Route returns the route of k from either route map
func (x *Index) Route(k Key) (string, bool) {
	return x.ix.Route(k)
}

// Parent returns the parent of k; ok is false for roots and unknown keys
func (x *Index) Parent(k Key) (Key, bool) {
	p, ok := x.ix.Parents[k]
	if !ok || p.IsZero() {
		return Key{}, false
	}
	return p, true
}

// Ancestors returns the parent chain of k, immediate parent first
func (x *Index) Ancestors(k Key) ([]Key, error) {
	return x.ix.Ancestors(k)
}

// Children returns the direct children of k in import order
func (x *Index) Children(k Key) []Key {
	children := x.ix.Children[k]
	out := make([]Key, len(children))
	copy(out, children)
	return out
}

// Siblings returns every other node sharing k's parent. Children of a
// parent keep import order; roots are ordered by key.
func (x *Index) Siblings(k Key) []Key {
	parent, ok := x.ix.Parents[k]
	if !ok {
		return nil
	}

	var out []Key
	for other, p := range x.ix.Parents {
		if p == parent && other != k {
			out = append(out, other)
		}
	}
	if parent.IsZero() {
		sortKeys(out)
		return out
	}

	pos := make(map[Key]int, len(x.ix.Children[parent]))
	for i, c := range x.ix.Children[parent] {
		pos[c] = i
	}
	sort.Slice(out, func(i, j int) bool { return pos[out[i]] < pos[out[j]] })
	return out
}

// Roots returns the nodes without a parent, ordered by key
func (x *Index) Roots() []Key {
	var roots []Key
	for k, p := range x.ix.Parents {
		if p.IsZero() {
			roots = append(roots, k)
		}
	}
	sortKeys(roots)
	return roots
}

// ContentTypeRules returns the content types allowed under parent
func (x *Index) ContentTypeRules(parent Key) []string {
	return x.ix.ContentTypeRules[parent]
}

// RuleParents returns every key that has content-type rules, ordered by key
func (x *Index) RuleParents() []Key {
	return sortedKeys(x.ix.ContentTypeRules)
}

// RecordRoutes returns every distinct record route, sorted
func (x *Index) RecordRoutes() []string {
	return sortedRoutes(x.recordByRoute)
}

// ListingRoutes returns every distinct listing route, sorted
func (x *Index) ListingRoutes() []string {
	return sortedRoutes(x.listingByRoute)
}

func sortedRoutes(m map[string]Key) []string {
	out := make([]string, 0, len(m))
	for r := range m {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// TreeNode is one node of the exported forest
type TreeNode struct {
	Key      Key        `json:"key"`
	Children []TreeNode `json:"children,omitempty"`
}

// Tree returns the forest of root keys with their nested children
func (x *Index) Tree() []TreeNode {
	roots := x.Roots()
	out := make([]TreeNode, 0, len(roots))
	for _, r := range roots {
		out = append(out, x.subtree(r, map[Key]bool{}))
	}
	return out
}

func (x *Index) subtree(k Key, visiting map[Key]bool) TreeNode {
	node := TreeNode{Key: k}
	visiting[k] = true
	for _, c := range x.ix.Children[k] {
		if visiting[c] {
			continue
		}
		node.Children = append(node.Children, x.subtree(c, visiting))
	}
	delete(visiting, k)
	return node
}
