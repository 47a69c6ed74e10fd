package resolver

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

const (
	// MaxPatternLength is the longest literal alternation handed to a
	// pattern-based route table before the values are split into groups
	MaxPatternLength = 30000

	// ShardSize is the number of values per group once a constraint is sharded
	ShardSize = 100

	// neverMatch is the pattern of an empty constraint
	neverMatch = "$."
)

// Constraint is the set of literal values one path parameter may take.
// Match answers membership with a map lookup. The pattern forms exist for
// route tables that can only express constraints as regular expressions;
// once the full alternation exceeds MaxPatternLength it is exposed as
// ShardSize-value groups instead.
type Constraint struct {
	values    []string
	set       map[string]int // value -> group index
	maxLen    int
	shardSize int

	pattern string
	groups  []string

	compileOnce sync.Once
	compiled    []*regexp.Regexp
}

// NewConstraint builds a constraint with the default limits
func NewConstraint(values []string) *Constraint {
	return NewConstraintWithLimits(values, MaxPatternLength, ShardSize)
}

// NewConstraintWithLimits builds a constraint with a custom pattern length
// limit and group size. Values are de-duplicated and sorted.
func NewConstraintWithLimits(values []string, maxLen, shardSize int) *Constraint {
	if shardSize <= 0 {
		shardSize = ShardSize
	}

	distinct := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		distinct = append(distinct, v)
	}
	sort.Strings(distinct)

	c := &Constraint{
		values:    distinct,
		set:       make(map[string]int, len(distinct)),
		maxLen:    maxLen,
		shardSize: shardSize,
		pattern:   alternation(distinct),
	}

	if len(c.pattern) > maxLen {
		for start := 0; start < len(distinct); start += shardSize {
			end := min(start+shardSize, len(distinct))
			for _, v := range distinct[start:end] {
				c.set[v] = len(c.groups)
			}
			c.groups = append(c.groups, alternation(distinct[start:end]))
		}
	} else {
		for _, v := range distinct {
			c.set[v] = 0
		}
		c.groups = []string{c.pattern}
	}
	return c
}

// alternation joins quoted values with "|", or returns the never-matching
// pattern for an empty set
func alternation(values []string) string {
	if len(values) == 0 {
		return neverMatch
	}
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = regexp.QuoteMeta(v)
	}
	return strings.Join(quoted, "|")
}

// Len returns the number of distinct values
func (c *Constraint) Len() int {
	return len(c.values)
}

// Values returns the sorted distinct values
func (c *Constraint) Values() []string {
	out := make([]string, len(c.values))
	copy(out, c.values)
	return out
}

// Match reports whether s is one of the values
func (c *Constraint) Match(s string) bool {
	_, ok := c.set[s]
	return ok
}

// Group returns the index of the group holding s
func (c *Constraint) Group(s string) (int, bool) {
	i, ok := c.set[s]
	return i, ok
}

// Pattern returns the full alternation over every value
func (c *Constraint) Pattern() string {
	return c.pattern
}

// Sharded reports whether the full alternation exceeds the length limit
func (c *Constraint) Sharded() bool {
	return len(c.groups) > 1 || len(c.pattern) > c.maxLen
}

// Groups returns the alternation of each group. An unsharded constraint has
// exactly one group equal to Pattern.
func (c *Constraint) Groups() []string {
	out := make([]string, len(c.groups))
	copy(out, c.groups)
	return out
}

// MatchGroup tries each group pattern in order, anchored at both ends, and
// returns the index of the first one matching s
func (c *Constraint) MatchGroup(s string) (int, bool) {
	c.compileOnce.Do(func() {
		c.compiled = make([]*regexp.Regexp, len(c.groups))
		for i, g := range c.groups {
			c.compiled[i] = regexp.MustCompile(`^(?:` + g + `)$`)
		}
	})
	for i, re := range c.compiled {
		if re.MatchString(s) {
			return i, true
		}
	}
	return 0, false
}
