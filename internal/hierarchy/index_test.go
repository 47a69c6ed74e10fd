package hierarchy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleIndices:
//
//	about (pages/1)
//	├── team (pages/2)
//	│   └── jane (pages/3)
//	└── careers (pages/5)
//	news (listing)
//	└── hello (entries/10)
func sampleIndices() *Indices {
	ix := NewIndices()
	about, team, jane, careers := RecordKey("pages", 1), RecordKey("pages", 2), RecordKey("pages", 3), RecordKey("pages", 5)
	news, hello := ListingKey("news"), RecordKey("entries", 10)

	ix.Parents[about] = Key{}
	ix.Parents[team] = about
	ix.Parents[jane] = team
	ix.Parents[careers] = about
	ix.Parents[news] = Key{}
	ix.Parents[hello] = news

	ix.Children[about] = []Key{team, careers}
	ix.Children[team] = []Key{jane}
	ix.Children[news] = []Key{hello}

	ix.Slugs[about] = "about"
	ix.Slugs[team] = "team"
	ix.Slugs[jane] = "jane"
	ix.Slugs[careers] = "careers"
	ix.Slugs[news] = "news"
	ix.Slugs[hello] = "hello"

	ix.RecordRoutes[about] = "about"
	ix.RecordRoutes[SlugKey("pages", "about")] = "about"
	ix.RecordRoutes[team] = "about/team"
	ix.RecordRoutes[jane] = "about/team/jane"
	ix.RecordRoutes[careers] = "about/careers"
	ix.RecordRoutes[hello] = "news/hello"
	ix.ListingRoutes[news] = "news"

	ix.ContentTypeRules[about] = []string{"events"}
	ix.ContentTypeRules[news] = []string{"entries"}
	return ix
}

func TestIndices_Validate(t *testing.T) {
	require.NoError(t, sampleIndices().Validate())

	t.Run("cycle", func(t *testing.T) {
		ix := sampleIndices()
		about, jane := RecordKey("pages", 1), RecordKey("pages", 3)
		ix.Parents[about] = jane
		ix.Children[jane] = []Key{about}

		err := ix.Validate()
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrDataIntegrity))
		var ie *IntegrityError
		assert.True(t, errors.As(err, &ie))
	})

	t.Run("dangling parent", func(t *testing.T) {
		ix := sampleIndices()
		ix.Parents[RecordKey("pages", 9)] = RecordKey("pages", 404)
		assert.ErrorIs(t, ix.Validate(), ErrDataIntegrity)
	})

	t.Run("child listed twice", func(t *testing.T) {
		ix := sampleIndices()
		about := RecordKey("pages", 1)
		ix.Children[about] = append(ix.Children[about], RecordKey("pages", 2))
		assert.ErrorIs(t, ix.Validate(), ErrDataIntegrity)
	})

	t.Run("orphaned child entry", func(t *testing.T) {
		ix := sampleIndices()
		ix.Children[RecordKey("pages", 3)] = []Key{RecordKey("pages", 1)}
		assert.ErrorIs(t, ix.Validate(), ErrDataIntegrity)
	})
}

func TestIndex_ReverseLookups(t *testing.T) {
	x := NewIndex(sampleIndices())

	k, ok := x.RecordKeyForRoute("about")
	require.True(t, ok)
	assert.Equal(t, RecordKey("pages", 1), k, "id key wins over alias")

	k, ok = x.ListingKeyForRoute("news")
	require.True(t, ok)
	assert.Equal(t, ListingKey("news"), k)

	_, ok = x.RecordKeyForRoute("news")
	assert.False(t, ok)

	assert.Equal(t, []string{"about", "about/careers", "about/team", "about/team/jane", "news/hello"}, x.RecordRoutes())
	assert.Equal(t, []string{"news"}, x.ListingRoutes())
}

func TestIndex_Navigation(t *testing.T) {
	x := NewIndex(sampleIndices())
	about, team, jane, careers := RecordKey("pages", 1), RecordKey("pages", 2), RecordKey("pages", 3), RecordKey("pages", 5)
	news := ListingKey("news")

	assert.Equal(t, 6, x.Len())
	assert.True(t, x.Has(jane))
	assert.False(t, x.Has(SlugKey("pages", "about")))

	p, ok := x.Parent(jane)
	require.True(t, ok)
	assert.Equal(t, team, p)
	_, ok = x.Parent(about)
	assert.False(t, ok)

	chain, err := x.Ancestors(jane)
	require.NoError(t, err)
	assert.Equal(t, []Key{team, about}, chain)

	assert.Equal(t, []Key{team, careers}, x.Children(about))
	assert.Empty(t, x.Children(jane))
	assert.Equal(t, []Key{careers}, x.Siblings(team))
	assert.Equal(t, []Key{news}, x.Siblings(about))
	assert.Nil(t, x.Siblings(RecordKey("pages", 99)))

	assert.Equal(t, []Key{news, about}, x.Roots())
	assert.Equal(t, []Key{news, about}, x.RuleParents())
	assert.Equal(t, []string{"events"}, x.ContentTypeRules(about))
}

func TestIndex_ChildrenIsACopy(t *testing.T) {
	x := NewIndex(sampleIndices())
	about := RecordKey("pages", 1)

	children := x.Children(about)
	children[0] = Key{}
	assert.Equal(t, RecordKey("pages", 2), x.Children(about)[0])
}

func TestIndex_Tree(t *testing.T) {
	tree := NewIndex(sampleIndices()).Tree()
	require.Len(t, tree, 2)

	assert.Equal(t, ListingKey("news"), tree[0].Key)
	assert.Equal(t, RecordKey("entries", 10), tree[0].Children[0].Key)

	about := tree[1]
	assert.Equal(t, RecordKey("pages", 1), about.Key)
	require.Len(t, about.Children, 2)
	assert.Equal(t, RecordKey("pages", 3), about.Children[0].Children[0].Key)
}

func TestNewIndex_Nil(t *testing.T) {
	x := NewIndex(nil)
	assert.Equal(t, 0, x.Len())
	assert.Empty(t, x.Tree())
}
