package hierarchy

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	known := func(ct string) bool { return ct == "pages" }

	tests := []struct {
		name string
		in   string
		want Key
	}{
		{"numeric id", "pages/1", RecordKey("pages", 1)},
		{"numeric id unknown type", "/things/7/", RecordKey("things", 7)},
		{"slug of known type", "pages/about", SlugKey("pages", "about")},
		{"slug of unknown type", "news/today", ListingKey("news/today")},
		{"single segment", "entries", ListingKey("entries")},
		{"deep path", "pages/1/extra", ListingKey("pages/1/extra")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseKey(tt.in, known))
		})
	}
}

func TestKey_Predicates(t *testing.T) {
	assert.True(t, Key{}.IsZero())
	assert.Equal(t, "", Key{}.String())

	id := RecordKey("pages", 3)
	assert.True(t, id.IsRecord())
	assert.False(t, id.IsAlias())
	assert.Equal(t, "pages/3", id.String())

	alias := SlugKey("pages", "about")
	assert.True(t, alias.IsAlias())

	listing := ListingKey("/news/")
	assert.True(t, listing.IsListing())
	assert.False(t, listing.IsAlias())
	assert.Equal(t, "news", listing.String())
	assert.Equal(t, "listing", listing.Kind.String())
}

func TestKey_TextRoundTrip(t *testing.T) {
	keys := []Key{
		{},
		RecordKey("pages", 42),
		SlugKey("pages", "a/b"),
		SlugKey("odd/type", "x"),
		ListingKey("entries/archive"),
	}

	for _, k := range keys {
		b, err := k.MarshalText()
		require.NoError(t, err)

		var got Key
		require.NoError(t, got.UnmarshalText(b))
		assert.Equal(t, k, got, string(b))
	}

	// escaped slashes keep distinct keys distinct
	a, _ := SlugKey("a/b", "c").MarshalText()
	b, _ := SlugKey("a", "b/c").MarshalText()
	assert.NotEqual(t, string(a), string(b))
}

func TestKey_UnmarshalInvalid(t *testing.T) {
	var k Key
	assert.Error(t, k.UnmarshalText([]byte("x:whatever")))
	assert.Error(t, k.UnmarshalText([]byte("r:noslash")))
	assert.Error(t, k.UnmarshalText([]byte("r:pages/%zz")))
}

func TestKey_JSONMapKeys(t *testing.T) {
	in := map[Key]Key{
		RecordKey("pages", 2): RecordKey("pages", 1),
		RecordKey("pages", 1): {},
	}
	b, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"r:pages/1":"","r:pages/2":"r:pages/1"}`, string(b))

	var out map[Key]Key
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, in, out)
}
