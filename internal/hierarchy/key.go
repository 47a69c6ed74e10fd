package hierarchy

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/conduit-lang/hierroutes/internal/content"
)

// KeyKind tells record keys and listing keys apart
type KeyKind uint8

const (
	// KindRecord keys name a node backed by one content record
	KindRecord KeyKind = iota + 1
	// KindListing keys name a static path with no single backing record
	KindListing
)

// String returns the string representation of KeyKind
func (k KeyKind) String() string {
	switch k {
	case KindRecord:
		return "record"
	case KindListing:
		return "listing"
	default:
		return "none"
	}
}

// Key identifies a node. Record keys carry a content type and either a
// numeric id or, for slug aliases, the record's natural slug. Listing keys
// carry a normalized path. The zero Key means "no node" and is used as the
// parent of roots.
type Key struct {
	Kind        KeyKind
	ContentType string
	ID          string
	Path        string
}

// RecordKey returns the key of a record node
func RecordKey(contentType string, id int64) Key {
	return Key{Kind: KindRecord, ContentType: contentType, ID: strconv.FormatInt(id, 10)}
}

// SlugKey returns the slug alias key of a record
func SlugKey(contentType, slug string) Key {
	return Key{Kind: KindRecord, ContentType: contentType, ID: slug}
}

// ListingKey returns the key of a listing node for the given path
func ListingKey(path string) Key {
	return Key{Kind: KindListing, Path: strings.Trim(path, "/")}
}

// KeyOf returns the record key of r
func KeyOf(r content.Record) Key {
	return RecordKey(r.ContentType, r.ID)
}

// ParseKey parses the "type/id" or listing path notation used on the
// command line. "type/<numeric>" and "type/<slug>" with a known content type
// are record keys; anything else is a listing key.
func ParseKey(s string, isContentType func(string) bool) Key {
	s = strings.Trim(s, "/")
	ct, rest, ok := strings.Cut(s, "/")
	if ok && rest != "" && !strings.Contains(rest, "/") {
		if _, numeric := content.ParseID(rest); numeric {
			return Key{Kind: KindRecord, ContentType: ct, ID: rest}
		}
		if isContentType != nil && isContentType(ct) {
			return SlugKey(ct, rest)
		}
	}
	return ListingKey(s)
}

// IsZero reports whether k is the zero Key
func (k Key) IsZero() bool {
	return k.Kind == 0
}

// IsRecord reports whether k names a record node
func (k Key) IsRecord() bool {
	return k.Kind == KindRecord
}

// IsListing reports whether k names a listing node
func (k Key) IsListing() bool {
	return k.Kind == KindListing
}

// IsAlias reports whether k is a slug alias rather than an id key
func (k Key) IsAlias() bool {
	if k.Kind != KindRecord {
		return false
	}
	_, numeric := content.ParseID(k.ID)
	return !numeric
}

// String returns the "type/id" notation for records and the path for listings
func (k Key) String() string {
	switch k.Kind {
	case KindRecord:
		return k.ContentType + "/" + k.ID
	case KindListing:
		return k.Path
	default:
		return ""
	}
}

// MarshalText encodes k unambiguously: "r:<type>/<id>" or "l:<path>".
// The content type and id are path-escaped so that a slash inside either
// cannot collide with another key.
func (k Key) MarshalText() ([]byte, error) {
	switch k.Kind {
	case KindRecord:
		return []byte("r:" + url.PathEscape(k.ContentType) + "/" + url.PathEscape(k.ID)), nil
	case KindListing:
		return []byte("l:" + k.Path), nil
	default:
		return []byte{}, nil
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (k *Key) UnmarshalText(b []byte) error {
	s := string(b)
	switch {
	case s == "":
		*k = Key{}
	case strings.HasPrefix(s, "l:"):
		*k = Key{Kind: KindListing, Path: s[2:]}
	case strings.HasPrefix(s, "r:"):
		ct, id, ok := strings.Cut(s[2:], "/")
		if !ok {
			return fmt.Errorf("invalid record key %q", s)
		}
		ct, err := url.PathUnescape(ct)
		if err != nil {
			return fmt.Errorf("invalid record key %q: %w", s, err)
		}
		id, err = url.PathUnescape(id)
		if err != nil {
			return fmt.Errorf("invalid record key %q: %w", s, err)
		}
		*k = Key{Kind: KindRecord, ContentType: ct, ID: id}
	default:
		return fmt.Errorf("invalid key %q", s)
	}
	return nil
}
