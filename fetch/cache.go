package fetch

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	maxIdentityLen = 200
	lruSize        = 256
)

var unsafeChars = regexp.MustCompile(`[^\w\-_.=]`)

// Identity derives the deterministic cache key for a request: the URL
// without its scheme plus the sorted, stringified query parameters. The
// same URL/params pair always yields the same identity regardless of
// parameter order.
func Identity(rawURL string, params url.Values) string {
	s := strings.TrimPrefix(rawURL, "https://")
	s = strings.TrimPrefix(s, "http://")

	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var b strings.Builder
		b.WriteString(s)
		for _, k := range keys {
			for _, v := range params[k] {
				b.WriteString("_")
				b.WriteString(k)
				b.WriteString("=")
				b.WriteString(v)
			}
		}
		s = b.String()
	}

	s = unsafeChars.ReplaceAllString(s, "_")

	// Keep filenames below filesystem limits without losing uniqueness.
	if len(s) > maxIdentityLen {
		h := fnv.New64a()
		h.Write([]byte(s))
		s = s[:maxIdentityLen-10] + strconv.FormatUint(h.Sum64(), 16)
	}
	return s
}

// Cache stores raw response bodies on disk, one file per request identity,
// with a small in-process LRU in front to avoid re-reading hot entries.
// Entries are written once and never expired automatically.
type Cache struct {
	dir string
	lru *lru.Cache[string, []byte]
}

// NewCache creates the cache directory on demand.
func NewCache(dir string) (*Cache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory %q: %w", dir, err)
	}
	recent, err := lru.New[string, []byte](lruSize)
	if err != nil {
		return nil, fmt.Errorf("create lru: %w", err)
	}
	return &Cache{dir: dir, lru: recent}, nil
}

func (c *Cache) path(identity string) string {
	return filepath.Join(c.dir, identity+".html")
}

// Get returns the cached body for an identity, if present.
func (c *Cache) Get(identity string) ([]byte, bool) {
	if body, ok := c.lru.Get(identity); ok {
		return body, true
	}
	body, err := os.ReadFile(c.path(identity))
	if err != nil {
		return nil, false
	}
	c.lru.Add(identity, body)
	return body, true
}

// Put persists a body for an identity. Concurrent writers to the same
// identity are harmless: content at a given identity is referentially
// stable, so the duplicate write is identical.
func (c *Cache) Put(identity string, body []byte) error {
	if err := os.WriteFile(c.path(identity), body, 0o644); err != nil {
		return fmt.Errorf("write cache entry %q: %w", identity, err)
	}
	c.lru.Add(identity, body)
	return nil
}
