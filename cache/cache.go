// Package cache implements the bounded listing caches that sit in front of
// storage list and metadata calls.
package cache

import (
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultListingSize is the capacity of the listing cache.
	DefaultListingSize = 256

	// DefaultMetadataSize is the capacity of the bucket/metadata cache.
	DefaultMetadataSize = 32
)

// Key builds the composite cache key of a call. Invalidation matches on
// substrings of this key, so the separators are part of the contract.
func Key(identity, container, prefix, op string) string {
	return fmt.Sprintf("%s|%s|%s|%s", identity, container, prefix, op)
}

// ContainerPattern returns the pattern that matches every key of the given
// container.
func ContainerPattern(identity, container string) string {
	return fmt.Sprintf("%s|%s|", identity, container)
}

// Cache is a least-recently-used cache of previously computed results. It is
// safe for concurrent use.
type Cache struct {
	lru *lru.Cache[string, any]
}

// New creates a cache holding at most size entries.
func New(size int) (*Cache, error) {
	if size <= 0 {
		return nil, fmt.Errorf("cache size must be a positive value")
	}

	l, err := lru.New[string, any](size)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Get returns the value stored for key and marks it most recently used.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	return c.lru.Get(key)
}

// Put stores value. If the cache is full, the least recently used entry is
// evicted.
func (c *Cache) Put(key string, value any) {
	if c == nil {
		return
	}
	c.lru.Add(key, value)
}

// Invalidate removes every key containing pattern. An empty pattern clears
// the cache.
func (c *Cache) Invalidate(pattern string) int {
	if c == nil {
		return 0
	}

	if pattern == "" {
		n := c.lru.Len()
		c.lru.Purge()
		return n
	}

	var removed int
	for _, key := range c.lru.Keys() {
		if strings.Contains(key, pattern) {
			if c.lru.Remove(key) {
				removed++
			}
		}
	}
	return removed
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// Keys returns the cached keys from least to most recently used.
func (c *Cache) Keys() []string {
	if c == nil {
		return nil
	}
	return c.lru.Keys()
}

// Session holds the caches shared by every backend of one process: one for
// listings and a smaller one for bucket and metadata results.
type Session struct {
	Listings *Cache
	Metadata *Cache
}

// NewSession creates the caches of a session. Zero sizes fall back to the
// defaults.
func NewSession(listingSize, metadataSize int) (*Session, error) {
	if listingSize == 0 {
		listingSize = DefaultListingSize
	}
	if metadataSize == 0 {
		metadataSize = DefaultMetadataSize
	}

	listings, err := New(listingSize)
	if err != nil {
		return nil, fmt.Errorf("listing cache: %w", err)
	}
	metadata, err := New(metadataSize)
	if err != nil {
		return nil, fmt.Errorf("metadata cache: %w", err)
	}
	return &Session{Listings: listings, Metadata: metadata}, nil
}

// Invalidate applies pattern to both caches.
func (s *Session) Invalidate(pattern string) {
	if s == nil {
		return
	}
	s.Listings.Invalidate(pattern)
	s.Metadata.Invalidate(pattern)
}
