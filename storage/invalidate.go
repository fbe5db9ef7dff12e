package storage

import (
	"path/filepath"

	"github.com/peak/s5nav/cache"
)

const (
	localIdentity = "fs"

	opList     = "list"
	opBuckets  = "buckets"
	opVersions = "versioning"
)

// invalidateLocal drops the cached listings of dir and all of its ancestors.
// Writing a file may create intermediate directories, which changes the
// listing of every parent up to the first existing one.
func invalidateLocal(caches *cache.Session, dir string) {
	if caches == nil {
		return
	}

	dir = absolute(dir)
	for {
		caches.Invalidate(cache.ContainerPattern(localIdentity, dir))

		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

// invalidateRemote drops every cached result of the given bucket.
func invalidateRemote(caches *cache.Session, identity, bucket string) {
	if caches == nil {
		return
	}
	caches.Invalidate(cache.ContainerPattern(identity, bucket))
}

type listing struct {
	dirs  []Entry
	files []Entry
}

func cachedListing(caches *cache.Session, key string) (listing, bool) {
	if caches == nil {
		return listing{}, false
	}
	v, ok := caches.Listings.Get(key)
	if !ok {
		return listing{}, false
	}
	l, ok := v.(listing)
	return l, ok
}

func storeListing(caches *cache.Session, key string, l listing) {
	if caches == nil {
		return
	}
	caches.Listings.Put(key, l)
}
