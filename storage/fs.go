package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/karrick/godirwalk"
	"github.com/termie/go-shutil"

	"github.com/peak/s5nav/cache"
)

var _ Backend = (*Filesystem)(nil)

// Filesystem is the Backend implementation of a local filesystem. A
// container is a directory and a key is a slash separated path relative to
// it.
type Filesystem struct {
	caches *cache.Session

	mu      sync.Mutex
	lastErr error
}

// NewFilesystem creates a Filesystem backend sharing the given caches. caches
// may be nil.
func NewFilesystem(caches *cache.Session) *Filesystem {
	return &Filesystem{caches: caches}
}

// Kind implements Backend.
func (f *Filesystem) Kind() Kind { return Local }

// Identity implements Backend.
func (f *Filesystem) Identity() string { return localIdentity }

// LastError returns the error of the last failed List call.
func (f *Filesystem) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}

func (f *Filesystem) setLastError(err error) {
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
}

// absPath returns the absolute path of key in container. Cache keys are built
// from it, so every spelling of a directory maps to the same entry.
func absPath(container, key string) string {
	return absolute(filepath.Join(container, filepath.FromSlash(key)))
}

func absolute(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// List returns the directories and files directly under container/prefix.
func (f *Filesystem) List(ctx context.Context, container, prefix string) ([]Entry, []Entry) {
	dir := absPath(container, prefix)
	key := cache.Key(localIdentity, dir, "", opList)

	if l, ok := cachedListing(f.caches, key); ok {
		return cloneEntries(l.dirs), cloneEntries(l.files)
	}

	dirents, err := godirwalk.ReadDirents(dir, nil)
	if err != nil {
		f.setLastError(err)
		return nil, nil
	}
	sort.Slice(dirents, func(i, j int) bool {
		return dirents[i].Name() < dirents[j].Name()
	})

	var l listing
	for _, de := range dirents {
		pathname := filepath.Join(dir, de.Name())
		// follow symlinks; dangling ones are not listed
		st, err := os.Stat(pathname)
		if err != nil {
			continue
		}

		mod := st.ModTime()
		entry := Entry{
			Ref:     LocalRef(pathname),
			Name:    de.Name(),
			IsDir:   st.IsDir(),
			ModTime: &mod,
		}
		if entry.IsDir {
			l.dirs = append(l.dirs, entry)
			continue
		}
		if !st.Mode().IsRegular() {
			continue
		}
		entry.Size = st.Size()
		l.files = append(l.files, entry)
	}

	f.setLastError(nil)
	storeListing(f.caches, key, l)
	return cloneEntries(l.dirs), cloneEntries(l.files)
}

// Exists returns the Metadata of the given path or nil if it doesn't exist.
func (f *Filesystem) Exists(ctx context.Context, container, key string) (*Metadata, error) {
	st, err := os.Stat(absPath(container, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	mod := st.ModTime()
	return &Metadata{
		Size:    st.Size(),
		ModTime: &mod,
	}, nil
}

// ReadTo copies the given file to localPath.
func (f *Filesystem) ReadTo(ctx context.Context, container, key, localPath, _ string) error {
	return f.copyFile(absPath(container, key), localPath)
}

// WriteFrom copies localPath into container/key.
func (f *Filesystem) WriteFrom(ctx context.Context, localPath, container, key string) error {
	return f.copyFile(localPath, absPath(container, key))
}

// Copy copies a file within the filesystem.
func (f *Filesystem) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey, _ string) error {
	return f.copyFile(absPath(srcContainer, srcKey), absPath(dstContainer, dstKey))
}

func (f *Filesystem) copyFile(src, dst string) error {
	dir := filepath.Dir(dst)
	if err := f.MkdirAll(dir); err != nil {
		return err
	}

	_, err := shutil.Copy(src, dst, true)
	if err != nil {
		return err
	}

	invalidateLocal(f.caches, dir)
	return nil
}

// Delete deletes given file.
func (f *Filesystem) Delete(ctx context.Context, container, key, _ string) error {
	pathname := absPath(container, key)
	if err := os.Remove(pathname); err != nil {
		return err
	}

	invalidateLocal(f.caches, filepath.Dir(pathname))
	return nil
}

// ListVersions returns nothing; the filesystem is not versioned.
func (f *Filesystem) ListVersions(ctx context.Context, container, key string) ([]Version, error) {
	return nil, nil
}

// Walk returns all regular files below container/prefix in lexical order.
// Entry names are relative to the walked directory.
func (f *Filesystem) Walk(ctx context.Context, container, prefix string) ([]Entry, error) {
	root := absPath(container, prefix)

	var entries []Entry
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(pathname string, dirent *godirwalk.Dirent) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			// we're interested in files
			if dirent.IsDir() {
				return nil
			}

			st, err := os.Stat(pathname)
			if err != nil {
				return err
			}
			if !st.Mode().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(root, pathname)
			if err != nil {
				return err
			}

			mod := st.ModTime()
			entries = append(entries, Entry{
				Ref:     LocalRef(pathname),
				Name:    filepath.ToSlash(rel),
				Size:    st.Size(),
				ModTime: &mod,
			})
			return nil
		},
		FollowSymbolicLinks: true,
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// RemoveContainer removes the directory tree rooted at container/prefix. It
// only removes directories; if a file is left anywhere in the tree the
// removal fails and the tree is kept.
func (f *Filesystem) RemoveContainer(ctx context.Context, container, prefix string) error {
	root := absPath(container, prefix)

	var dirs []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(pathname string, dirent *godirwalk.Dirent) error {
			if dirent.IsDir() {
				dirs = append(dirs, pathname)
			}
			return nil
		},
	})
	if err != nil {
		return err
	}

	defer invalidateLocal(f.caches, filepath.Dir(root))

	// children come after their parents in walk order
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := os.Remove(dirs[i]); err != nil {
			return err
		}
		invalidateLocal(f.caches, dirs[i])
	}
	return nil
}

// MkdirAll creates path with its missing parents and drops the listings
// that change because of it.
func (f *Filesystem) MkdirAll(path string) error {
	if err := os.MkdirAll(path, os.ModePerm); err != nil {
		return err
	}
	invalidateLocal(f.caches, filepath.Dir(path))
	return nil
}

func cloneEntries(entries []Entry) []Entry {
	if entries == nil {
		return nil
	}
	return append([]Entry(nil), entries...)
}
