// Package storage implements operations for s3 and fs.
package storage

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/iancoleman/strcase"
)

const dateFormat = "2006/01/02 15:04:05"

// Kind identifies the storage system a Ref points into.
type Kind int

const (
	// Local is the local filesystem.
	Local Kind = iota
	// Remote is an S3 compatible object store.
	Remote
)

var kindNames = [...]string{
	Local:  "Local",
	Remote: "Remote",
}

// String returns the string representation of Kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return strcase.ToSnake(kindNames[k])
	}
	return "unknown"
}

// Ref is the location of a single entity, either on the local filesystem or
// on the object store. It is a value type and never mutated once created.
type Ref struct {
	Kind Kind `json:"kind"`

	// Path is set for Local refs.
	Path string `json:"path,omitempty"`

	// Bucket, Key and VersionID are set for Remote refs.
	Bucket    string `json:"bucket,omitempty"`
	Key       string `json:"key,omitempty"`
	VersionID string `json:"version_id,omitempty"`
}

// LocalRef creates a Ref for the given filesystem path.
func LocalRef(p string) Ref {
	return Ref{Kind: Local, Path: filepath.Clean(p)}
}

// RemoteRef creates a Ref for the given bucket and key. versionID may be empty.
func RemoteRef(bucket, key, versionID string) Ref {
	return Ref{Kind: Remote, Bucket: bucket, Key: key, VersionID: versionID}
}

// IsRemote reports whether the ref points into the object store.
func (r Ref) IsRemote() bool {
	return r.Kind == Remote
}

// IsBucket reports whether the ref is a whole bucket.
func (r Ref) IsBucket() bool {
	return r.IsRemote() && r.Key == ""
}

// IsPrefix reports whether the remote ref looks like an S3 prefix rather
// than an object.
func (r Ref) IsPrefix() bool {
	return r.IsRemote() && strings.HasSuffix(r.Key, "/")
}

// Container returns the container half of the ref: the bucket for remote refs
// and the parent directory for local refs.
func (r Ref) Container() string {
	if r.IsRemote() {
		return r.Bucket
	}
	return filepath.Dir(r.Path)
}

// Name returns the key relative to Container.
func (r Ref) Name() string {
	if r.IsRemote() {
		return r.Key
	}
	return filepath.Base(r.Path)
}

// Base returns the last element of the ref.
func (r Ref) Base() string {
	if r.IsRemote() {
		if r.Key == "" {
			return r.Bucket
		}
		return path.Base(r.Key)
	}
	return filepath.Base(r.Path)
}

// Join returns a new ref with the slash separated elem appended.
func (r Ref) Join(elem string) Ref {
	if r.IsRemote() {
		key := strings.TrimSuffix(r.Key, "/")
		if key == "" {
			key = strings.TrimPrefix(elem, "/")
		} else {
			key = key + "/" + strings.TrimPrefix(elem, "/")
		}
		return RemoteRef(r.Bucket, key, "")
	}
	return LocalRef(filepath.Join(r.Path, filepath.FromSlash(elem)))
}

// String returns the string representation of Ref.
func (r Ref) String() string {
	if !r.IsRemote() {
		return r.Path
	}
	s := "s3://" + r.Bucket
	if r.Key != "" {
		s += "/" + r.Key
	}
	if r.VersionID != "" {
		s += "?versionId=" + r.VersionID
	}
	return s
}

// ParseRef creates a Ref from a user given string. Strings starting with
// "s3://" are remote, everything else is a local path.
func ParseRef(s string) (Ref, error) {
	if !strings.HasPrefix(s, "s3://") {
		if strings.Contains(s, "://") {
			return Ref{}, fmt.Errorf("storage: unknown url format %q", s)
		}
		return LocalRef(s), nil
	}

	rest := strings.TrimPrefix(s, "s3://")
	parts := strings.SplitN(rest, "/", 2)
	bucket := parts[0]
	if bucket == "" {
		return Ref{}, fmt.Errorf("s3 url should have a bucket")
	}

	var key string
	if len(parts) == 2 {
		key = strings.TrimLeft(parts[1], "/")
	}
	return RemoteRef(bucket, key, ""), nil
}

// Metadata describes an existing object or file.
type Metadata struct {
	Size      int64      `json:"size"`
	ModTime   *time.Time `json:"last_modified,omitempty"`
	Etag      string     `json:"etag,omitempty"`
	VersionID string     `json:"version_id,omitempty"`
}

// Entry is one child returned by a listing.
type Entry struct {
	Ref     Ref        `json:"ref"`
	Name    string     `json:"name"`
	IsDir   bool       `json:"is_dir,omitempty"`
	Size    int64      `json:"size,omitempty"`
	ModTime *time.Time `json:"last_modified,omitempty"`
}

// String returns the string representation of Entry.
func (e Entry) String() string {
	return e.Ref.String()
}

// Version is one version of an object in a versioned bucket.
type Version struct {
	VersionID      string    `json:"version_id"`
	IsLatest       bool      `json:"is_latest"`
	IsDeleteMarker bool      `json:"is_delete_marker,omitempty"`
	Size           int64     `json:"size"`
	ModTime        time.Time `json:"last_modified"`
	Etag           string    `json:"etag,omitempty"`
}

// Bucket is a container for storage items.
type Bucket struct {
	CreationDate time.Time
	Name         string
}

// String returns the string representation of Bucket.
func (b Bucket) String() string {
	return fmt.Sprintf("%s  s3://%s", b.CreationDate.Format(dateFormat), b.Name)
}

// Backend is the capability set shared by the filesystem and the object
// store. All methods are synchronous and none are retried here. Methods that
// mutate a container invalidate the cached listings of that container before
// they return.
type Backend interface {
	Kind() Kind
	Identity() string

	// List returns one level of children. It never fails; on error both
	// slices are empty and the error is available from LastError.
	List(ctx context.Context, container, prefix string) (dirs, files []Entry)
	LastError() error

	// Exists returns the metadata of the given key, or nil if it doesn't
	// exist. It never consults the cache.
	Exists(ctx context.Context, container, key string) (*Metadata, error)

	ReadTo(ctx context.Context, container, key, localPath, versionID string) error
	WriteFrom(ctx context.Context, localPath, container, key string) error
	Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey, versionID string) error
	Delete(ctx context.Context, container, key, versionID string) error
	ListVersions(ctx context.Context, container, key string) ([]Version, error)

	// Walk returns every file below prefix, bypassing the cache.
	Walk(ctx context.Context, container, prefix string) ([]Entry, error)

	// RemoveContainer removes what is left of a directory, prefix or bucket.
	RemoveContainer(ctx context.Context, container, prefix string) error
}

// ErrGivenObjectNotFound indicates a specified object is not found.
type ErrGivenObjectNotFound struct {
	ObjectAbsPath string
}

func (e *ErrGivenObjectNotFound) Error() string {
	return fmt.Sprintf("given object %v not found", e.ObjectAbsPath)
}
