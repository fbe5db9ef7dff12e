package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peak/s5nav/storage"
)

// resolveTarget returns the ref the user-edited target points to. An empty
// target is the destination panel's location; relative targets are resolved
// against it.
func resolveTarget(cwd storage.Ref, target string) (storage.Ref, error) {
	if target == "" {
		return cwd, nil
	}

	if !cwd.IsRemote() {
		if strings.HasPrefix(target, "s3://") {
			return storage.Ref{}, fmt.Errorf("target %q is not a local path", target)
		}
		if filepath.IsAbs(target) {
			return storage.LocalRef(target), nil
		}
		return cwd.Join(target), nil
	}

	if strings.HasPrefix(target, "s3://") {
		return storage.ParseRef(target)
	}

	// bucket list: the first element names the bucket
	if cwd.Bucket == "" {
		parts := strings.SplitN(strings.TrimPrefix(target, "/"), "/", 2)
		if parts[0] == "" {
			return storage.Ref{}, fmt.Errorf("target %q has no bucket", target)
		}
		var key string
		if len(parts) == 2 {
			key = parts[1]
		}
		return storage.RemoteRef(parts[0], key, ""), nil
	}
	return cwd.Join(target), nil
}

// destinationOf computes where a leaf goes. A single-unit job uses the
// target verbatim as the unit's new name; otherwise the target is a
// directory that receives the unit under its display name.
func destinationOf(base storage.Ref, single bool, unit Unit, leaf LeafFile) storage.Ref {
	if !single {
		base = base.Join(unit.DisplayName)
	}
	if unit.Kind == File {
		return base
	}
	return base.Join(leaf.RelativePath)
}

// direction is the source and destination backend combination of a leaf.
type direction int

const (
	localToLocal direction = iota
	localToRemote
	remoteToLocal
	remoteToRemote
)

func directionOf(src, dst storage.Kind) direction {
	switch {
	case src == storage.Local && dst == storage.Local:
		return localToLocal
	case src == storage.Local:
		return localToRemote
	case dst == storage.Local:
		return remoteToLocal
	default:
		return remoteToRemote
	}
}

// dispatch moves the bytes of one leaf with the operation matching the
// direction. Only object store sources carry a version ID.
func dispatch(ctx context.Context, src, dst storage.Backend, from, to storage.Ref) error {
	switch directionOf(src.Kind(), dst.Kind()) {
	case localToLocal:
		return dst.Copy(ctx, from.Container(), from.Name(), to.Container(), to.Name(), "")
	case localToRemote:
		return dst.WriteFrom(ctx, from.Path, to.Bucket, to.Key)
	case remoteToLocal:
		return src.ReadTo(ctx, from.Bucket, from.Key, to.Path, from.VersionID)
	default:
		if src.Identity() == dst.Identity() {
			return dst.Copy(ctx, from.Bucket, from.Key, to.Bucket, to.Key, from.VersionID)
		}
		return relay(ctx, src, dst, from, to)
	}
}

// relay copies between two different object stores through a local
// temporary file.
func relay(ctx context.Context, src, dst storage.Backend, from, to storage.Ref) error {
	dir, err := os.MkdirTemp("", "s5nav-relay-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	tmp := filepath.Join(dir, "object")
	if err := src.ReadTo(ctx, from.Bucket, from.Key, tmp, from.VersionID); err != nil {
		return err
	}
	return dst.WriteFrom(ctx, tmp, to.Bucket, to.Key)
}

// versioner is implemented by backends that can keep older versions.
type versioner interface {
	VersioningEnabled(ctx context.Context, bucket string) (bool, error)
}

// canVersion reports whether NewVersion keeps the existing destination.
func canVersion(ctx context.Context, dst storage.Backend, to storage.Ref) bool {
	if !to.IsRemote() {
		return true
	}
	v, ok := dst.(versioner)
	if !ok {
		return false
	}
	enabled, err := v.VersioningEnabled(ctx, to.Bucket)
	return err == nil && enabled
}

const maxCollisionSuffix = 10000

// uniqueName returns the first "name (n).ext" next to ref that does not
// exist.
func uniqueName(ctx context.Context, dst storage.Backend, ref storage.Ref) (storage.Ref, error) {
	dir, base := filepath.Split(ref.Path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	for i := 1; i < maxCollisionSuffix; i++ {
		candidate := storage.LocalRef(filepath.Join(dir, fmt.Sprintf("%s (%d)%s", stem, i, ext)))
		meta, err := dst.Exists(ctx, candidate.Container(), candidate.Name())
		if err != nil {
			return storage.Ref{}, err
		}
		if meta == nil {
			return candidate, nil
		}
	}
	return storage.Ref{}, fmt.Errorf("no free name for %v", ref)
}
