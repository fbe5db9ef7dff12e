package transfer

import (
	"context"
	"strings"

	"github.com/hashicorp/go-multierror"

	errorpkg "github.com/peak/s5nav/error"
	"github.com/peak/s5nav/log"
	"github.com/peak/s5nav/storage"
)

// Plan expands the selection into one unit per entry. Directories, prefixes
// and buckets are walked recursively, bypassing the listing cache. A
// container that cannot be listed contributes no leaves; its error is kept in
// Job.PlanErr and planning continues.
func Plan(ctx context.Context, src Panel, selection []storage.Entry) *Job {
	job := &Job{source: src}

	for _, entry := range selection {
		unit := planUnit(ctx, src.Backend, entry)
		if unit.Err != nil {
			root := unit.Root
			job.PlanErr = multierror.Append(job.PlanErr, &errorpkg.Error{
				Op:  "plan",
				Src: &root,
				Err: unit.Err,
			})
			log.Debugf("unable to list %v: %v", root, unit.Err)
		}

		for _, leaf := range unit.Leaves {
			job.TotalBytes += leaf.Size
		}
		job.Units = append(job.Units, unit)
	}

	job.progress = newProgress(job.TotalFiles(), job.TotalBytes)
	return job
}

func planUnit(ctx context.Context, backend storage.Backend, entry storage.Entry) Unit {
	ref := entry.Ref
	name := entry.Name
	if name == "" {
		name = ref.Base()
	}
	name = strings.TrimSuffix(name, "/")

	if !entry.IsDir {
		return Unit{
			Kind:        File,
			Root:        ref,
			DisplayName: name,
			Leaves: []LeafFile{{
				Source:       ref,
				RelativePath: name,
				Size:         entry.Size,
				ModTime:      entry.ModTime,
			}},
		}
	}

	unit := Unit{Root: ref, DisplayName: name}

	container, prefix := walkRoot(ref)
	switch {
	case !ref.IsRemote():
		unit.Kind = Directory
	case ref.IsBucket():
		unit.Kind = Bucket
	default:
		unit.Kind = ObjectPrefix
	}

	entries, err := backend.Walk(ctx, container, prefix)
	if err != nil {
		unit.Err = err
		return unit
	}

	for _, e := range entries {
		unit.Leaves = append(unit.Leaves, LeafFile{
			Source:       e.Ref,
			RelativePath: e.Name,
			Size:         e.Size,
			ModTime:      e.ModTime,
		})
	}
	return unit
}

// walkRoot returns the container and prefix to walk for a container ref.
func walkRoot(ref storage.Ref) (string, string) {
	if !ref.IsRemote() {
		return ref.Path, ""
	}

	prefix := ref.Key
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return ref.Bucket, prefix
}
