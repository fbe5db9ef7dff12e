package command

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/peak/s5nav/storage"
	"github.com/peak/s5nav/transfer"
)

// runJob starts a job with start and runs the event loop on the calling
// goroutine until the job completes or ctx is done.
func runJob(ctx context.Context, sess *session, h *terminalHandler, start func(*transfer.Engine) *transfer.Handle) transfer.Summary {
	engine := transfer.NewEngine(h.loop, h)
	engine.SetProgressInterval(sess.cfg.ProgressInterval())

	h.bar.Start()
	handle := start(engine)

	_ = h.loop.Run(ctx)
	summary := handle.Wait()
	h.bar.Finish()
	return summary
}

// selectionOf resolves the given arguments into the entries of a single
// source panel.
func selectionOf(ctx context.Context, sess *session, args []string, versionID string) (transfer.Panel, []storage.Entry, error) {
	var (
		panel     transfer.Panel
		selection []storage.Entry
	)

	for i, arg := range args {
		ref, err := storage.ParseRef(arg)
		if err != nil {
			return panel, nil, err
		}

		if i > 0 && ref.Kind != panel.Cwd.Kind {
			return panel, nil, fmt.Errorf("sources must be on the same storage: %v", arg)
		}

		backend, err := sess.backend(ref)
		if err != nil {
			return panel, nil, err
		}
		if i == 0 {
			panel = transfer.Panel{Backend: backend, Cwd: parentOf(ref)}
		}

		entry, err := entryOf(ctx, backend, ref)
		if err != nil {
			return panel, nil, err
		}
		if versionID != "" {
			entry.Ref.VersionID = versionID
		}
		selection = append(selection, entry)
	}
	return panel, selection, nil
}

// entryOf returns the entry ref points to. A remote key that is not an
// object is taken as a prefix if anything is stored under it.
func entryOf(ctx context.Context, backend storage.Backend, ref storage.Ref) (storage.Entry, error) {
	if !ref.IsRemote() {
		st, err := os.Stat(ref.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return storage.Entry{}, &storage.ErrGivenObjectNotFound{ObjectAbsPath: ref.String()}
			}
			return storage.Entry{}, err
		}
		mod := st.ModTime()
		return storage.Entry{
			Ref:     ref,
			Name:    ref.Base(),
			IsDir:   st.IsDir(),
			Size:    st.Size(),
			ModTime: &mod,
		}, nil
	}

	if ref.IsBucket() || ref.IsPrefix() {
		return storage.Entry{Ref: ref, Name: ref.Base(), IsDir: true}, nil
	}

	meta, err := backend.Exists(ctx, ref.Bucket, ref.Key)
	if err != nil {
		return storage.Entry{}, err
	}
	if meta != nil {
		return storage.Entry{Ref: ref, Name: ref.Base(), Size: meta.Size, ModTime: meta.ModTime}, nil
	}

	prefix := storage.RemoteRef(ref.Bucket, ref.Key+"/", "")
	dirs, files := backend.List(ctx, prefix.Bucket, prefix.Key)
	if err := backend.LastError(); err != nil {
		return storage.Entry{}, err
	}
	if len(dirs) == 0 && len(files) == 0 {
		return storage.Entry{}, &storage.ErrGivenObjectNotFound{ObjectAbsPath: ref.String()}
	}
	return storage.Entry{Ref: prefix, Name: ref.Base(), IsDir: true}, nil
}

// parentOf returns the location that shows ref.
func parentOf(ref storage.Ref) storage.Ref {
	if !ref.IsRemote() {
		return storage.LocalRef(filepath.Dir(ref.Path))
	}
	if ref.IsBucket() {
		return storage.RemoteRef("", "", "")
	}

	dir := path.Dir(strings.TrimSuffix(ref.Key, "/"))
	if dir == "." {
		return storage.RemoteRef(ref.Bucket, "", "")
	}
	return storage.RemoteRef(ref.Bucket, dir+"/", "")
}

// destinationOf returns the panel and the target a transfer writes into. An
// existing directory, a prefix or a bucket receives the sources under their
// own names. Otherwise dst is the new name of the only source.
func destinationOf(sess *session, dst storage.Ref, sources int) (transfer.Panel, string, error) {
	backend, err := sess.backend(dst)
	if err != nil {
		return transfer.Panel{}, "", err
	}

	isDir := sources > 1
	if dst.IsRemote() {
		isDir = isDir || dst.IsBucket() || dst.IsPrefix()
	} else if st, err := os.Stat(dst.Path); err == nil && st.IsDir() {
		isDir = true
	}

	if isDir {
		return transfer.Panel{Backend: backend, Cwd: dst}, "", nil
	}
	return transfer.Panel{Backend: backend, Cwd: parentOf(dst)}, dst.Base(), nil
}
