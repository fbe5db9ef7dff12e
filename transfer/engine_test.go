package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/google/go-cmp/cmp"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"

	"github.com/peak/s5nav/cache"
	"github.com/peak/s5nav/storage"
)

func TestCopyDirectoryToEmptyDestination(t *testing.T) {
	t.Parallel()

	workdir := fs.NewDir(t, "s5nav",
		fs.WithDir("src",
			fs.WithFile("a.txt", string(make([]byte, 10))),
			fs.WithFile("b.txt", string(make([]byte, 20))),
			fs.WithFile("c.txt", string(make([]byte, 30))),
		),
		fs.WithDir("dst"),
	)
	defer workdir.Remove()

	src := localPanel(t, workdir.Path())
	job := Plan(context.Background(), src, []storage.Entry{dirEntry(workdir.Join("src"))})
	assert.Equal(t, int64(60), job.TotalBytes)

	h := newTestHandler()
	summary := runCopy(t, job, localPanel(t, workdir.Join("dst")), Options{Target: "copied"}, h)

	assert.Equal(t, int64(3), summary.Succeeded)
	assert.Equal(t, int64(0), summary.Failed)
	assert.Equal(t, int64(60), summary.Bytes)
	assert.NilError(t, summary.Err)
	assert.Equal(t, 0, len(h.conflicts))

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		_, err := os.Stat(workdir.Join("dst", "copied", name))
		assert.NilError(t, err)
		// copy keeps the source
		_, err = os.Stat(workdir.Join("src", name))
		assert.NilError(t, err)
	}

	final := h.snapshots[len(h.snapshots)-1]
	assert.Equal(t, int64(3), final.ProcessedFiles)
	assert.Equal(t, int64(60), final.ProcessedBytes)
	assert.Equal(t, float64(100), final.Percent())
}

func TestCopySkipLeavesDestinationUnchanged(t *testing.T) {
	t.Parallel()

	workdir := fs.NewDir(t, "s5nav",
		fs.WithFile("file.txt", "new content"),
		fs.WithDir("dst", fs.WithFile("file.txt", "old")),
	)
	defer workdir.Remove()

	src := localPanel(t, workdir.Path())
	job := Plan(context.Background(), src, []storage.Entry{fileEntry(t, workdir.Join("file.txt"))})

	h := newTestHandler(Skip)
	summary := runCopy(t, job, localPanel(t, workdir.Join("dst")), Options{Target: "file.txt"}, h)

	assert.Equal(t, int64(0), summary.Succeeded)
	assert.Equal(t, int64(0), summary.Failed)
	assert.Equal(t, int64(0), summary.Bytes)
	assert.Equal(t, int64(1), summary.Skipped)
	assert.Equal(t, "old", readFile(t, workdir.Join("dst", "file.txt")))

	assert.Equal(t, 1, len(h.conflicts))
	req := h.conflicts[0]
	assert.Equal(t, int64(3), req.DestMeta.Size)
	assert.Equal(t, int64(len("new content")), req.SourceMeta.Size)
	assert.Assert(t, req.CanVersion)
}

func TestSkipAllSuppressesFurtherRequests(t *testing.T) {
	t.Parallel()

	workdir := fs.NewDir(t, "s5nav",
		fs.WithDir("src",
			fs.WithFile("a.txt", "new"),
			fs.WithFile("b.txt", "new"),
			fs.WithFile("c.txt", "new"),
			fs.WithFile("d.txt", "new"),
		),
		fs.WithDir("dst",
			fs.WithDir("src",
				fs.WithFile("a.txt", "old"),
				fs.WithFile("b.txt", "old"),
				fs.WithFile("c.txt", "old"),
			),
		),
	)
	defer workdir.Remove()

	src := localPanel(t, workdir.Path())
	job := Plan(context.Background(), src, []storage.Entry{dirEntry(workdir.Join("src"))})

	h := newTestHandler(SkipAll)
	summary := runCopy(t, job, localPanel(t, workdir.Join("dst")), Options{Target: "src"}, h)

	assert.Equal(t, 1, len(h.conflicts))
	assert.Equal(t, int64(3), summary.Skipped)
	assert.Equal(t, int64(1), summary.Succeeded)
	assert.Equal(t, "old", readFile(t, workdir.Join("dst", "src", "c.txt")))
	assert.Equal(t, "new", readFile(t, workdir.Join("dst", "src", "d.txt")))
}

func TestOverwriteAllIsIdempotent(t *testing.T) {
	t.Parallel()

	workdir := fs.NewDir(t, "s5nav",
		fs.WithDir("src",
			fs.WithFile("a.txt", "aaa"),
			fs.WithDir("sub", fs.WithFile("b.txt", "bbb")),
		),
		fs.WithDir("dst",
			fs.WithDir("src", fs.WithFile("a.txt", "stale")),
		),
	)
	defer workdir.Remove()

	ctx := context.Background()
	src := localPanel(t, workdir.Path())
	dst := localPanel(t, workdir.Join("dst"))

	manifest := func() map[string]string {
		got := map[string]string{}
		err := filepath.Walk(workdir.Join("dst"), func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return err
			}
			rel, _ := filepath.Rel(workdir.Join("dst"), path)
			got[rel] = readFile(t, path)
			return nil
		})
		assert.NilError(t, err)
		return got
	}

	var states []map[string]string
	for i := 0; i < 2; i++ {
		job := Plan(ctx, src, []storage.Entry{dirEntry(workdir.Join("src"))})
		h := newTestHandler(OverwriteAll)
		summary := runCopy(t, job, dst, Options{Target: "src"}, h)

		assert.Equal(t, int64(2), summary.Succeeded)
		assert.Equal(t, 1, len(h.conflicts))
		states = append(states, manifest())
	}

	expected := map[string]string{
		filepath.Join("src", "a.txt"):        "aaa",
		filepath.Join("src", "sub", "b.txt"): "bbb",
	}
	if diff := cmp.Diff(expected, states[0]); diff != "" {
		t.Errorf("(-want +got):\n%v", diff)
	}
	if diff := cmp.Diff(states[0], states[1]); diff != "" {
		t.Errorf("(-first +second):\n%v", diff)
	}
}

func TestNewVersionOnFilesystemKeepsBoth(t *testing.T) {
	t.Parallel()

	workdir := fs.NewDir(t, "s5nav",
		fs.WithFile("report.csv", "new"),
		fs.WithDir("dst",
			fs.WithFile("report.csv", "old"),
			fs.WithFile("report (1).csv", "older"),
		),
	)
	defer workdir.Remove()

	src := localPanel(t, workdir.Path())
	job := Plan(context.Background(), src, []storage.Entry{fileEntry(t, workdir.Join("report.csv"))})

	h := newTestHandler(NewVersion)
	summary := runCopy(t, job, localPanel(t, workdir.Join("dst")), Options{Target: "report.csv"}, h)

	assert.Equal(t, int64(1), summary.Succeeded)
	assert.Equal(t, "old", readFile(t, workdir.Join("dst", "report.csv")))
	assert.Equal(t, "older", readFile(t, workdir.Join("dst", "report (1).csv")))
	assert.Equal(t, "new", readFile(t, workdir.Join("dst", "report (2).csv")))
}

func TestCancelDecisionStopsJob(t *testing.T) {
	t.Parallel()

	remote := newMemBackend("mem")
	assert.NilError(t, remote.put("bucket", "dir/a.txt", []byte("a")))
	assert.NilError(t, remote.put("bucket", "dir/b.txt", []byte("b")))
	assert.NilError(t, remote.put("bucket", "dir/c.txt", []byte("c")))
	assert.NilError(t, remote.put("bucket", "out/b.txt", []byte("old")))

	src := Panel{Backend: remote, Cwd: storage.RemoteRef("bucket", "", "")}
	entry := storage.Entry{Ref: storage.RemoteRef("bucket", "dir/", ""), Name: "dir", IsDir: true}
	job := Plan(context.Background(), src, []storage.Entry{entry})
	assert.Equal(t, ObjectPrefix, job.Units[0].Kind)

	h := newTestHandler(Cancel)
	summary := runCopy(t, job, src, Options{Target: "out"}, h)

	assert.Assert(t, job.Cancelled())
	assert.Assert(t, summary.Cancelled)
	assert.Equal(t, int64(1), summary.Succeeded)
	assert.Equal(t, int64(0), summary.Failed)
	assert.Equal(t, 1, len(h.conflicts))
	assert.DeepEqual(t, []string{"dir/a.txt", "dir/b.txt", "dir/c.txt", "out/a.txt", "out/b.txt"}, remote.keys("bucket"))
}

func TestCancelMidJob(t *testing.T) {
	t.Parallel()

	workdir := fs.NewDir(t, "s5nav")
	defer workdir.Remove()

	remote := newMemBackend("mem")
	for i := 0; i < 5; i++ {
		assert.NilError(t, remote.put("bucket", fmt.Sprintf("dir/%d.txt", i), []byte("data")))
	}

	src := Panel{Backend: remote, Cwd: storage.RemoteRef("bucket", "", "")}
	entry := storage.Entry{Ref: storage.RemoteRef("bucket", "dir/", ""), Name: "dir", IsDir: true}
	job := Plan(context.Background(), src, []storage.Entry{entry})
	assert.Equal(t, int64(5), job.TotalFiles())

	// cancel while the first leaf is in flight
	remote.onTransfer = func(string) { job.Cancel() }

	h := newTestHandler()
	summary := runCopy(t, job, localPanel(t, workdir.Path()), Options{}, h)

	assert.Assert(t, job.Cancelled())
	assert.Equal(t, int64(1), job.Progress().Snapshot().ProcessedFiles)
	assert.Equal(t, int64(1), summary.Succeeded)

	entries, err := os.ReadDir(workdir.Join("dir"))
	assert.NilError(t, err)
	assert.Equal(t, 1, len(entries))
	assert.Equal(t, "0.txt", entries[0].Name())
}

func TestContextCancelStopsJob(t *testing.T) {
	t.Parallel()

	remote := newMemBackend("mem")
	assert.NilError(t, remote.put("bucket", "a.txt", []byte("a")))

	src := Panel{Backend: remote, Cwd: storage.RemoteRef("bucket", "", "")}
	entry := storage.Entry{Ref: storage.RemoteRef("bucket", "a.txt", ""), Name: "a.txt", Size: 1}
	job := Plan(context.Background(), src, []storage.Entry{entry})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := newTestHandler()
	engine := NewEngine(startLoop(t), h)
	summary := waitComplete(t, h, engine.Start(ctx, job, src, Options{Target: "b.txt"}))

	assert.Assert(t, summary.Cancelled)
	assert.Equal(t, int64(0), summary.Succeeded)
	assert.DeepEqual(t, []string{"a.txt"}, remote.keys("bucket"))
}

func TestMoveDeletionFailureKeepsSource(t *testing.T) {
	t.Parallel()

	remote := newMemBackend("mem")
	assert.NilError(t, remote.put("src", "dir/one.txt", []byte("1")))
	assert.NilError(t, remote.put("src", "dir/two.txt", []byte("2")))
	remote.failDelete["dir/two.txt"] = fmt.Errorf("access denied")

	srcPanel := Panel{Backend: remote, Cwd: storage.RemoteRef("src", "", "")}
	entry := storage.Entry{Ref: storage.RemoteRef("src", "dir/", ""), Name: "dir", IsDir: true}
	job := Plan(context.Background(), srcPanel, []storage.Entry{entry})

	dstPanel := Panel{Backend: remote, Cwd: storage.RemoteRef("dst", "", "")}
	h := newTestHandler()
	summary := runCopy(t, job, dstPanel, Options{Move: true}, h)

	assert.Equal(t, int64(2), summary.Succeeded)
	assert.Equal(t, int64(0), summary.Failed)
	assert.ErrorContains(t, summary.CleanupErr, "access denied")

	assert.DeepEqual(t, []string{"dir/two.txt"}, remote.keys("src"))
	assert.DeepEqual(t, []string{"dir/one.txt", "dir/two.txt"}, remote.keys("dst"))
	// the container is kept while it still holds a source
	assert.Equal(t, 0, len(remote.removed))
}

func TestMoveRemovesSourceContainer(t *testing.T) {
	t.Parallel()

	workdir := fs.NewDir(t, "s5nav",
		fs.WithDir("src",
			fs.WithFile("a.txt", "a"),
			fs.WithDir("nested", fs.WithFile("b.txt", "b")),
		),
		fs.WithDir("dst"),
	)
	defer workdir.Remove()

	caches, err := cache.NewSession(0, 0)
	assert.NilError(t, err)
	local := storage.NewFilesystem(caches)

	// warm the listing cache so the move must invalidate it
	dirs, _ := local.List(context.Background(), workdir.Path(), "")
	assert.Equal(t, 2, len(dirs))

	src := Panel{Backend: local, Cwd: storage.LocalRef(workdir.Path())}
	job := Plan(context.Background(), src, []storage.Entry{dirEntry(workdir.Join("src"))})

	h := newTestHandler()
	summary := runCopy(t, job, Panel{Backend: local, Cwd: storage.LocalRef(workdir.Join("dst"))}, Options{Move: true}, h)

	assert.Equal(t, int64(2), summary.Succeeded)
	assert.NilError(t, summary.CleanupErr)

	_, err = os.Stat(workdir.Join("src"))
	assert.Assert(t, os.IsNotExist(err))
	assert.Equal(t, "b", readFile(t, workdir.Join("dst", "src", "nested", "b.txt")))

	dirs, _ = local.List(context.Background(), workdir.Path(), "")
	assert.Equal(t, 1, len(dirs))
	assert.Equal(t, "dst", dirs[0].Name)
}

func TestMoveWithSkipKeepsSourceContainer(t *testing.T) {
	t.Parallel()

	remote := newMemBackend("mem")
	assert.NilError(t, remote.put("src", "dir/a.txt", []byte("a")))
	assert.NilError(t, remote.put("src", "dir/b.txt", []byte("b")))
	assert.NilError(t, remote.put("dst", "dir/b.txt", []byte("old")))

	srcPanel := Panel{Backend: remote, Cwd: storage.RemoteRef("src", "", "")}
	entry := storage.Entry{Ref: storage.RemoteRef("src", "dir/", ""), Name: "dir", IsDir: true}
	job := Plan(context.Background(), srcPanel, []storage.Entry{entry})

	h := newTestHandler(Skip)
	summary := runCopy(t, job, Panel{Backend: remote, Cwd: storage.RemoteRef("dst", "", "")}, Options{Move: true}, h)

	assert.Equal(t, int64(1), summary.Succeeded)
	assert.Equal(t, int64(1), summary.Skipped)
	assert.DeepEqual(t, []string{"dir/a.txt"}, remote.deletes)
	assert.DeepEqual(t, []string{"dir/b.txt"}, remote.keys("src"))
	assert.Equal(t, 0, len(remote.removed))
}

func TestCopyNeverDeletes(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := NewMockBackend(ctrl)
	dst := NewMockBackend(ctrl)

	src.EXPECT().Kind().Return(storage.Remote).AnyTimes()
	src.EXPECT().Identity().Return("s3").AnyTimes()
	dst.EXPECT().Kind().Return(storage.Remote).AnyTimes()
	dst.EXPECT().Identity().Return("s3").AnyTimes()

	src.EXPECT().Walk(gomock.Any(), "src", "dir/").Return([]storage.Entry{
		{Ref: storage.RemoteRef("src", "dir/a", ""), Name: "a", Size: 1},
		{Ref: storage.RemoteRef("src", "dir/b", ""), Name: "b", Size: 2},
	}, nil)

	gomock.InOrder(
		dst.EXPECT().Exists(gomock.Any(), "dst", "dir/a").Return(nil, nil),
		dst.EXPECT().Copy(gomock.Any(), "src", "dir/a", "dst", "dir/a", "").Return(nil),
		dst.EXPECT().Exists(gomock.Any(), "dst", "dir/b").Return(nil, nil),
		dst.EXPECT().Copy(gomock.Any(), "src", "dir/b", "dst", "dir/b", "").Return(fmt.Errorf("boom")),
	)

	srcPanel := Panel{Backend: src, Cwd: storage.RemoteRef("src", "", "")}
	entry := storage.Entry{Ref: storage.RemoteRef("src", "dir/", ""), Name: "dir", IsDir: true}
	job := Plan(context.Background(), srcPanel, []storage.Entry{entry})
	assert.Equal(t, int64(3), job.TotalBytes)

	h := newTestHandler()
	summary := runCopy(t, job, Panel{Backend: dst, Cwd: storage.RemoteRef("dst", "", "")}, Options{}, h)

	assert.Equal(t, int64(1), summary.Succeeded)
	assert.Equal(t, int64(1), summary.Failed)
	assert.Equal(t, int64(1), summary.Bytes)
	assert.ErrorContains(t, summary.Err, "boom")
}

func TestMoveDeletesOnlySucceededLeaves(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := NewMockBackend(ctrl)
	dst := NewMockBackend(ctrl)

	src.EXPECT().Kind().Return(storage.Remote).AnyTimes()
	src.EXPECT().Identity().Return("s3").AnyTimes()
	dst.EXPECT().Kind().Return(storage.Remote).AnyTimes()
	dst.EXPECT().Identity().Return("s3").AnyTimes()

	src.EXPECT().Walk(gomock.Any(), "bucket", "").Return([]storage.Entry{
		{Ref: storage.RemoteRef("bucket", "a", ""), Name: "a", Size: 1},
		{Ref: storage.RemoteRef("bucket", "b", ""), Name: "b", Size: 1},
		{Ref: storage.RemoteRef("bucket", "c", ""), Name: "c", Size: 1},
	}, nil)

	dst.EXPECT().Exists(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil).Times(3)
	dst.EXPECT().Copy(gomock.Any(), "bucket", "a", "target", "bucket/a", "").Return(nil)
	dst.EXPECT().Copy(gomock.Any(), "bucket", "b", "target", "bucket/b", "").Return(fmt.Errorf("boom"))
	dst.EXPECT().Copy(gomock.Any(), "bucket", "c", "target", "bucket/c", "").Return(nil)

	// b failed: a and c are deleted, the bucket is kept
	src.EXPECT().Delete(gomock.Any(), "bucket", "a", "").Return(nil)
	src.EXPECT().Delete(gomock.Any(), "bucket", "c", "").Return(nil)

	srcPanel := Panel{Backend: src, Cwd: storage.RemoteRef("", "", "")}
	entry := storage.Entry{Ref: storage.RemoteRef("bucket", "", ""), Name: "bucket", IsDir: true}
	other := storage.Entry{Ref: storage.RemoteRef("bucket2", "", ""), Name: "bucket2", IsDir: true}
	src.EXPECT().Walk(gomock.Any(), "bucket2", "").Return(nil, fmt.Errorf("access denied"))

	job := Plan(context.Background(), srcPanel, []storage.Entry{entry, other})
	assert.Equal(t, Bucket, job.Units[0].Kind)
	assert.ErrorContains(t, job.PlanErr, "access denied")
	assert.Equal(t, 0, len(job.Units[1].Leaves))

	h := newTestHandler()
	summary := runCopy(t, job, Panel{Backend: dst, Cwd: storage.RemoteRef("target", "", "")}, Options{Move: true}, h)

	assert.Equal(t, int64(2), summary.Succeeded)
	assert.Equal(t, int64(1), summary.Failed)
	assert.ErrorContains(t, summary.PlanErr, "access denied")
}

func TestStickyOverwriteSkipsExistenceCheck(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	local := NewMockBackend(ctrl)
	remote := newMemBackend("mem")
	remote.versioned = true

	workdir := fs.NewDir(t, "s5nav",
		fs.WithFile("a.txt", "a"),
		fs.WithFile("b.txt", "b"),
	)
	defer workdir.Remove()

	assert.NilError(t, remote.put("bucket", "a.txt", []byte("old")))
	assert.NilError(t, remote.put("bucket", "b.txt", []byte("old")))

	local.EXPECT().Kind().Return(storage.Local).AnyTimes()

	srcPanel := Panel{Backend: local, Cwd: storage.LocalRef(workdir.Path())}
	job := Plan(context.Background(), srcPanel, []storage.Entry{
		fileEntry(t, workdir.Join("a.txt")),
		fileEntry(t, workdir.Join("b.txt")),
	})

	h := newTestHandler(OverwriteAll)
	summary := runCopy(t, job, Panel{Backend: remote, Cwd: storage.RemoteRef("bucket", "", "")}, Options{}, h)

	assert.Equal(t, int64(2), summary.Succeeded)
	assert.Equal(t, 1, len(h.conflicts))
	assert.Assert(t, h.conflicts[0].CanVersion)

	data, _ := remote.get("bucket", "b.txt")
	assert.Equal(t, "b", string(data))
}

func TestJobCanOnlyStartOnce(t *testing.T) {
	t.Parallel()

	remote := newMemBackend("mem")
	assert.NilError(t, remote.put("bucket", "a", []byte("a")))

	src := Panel{Backend: remote, Cwd: storage.RemoteRef("bucket", "", "")}
	job := Plan(context.Background(), src, []storage.Entry{{Ref: storage.RemoteRef("bucket", "a", ""), Name: "a", Size: 1}})

	h := newTestHandler()
	engine := NewEngine(startLoop(t), h)
	first := engine.Start(context.Background(), job, src, Options{Target: "b"})
	waitComplete(t, h, first)

	second := engine.Start(context.Background(), job, src, Options{Target: "c"})
	assert.ErrorContains(t, second.Wait().Err, "already started")
	assert.DeepEqual(t, []string{"a", "b"}, remote.keys("bucket"))
}
