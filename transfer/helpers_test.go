package transfer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"github.com/peak/s5nav/eventloop"
	"github.com/peak/s5nav/storage"
)

// memBackend is an in-memory object store.
type memBackend struct {
	identity  string
	versioned bool

	mu      sync.Mutex
	objects map[string]map[string][]byte

	failWrite  map[string]error
	failDelete map[string]error
	onTransfer func(key string)

	writes  map[string]int
	deletes []string
	removed []string
}

var _ storage.Backend = (*memBackend)(nil)

func newMemBackend(identity string) *memBackend {
	return &memBackend{
		identity:   identity,
		objects:    map[string]map[string][]byte{},
		failWrite:  map[string]error{},
		failDelete: map[string]error{},
		writes:     map[string]int{},
	}
}

func (m *memBackend) put(bucket, key string, data []byte) error {
	m.mu.Lock()
	err := m.failWrite[key]
	hook := m.onTransfer
	m.mu.Unlock()

	if err != nil {
		return err
	}
	if hook != nil {
		hook(key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects[bucket] == nil {
		m.objects[bucket] = map[string][]byte{}
	}
	m.objects[bucket][key] = append([]byte(nil), data...)
	m.writes[bucket+"/"+key]++
	return nil
}

func (m *memBackend) get(bucket, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[bucket][key]
	return data, ok
}

func (m *memBackend) keys(bucket string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := []string{}
	for k := range m.objects[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (m *memBackend) Kind() storage.Kind { return storage.Remote }
func (m *memBackend) Identity() string   { return m.identity }
func (m *memBackend) LastError() error   { return nil }

func (m *memBackend) List(ctx context.Context, bucket, prefix string) ([]storage.Entry, []storage.Entry) {
	var dirs, files []storage.Entry
	seen := map[string]bool{}
	for _, key := range m.keys(bucket) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := strings.TrimPrefix(key, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			name := rest[:i]
			if !seen[name] {
				seen[name] = true
				dirs = append(dirs, storage.Entry{Ref: storage.RemoteRef(bucket, prefix+name+"/", ""), Name: name, IsDir: true})
			}
			continue
		}
		data, _ := m.get(bucket, key)
		files = append(files, storage.Entry{Ref: storage.RemoteRef(bucket, key, ""), Name: rest, Size: int64(len(data))})
	}
	return dirs, files
}

func (m *memBackend) Exists(ctx context.Context, bucket, key string) (*storage.Metadata, error) {
	data, ok := m.get(bucket, key)
	if !ok {
		return nil, nil
	}
	return &storage.Metadata{Size: int64(len(data))}, nil
}

func (m *memBackend) ReadTo(ctx context.Context, bucket, key, localPath, versionID string) error {
	data, ok := m.get(bucket, key)
	if !ok {
		return fmt.Errorf("no such key: %v", key)
	}

	m.mu.Lock()
	hook := m.onTransfer
	m.mu.Unlock()
	if hook != nil {
		hook(key)
	}

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

func (m *memBackend) WriteFrom(ctx context.Context, localPath, bucket, key string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return m.put(bucket, key, data)
}

func (m *memBackend) Copy(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey, versionID string) error {
	data, ok := m.get(srcBucket, srcKey)
	if !ok {
		return fmt.Errorf("no such key: %v", srcKey)
	}
	return m.put(dstBucket, dstKey, data)
}

func (m *memBackend) Delete(ctx context.Context, bucket, key, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failDelete[key]; err != nil {
		return err
	}
	delete(m.objects[bucket], key)
	m.deletes = append(m.deletes, key)
	return nil
}

func (m *memBackend) ListVersions(ctx context.Context, bucket, key string) ([]storage.Version, error) {
	return nil, nil
}

func (m *memBackend) Walk(ctx context.Context, bucket, prefix string) ([]storage.Entry, error) {
	m.mu.Lock()
	_, ok := m.objects[bucket]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no such bucket: %v", bucket)
	}

	var entries []storage.Entry
	for _, key := range m.keys(bucket) {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		data, _ := m.get(bucket, key)
		entries = append(entries, storage.Entry{
			Ref:  storage.RemoteRef(bucket, key, ""),
			Name: strings.TrimPrefix(key, prefix),
			Size: int64(len(data)),
		})
	}
	return entries, nil
}

func (m *memBackend) RemoveContainer(ctx context.Context, bucket, prefix string) error {
	for _, key := range m.keys(bucket) {
		if strings.HasPrefix(key, prefix) {
			return fmt.Errorf("%v is not empty", prefix)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.removed = append(m.removed, bucket+"/"+prefix)
	return nil
}

func (m *memBackend) VersioningEnabled(ctx context.Context, bucket string) (bool, error) {
	return m.versioned, nil
}

// testHandler answers conflicts from a script and records every callback.
type testHandler struct {
	decisions  []Decision
	conflicts  []ConflictRequest
	snapshots  []Snapshot
	onProgress func(Snapshot)
	completed  chan Summary
}

func newTestHandler(decisions ...Decision) *testHandler {
	return &testHandler{
		decisions: decisions,
		completed: make(chan Summary, 1),
	}
}

func (h *testHandler) OnConflict(req ConflictRequest) Decision {
	h.conflicts = append(h.conflicts, req)
	if len(h.decisions) == 0 {
		return Cancel
	}
	d := h.decisions[0]
	h.decisions = h.decisions[1:]
	return d
}

func (h *testHandler) OnProgress(s Snapshot) {
	h.snapshots = append(h.snapshots, s)
	if h.onProgress != nil {
		h.onProgress(s)
	}
}

func (h *testHandler) OnComplete(s Summary) {
	h.completed <- s
}

// startLoop runs an event loop for the duration of the test.
func startLoop(t *testing.T) *eventloop.Loop {
	t.Helper()

	loop := eventloop.New(0)
	go loop.Run(context.Background())
	t.Cleanup(loop.Stop)
	return loop
}

// waitComplete waits for the completion callback of the handler.
func waitComplete(t *testing.T, h *testHandler, handle *Handle) Summary {
	t.Helper()

	select {
	case s := <-h.completed:
		<-handle.Done()
		return s
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the job to complete")
	}
	return Summary{}
}

func runCopy(t *testing.T, job *Job, dst Panel, opts Options, h *testHandler) Summary {
	t.Helper()

	engine := NewEngine(startLoop(t), h)
	engine.SetProgressInterval(time.Millisecond)
	return waitComplete(t, h, engine.Start(context.Background(), job, dst, opts))
}

func localPanel(t *testing.T, dir string) Panel {
	t.Helper()
	return Panel{Backend: storage.NewFilesystem(nil), Cwd: storage.LocalRef(dir)}
}

func dirEntry(path string) storage.Entry {
	ref := storage.LocalRef(path)
	return storage.Entry{Ref: ref, Name: ref.Base(), IsDir: true}
}

func fileEntry(t *testing.T, path string) storage.Entry {
	t.Helper()

	st, err := os.Stat(path)
	assert.NilError(t, err)

	ref := storage.LocalRef(path)
	return storage.Entry{Ref: ref, Name: ref.Base(), Size: st.Size()}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	assert.NilError(t, err)
	return string(data)
}
