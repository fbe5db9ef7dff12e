package transfer

import (
	"sync"
	"time"

	"github.com/peak/s5nav/atomic"
)

// Progress holds the counters of a running job. Totals are set once; every
// other counter only increases, so a Snapshot taken from another goroutine is
// stale at worst, never corrupt.
type Progress struct {
	totalFiles int64
	totalBytes int64

	processedFiles atomic.Int64
	processedBytes atomic.Int64
	succeeded      atomic.Int64
	failed         atomic.Int64
	skipped        atomic.Int64

	// unix nanoseconds; zero until the job starts or ends
	startedAt  atomic.Int64
	finishedAt atomic.Int64

	mu      sync.Mutex
	current string
}

// Snapshot is a point-in-time read of the counters.
type Snapshot struct {
	TotalFiles     int64
	TotalBytes     int64
	ProcessedFiles int64
	ProcessedBytes int64
	Succeeded      int64
	Failed         int64
	Skipped        int64

	// Current is the display path of the leaf in flight.
	Current string

	Elapsed time.Duration
	// Throughput is processed bytes per second.
	Throughput float64
}

func newProgress(totalFiles, totalBytes int64) *Progress {
	return &Progress{totalFiles: totalFiles, totalBytes: totalBytes}
}

func (p *Progress) start(now time.Time) {
	p.startedAt.Set(now.UnixNano())
}

func (p *Progress) finish(now time.Time) {
	p.finishedAt.Set(now.UnixNano())
}

func (p *Progress) setCurrent(name string) {
	p.mu.Lock()
	p.current = name
	p.mu.Unlock()
}

func (p *Progress) succeed(size int64) {
	p.processedBytes.Add(size)
	p.succeeded.Add(1)
	p.processedFiles.Add(1)
}

func (p *Progress) fail() {
	p.failed.Add(1)
	p.processedFiles.Add(1)
}

func (p *Progress) skip() {
	p.skipped.Add(1)
	p.processedFiles.Add(1)
}

// Snapshot reads the counters.
func (p *Progress) Snapshot() Snapshot {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	s := Snapshot{
		TotalFiles:     p.totalFiles,
		TotalBytes:     p.totalBytes,
		ProcessedFiles: p.processedFiles.Get(),
		ProcessedBytes: p.processedBytes.Get(),
		Succeeded:      p.succeeded.Get(),
		Failed:         p.failed.Get(),
		Skipped:        p.skipped.Get(),
		Current:        current,
	}

	started := p.startedAt.Get()
	if started == 0 {
		return s
	}

	end := time.Now().UnixNano()
	if finished := p.finishedAt.Get(); finished != 0 {
		end = finished
	}
	s.Elapsed = time.Duration(end - started)
	s.Throughput = throughput(s.ProcessedBytes, s.Elapsed)
	return s
}

func throughput(bytes int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(bytes) / secs
}

// Percent returns the completed share of bytes, or of files when the job has
// no bytes to move.
func (s Snapshot) Percent() float64 {
	if s.TotalBytes > 0 {
		return float64(s.ProcessedBytes) * 100 / float64(s.TotalBytes)
	}
	if s.TotalFiles > 0 {
		return float64(s.ProcessedFiles) * 100 / float64(s.TotalFiles)
	}
	return 100
}

// reporter delivers snapshots to the handler on the UI loop. At most one
// progress callback is queued at a time; ticks arriving while one is pending
// are dropped since the pending callback reads the counters when it runs.
type reporter struct {
	progress *Progress
	loop     Loop
	handler  Handler
	queued   atomic.Bool
}

func (r *reporter) notify() {
	if !r.queued.CompareAndSwap(false, true) {
		return
	}

	ok := r.loop.Post(func() {
		r.queued.Set(false)
		r.handler.OnProgress(r.progress.Snapshot())
	})
	if !ok {
		r.queued.Set(false)
	}
}

// run notifies every interval until done is closed.
func (r *reporter) run(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.notify()
		}
	}
}

// complete posts the final snapshot followed by the completion callback.
func (r *reporter) complete(summary Summary) {
	final := r.progress.Snapshot()
	r.loop.Post(func() {
		r.handler.OnProgress(final)
		r.handler.OnComplete(summary)
	})
}
