package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	errorpkg "github.com/peak/s5nav/error"
	"github.com/peak/s5nav/log"
	"github.com/peak/s5nav/storage"
)

// DefaultProgressInterval is the redraw period of a running job.
const DefaultProgressInterval = 200 * time.Millisecond

// Options are the per-job choices of the copy/move dialog.
type Options struct {
	// Move deletes every successfully transferred source.
	Move bool

	// Target is the user-edited destination, relative to the destination
	// panel unless absolute. Empty means the panel's location.
	Target string
}

// Engine runs jobs. Each job gets its own worker goroutine; callbacks are
// posted to the loop.
type Engine struct {
	loop     Loop
	handler  Handler
	interval time.Duration
}

// Loop is the scheduling primitive of the UI. eventloop.Loop implements it.
type Loop interface {
	Post(fn func()) bool
	Done() <-chan struct{}
}

// NewEngine creates an engine delivering callbacks to handler on loop.
func NewEngine(loop Loop, handler Handler) *Engine {
	return &Engine{
		loop:     loop,
		handler:  handler,
		interval: DefaultProgressInterval,
	}
}

// SetProgressInterval changes the redraw period of jobs started afterwards.
func (e *Engine) SetProgressInterval(d time.Duration) {
	if d > 0 {
		e.interval = d
	}
}

// Handle tracks a running job.
type Handle struct {
	job     *Job
	done    chan struct{}
	summary Summary
}

// Job returns the job of the handle.
func (h *Handle) Job() *Job {
	return h.job
}

// Cancel cancels the job.
func (h *Handle) Cancel() {
	h.job.Cancel()
}

// Done is closed when the worker returns.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the worker returns and reports its summary. The summary
// is also delivered to Handler.OnComplete on the loop.
func (h *Handle) Wait() Summary {
	<-h.done
	return h.summary
}

// Start runs job against dst on a new worker goroutine. A job can only be
// started once.
func (e *Engine) Start(ctx context.Context, job *Job, dst Panel, opts Options) *Handle {
	op := "cp"
	if opts.Move {
		op = "mv"
	}
	return e.start(ctx, job, op, func(w *worker) {
		w.copyUnits(dst, opts)
	})
}

func (e *Engine) start(ctx context.Context, job *Job, op string, fn func(*worker)) *Handle {
	h := &Handle{job: job, done: make(chan struct{})}

	if !job.started.CompareAndSwap(false, true) {
		h.summary = Summary{Operation: op, Err: fmt.Errorf("job already started")}
		close(h.done)
		return h
	}

	if job.progress == nil {
		job.progress = newProgress(job.TotalFiles(), job.TotalBytes)
	}

	rep := &reporter{progress: job.progress, loop: e.loop, handler: e.handler}
	w := &worker{
		ctx:      ctx,
		op:       op,
		job:      job,
		resolver: newResolver(e.loop, e.handler),
		reporter: rep,
	}

	go func() {
		defer close(h.done)

		job.progress.start(time.Now())

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep.run(e.interval, stop)
		}()

		fn(w)

		close(stop)
		wg.Wait()

		job.progress.setCurrent("")
		job.progress.finish(time.Now())

		summary := newSummary(op, job)
		summary.Err = w.errs.ErrorOrNil()
		summary.CleanupErr = w.cleanupErrs.ErrorOrNil()
		h.summary = summary

		log.Debug(summary.Message())
		rep.complete(summary)
	}()

	return h
}

// worker is the state of one running job. It is owned by the job goroutine.
type worker struct {
	ctx      context.Context
	op       string
	job      *Job
	resolver *Resolver
	reporter *reporter

	errs        *multierror.Error
	cleanupErrs *multierror.Error
}

// stopped reports whether the job must not start another leaf.
func (w *worker) stopped() bool {
	if w.ctx.Err() != nil {
		w.job.Cancel()
	}
	return w.job.Cancelled()
}

type leafResult int

const (
	leafSucceeded leafResult = iota
	leafFailed
	leafSkipped
	leafCancelled
)

// unitOutcome tracks what a move may clean up after a unit.
type unitOutcome struct {
	// pending are the sources whose transfer succeeded.
	pending []storage.Ref
	// complete is false once a leaf failed, was skipped or never ran.
	complete bool
}

func (w *worker) copyUnits(dst Panel, opts Options) {
	src := w.job.source

	base, err := resolveTarget(dst.Cwd, opts.Target)
	if err != nil {
		w.errs = multierror.Append(w.errs, &errorpkg.Error{Op: w.op, Err: err})
		for _, unit := range w.job.Units {
			for range unit.Leaves {
				w.job.progress.fail()
			}
		}
		return
	}
	// an empty target keeps the unit's own name
	single := len(w.job.Units) == 1 && opts.Target != ""

	for _, unit := range w.job.Units {
		if w.stopped() {
			return
		}

		outcome := unitOutcome{complete: unit.Err == nil && len(unit.Leaves) > 0}
		for _, leaf := range unit.Leaves {
			if w.stopped() {
				outcome.complete = false
				break
			}

			to := destinationOf(base, single, unit, leaf)
			w.job.progress.setCurrent(leaf.Source.String())
			w.reporter.notify()

			switch w.transferLeaf(src.Backend, dst.Backend, leaf, to) {
			case leafSucceeded:
				w.job.progress.succeed(leaf.Size)
				if opts.Move {
					outcome.pending = append(outcome.pending, leaf.Source)
				}
			case leafFailed:
				w.job.progress.fail()
				outcome.complete = false
			case leafSkipped:
				w.job.progress.skip()
				outcome.complete = false
			case leafCancelled:
				outcome.complete = false
			}
			w.reporter.notify()

			if w.job.Cancelled() {
				outcome.complete = false
				break
			}
		}

		if opts.Move {
			w.cleanup(src.Backend, unit, outcome)
		}
	}
}

// transferLeaf runs the conflict protocol for one leaf and moves its bytes.
func (w *worker) transferLeaf(src, dst storage.Backend, leaf LeafFile, to storage.Ref) leafResult {
	from := leaf.Source

	if w.job.sticky != overwriteAll {
		meta, err := dst.Exists(w.ctx, to.Container(), to.Name())
		if err != nil {
			w.failed(from, to, err)
			return leafFailed
		}

		if meta != nil {
			req := ConflictRequest{
				DisplayName: leaf.RelativePath,
				Source:      from,
				Destination: to,
				SourceMeta:  storage.Metadata{Size: leaf.Size, ModTime: leaf.ModTime, VersionID: from.VersionID},
				DestMeta:    *meta,
				CanVersion:  canVersion(w.ctx, dst, to),
			}

			switch w.resolver.Resolve(w.ctx, w.job, req) {
			case Skip:
				reason := errorpkg.ErrObjectExists
				if w.job.sticky == skipAll {
					reason = errorpkg.ErrObjectSkipped
				}
				log.Debug(log.WarningMessage{
					Operation: w.op,
					Command:   fmt.Sprintf("%v %v %v", w.op, from, to),
					Err:       reason.Error(),
				})
				return leafSkipped
			case Cancel:
				return leafCancelled
			case NewVersion:
				if !to.IsRemote() {
					unique, err := uniqueName(w.ctx, dst, to)
					if err != nil {
						w.failed(from, to, err)
						return leafFailed
					}
					to = unique
				}
			}
		}
	}

	if err := dispatch(w.ctx, src, dst, from, to); err != nil {
		w.failed(from, to, err)
		return leafFailed
	}

	log.Info(log.InfoMessage{
		Operation:   w.op,
		Source:      &from,
		Destination: &to,
		Size:        leaf.Size,
	})
	return leafSucceeded
}

func (w *worker) failed(from, to storage.Ref, err error) {
	e := &errorpkg.Error{Op: w.op, Src: &from, Dst: &to, Err: err}
	w.errs = multierror.Append(w.errs, e)
	log.Error(log.ErrorMessage{
		Operation: w.op,
		Command:   e.FullCommand(),
		Err:       err.Error(),
	})
}

// cleanup deletes the sources of a moved unit. Every source whose transfer
// succeeded is deleted, even when other leaves of the unit failed. The
// container itself is removed only when every leaf was moved and deleted.
// Cleanup failures never revert the copy and are not counted.
func (w *worker) cleanup(src storage.Backend, unit Unit, outcome unitOutcome) {
	complete := outcome.complete
	for _, ref := range outcome.pending {
		if err := src.Delete(w.ctx, ref.Container(), ref.Name(), ref.VersionID); err != nil {
			complete = false
			w.cleanupFailed(ref, err)
		}
	}

	if !unit.IsContainer() || !complete {
		return
	}

	container, prefix := walkRoot(unit.Root)
	if err := src.RemoveContainer(w.ctx, container, prefix); err != nil {
		w.cleanupFailed(unit.Root, err)
	}
}

func (w *worker) cleanupFailed(ref storage.Ref, err error) {
	w.cleanupErrs = multierror.Append(w.cleanupErrs, &errorpkg.Error{Op: "rm", Src: &ref, Err: err})
	log.Debugf("unable to remove %v after %v: %v", ref, w.op, err)
}
