package transfer

import (
	"context"

	"github.com/hashicorp/go-multierror"

	errorpkg "github.com/peak/s5nav/error"
	"github.com/peak/s5nav/log"
)

// StartRemove deletes every leaf of job from its source panel, in order, on
// a new worker goroutine. A container unit is removed after all of its leaves
// were deleted. Removal never raises conflicts.
func (e *Engine) StartRemove(ctx context.Context, job *Job) *Handle {
	return e.start(ctx, job, "rm", func(w *worker) {
		w.removeUnits()
	})
}

func (w *worker) removeUnits() {
	src := w.job.source.Backend

	for _, unit := range w.job.Units {
		if w.stopped() {
			return
		}

		complete := unit.Err == nil
		for _, leaf := range unit.Leaves {
			if w.stopped() {
				return
			}

			ref := leaf.Source
			w.job.progress.setCurrent(ref.String())
			w.reporter.notify()

			err := src.Delete(w.ctx, ref.Container(), ref.Name(), ref.VersionID)
			if err != nil {
				complete = false
				w.job.progress.fail()

				e := &errorpkg.Error{Op: w.op, Src: &ref, Err: err}
				w.errs = multierror.Append(w.errs, e)
				log.Error(log.ErrorMessage{
					Operation: w.op,
					Command:   e.FullCommand(),
					Err:       err.Error(),
				})
				continue
			}

			w.job.progress.succeed(leaf.Size)
			log.Info(log.InfoMessage{Operation: w.op, Source: &ref, Size: leaf.Size})
		}

		if !unit.IsContainer() || !complete {
			continue
		}

		container, prefix := walkRoot(unit.Root)
		if err := src.RemoveContainer(w.ctx, container, prefix); err != nil {
			root := unit.Root
			w.cleanupErrs = multierror.Append(w.cleanupErrs, &errorpkg.Error{Op: w.op, Src: &root, Err: err})
			log.Debugf("unable to remove %v: %v", root, err)
		}
	}
}
