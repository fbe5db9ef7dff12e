// Package eventloop implements the single-goroutine cooperative loop that
// owns every UI side effect. Other goroutines never call into the UI
// directly; they post a callback and the loop runs it on its next iteration.
package eventloop

import (
	"context"
	"sync"
)

const defaultQueueSize = 64

// Loop runs posted callbacks one at a time, in the order they were posted.
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

// New creates a loop. size is the number of callbacks that can be queued
// before Post blocks; zero uses a default.
func New(size int) *Loop {
	if size <= 0 {
		size = defaultQueueSize
	}
	return &Loop{
		queue: make(chan func(), size),
		done:  make(chan struct{}),
	}
}

// Post schedules fn to run on the loop goroutine. It reports false if the
// loop has been stopped, in which case fn never runs.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}

	select {
	case <-l.done:
		return false
	case l.queue <- fn:
		return true
	}
}

// Done is closed when the loop stops.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Stop stops the loop. Callbacks still queued are dropped. It is safe to call
// Stop more than once and from within a callback.
func (l *Loop) Stop() {
	l.once.Do(func() { close(l.done) })
}

// Run executes callbacks until Stop is called or ctx is done. It must be
// called from a single goroutine.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-l.done:
			return nil
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case fn := <-l.queue:
			fn()
		}
	}
}
