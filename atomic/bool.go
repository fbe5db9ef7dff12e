// Package atomic provides the small set of lock-free values shared between a
// transfer worker and the UI loop.
package atomic

import "sync/atomic"

// Bool is an atomic Boolean.
type Bool int32

// Set sets the Boolean to value.
func (ab *Bool) Set(value bool) {
	var i int32 = 0
	if value {
		i = 1
	}

	atomic.StoreInt32((*int32)(ab), int32(i))
}

// Get gets the Boolean value.
func (ab *Bool) Get() bool {
	return atomic.LoadInt32((*int32)(ab)) != 0
}

// CompareAndSwap executes the compare-and-swap operation for the Boolean.
func (ab *Bool) CompareAndSwap(old, new bool) bool {
	var o, n int32
	if old {
		o = 1
	}
	if new {
		n = 1
	}
	return atomic.CompareAndSwapInt32((*int32)(ab), o, n)
}
