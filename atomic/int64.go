package atomic

import "sync/atomic"

// Int64 is a monotonic counter. Readers may observe a stale value but never a
// torn one.
type Int64 int64

// Add adds delta and returns the new value.
func (ai *Int64) Add(delta int64) int64 {
	return atomic.AddInt64((*int64)(ai), delta)
}

// Get gets the current value.
func (ai *Int64) Get() int64 {
	return atomic.LoadInt64((*int64)(ai))
}

// Set stores value.
func (ai *Int64) Set(value int64) {
	atomic.StoreInt64((*int64)(ai), value)
}
