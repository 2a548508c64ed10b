package hal

import (
	"errors"
	"runtime"
	"sync/atomic"
)

var errInvalidSectorSize = errors.New("hal: sector size must be nonzero")

// yield is the scheduler-yield primitive used by every spinning poll in the
// engine (there is no cooperative suspension in the core, spec §5).
func yield() { runtime.Gosched() }

// SpinLock is a lock-free mutex built on a spinning poll with explicit
// yield, the concurrency primitive the HAL exposes for the armored bitmap's
// l2_lock (spec §5: bitmap mutation and its adjacent L2 summary update share
// one critical section).
type SpinLock struct {
	state int32
}

// Lock spins (yielding between attempts) until the lock is acquired.
func (s *SpinLock) Lock() {
	for !atomic.CompareAndSwapInt32(&s.state, 0, 1) {
		yield()
	}
}

// Unlock releases the lock.
func (s *SpinLock) Unlock() {
	atomic.StoreInt32(&s.state, 0)
}

// TryLock attempts a single non-blocking acquisition.
func (s *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapInt32(&s.state, 0, 1)
}
