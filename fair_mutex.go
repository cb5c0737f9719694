package parkx

import "time"

// FairMutex is a Mutex whose Unlock always hands the lock to the longest
// waiting goroutine when one is queued. This trades throughput for strict
// queue order; prefer Mutex unless starvation is a real concern.
//
// The zero value is unlocked. A FairMutex must not be copied after first use.
type FairMutex struct {
	m Mutex
}

// Lock acquires the lock, parking the goroutine if it is contended.
func (m *FairMutex) Lock() {
	m.m.Lock()
}

// TryLock acquires the lock if it is not held, without blocking.
func (m *FairMutex) TryLock() bool {
	return m.m.TryLock()
}

// TryLockFor acquires the lock, giving up after the given duration.
func (m *FairMutex) TryLockFor(d time.Duration) bool {
	return m.m.TryLockFor(d)
}

// TryLockUntil acquires the lock, giving up at the given deadline.
func (m *FairMutex) TryLockUntil(deadline time.Time) bool {
	return m.m.TryLockUntil(deadline)
}

// Unlock releases the lock, handing it to a queued waiter if there is one.
func (m *FairMutex) Unlock() {
	m.m.UnlockFair()
}

// Bump temporarily yields the lock to a queued waiter, if any.
func (m *FairMutex) Bump() {
	m.m.Bump()
}

// IsLocked reports whether the lock is currently held by anyone.
func (m *FairMutex) IsLocked() bool {
	return m.m.IsLocked()
}
