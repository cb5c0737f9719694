package parkx

import (
	"sync/atomic"
	"time"
	"unsafe"
)

const (
	mutexLockedBit uintptr = 1
	mutexParkedBit uintptr = 2
)

// Unpark tokens shared by the parking-based locks.
const (
	// tokenNormal: the lock was released; the woken goroutine must compete
	// for it again.
	tokenNormal UnparkToken = 0

	// tokenHandoff: the lock was handed directly to the woken goroutine
	// without ever becoming free.
	tokenHandoff UnparkToken = 1
)

// Mutex is a parking-based mutual exclusion lock.
//
// The whole lock is one word holding just a locked bit and a parked bit; the
// fast path is a single CAS. Contended goroutines queue in the shared
// parking table keyed by the Mutex address, so the struct stays one word no
// matter how many goroutines wait.
//
// Mostly unfair: new arrivals may barge ahead of queued waiters, which is
// good for throughput. Roughly every 0.5ms of contention an unlock hands
// the lock over in queue order instead, which bounds starvation. UnlockFair
// forces the handoff every time.
//
// The zero value is unlocked. A Mutex must not be copied after first use.
type Mutex struct {
	_     noCopy
	state atomic.Uintptr
}

func (m *Mutex) key() uintptr {
	return uintptr(unsafe.Pointer(m))
}

// Lock acquires the lock, parking the goroutine if it is contended.
func (m *Mutex) Lock() {
	if !m.state.CompareAndSwap(0, mutexLockedBit) {
		m.lockSlow(time.Time{})
	}
	deadlockAcquire(m.key())
}

// TryLock acquires the lock if it is not held, without blocking.
func (m *Mutex) TryLock() bool {
	state := m.state.Load()
	for {
		if state&mutexLockedBit != 0 {
			return false
		}
		if m.state.CompareAndSwap(state, state|mutexLockedBit) {
			deadlockAcquire(m.key())
			return true
		}
		state = m.state.Load()
	}
}

// TryLockFor acquires the lock, giving up after the given duration.
func (m *Mutex) TryLockFor(d time.Duration) bool {
	return m.TryLockUntil(time.Now().Add(d))
}

// TryLockUntil acquires the lock, giving up at the given deadline.
func (m *Mutex) TryLockUntil(deadline time.Time) bool {
	ok := m.state.CompareAndSwap(0, mutexLockedBit) || m.lockSlow(deadline)
	if ok {
		deadlockAcquire(m.key())
	}
	return ok
}

// Unlock releases the lock.
func (m *Mutex) Unlock() {
	deadlockRelease(m.key())
	if m.state.CompareAndSwap(mutexLockedBit, 0) {
		return
	}
	m.unlockSlow(false)
}

// UnlockFair releases the lock, handing it directly to the longest waiting
// goroutine when one is queued, instead of letting new arrivals barge.
func (m *Mutex) UnlockFair() {
	deadlockRelease(m.key())
	if m.state.CompareAndSwap(mutexLockedBit, 0) {
		return
	}
	m.unlockSlow(true)
}

// Bump temporarily yields the lock to a queued waiter, if any, and
// reacquires it. Cheaper than UnlockFair+Lock when nobody waits, and
// without the race window of Unlock+Lock.
func (m *Mutex) Bump() {
	if m.state.Load()&mutexParkedBit != 0 {
		m.bumpSlow()
	}
}

// IsLocked reports whether the lock is currently held by anyone.
func (m *Mutex) IsLocked() bool {
	return m.state.Load()&mutexLockedBit != 0
}

func (m *Mutex) lockSlow(deadline time.Time) bool {
	var spin spinWait
	state := m.state.Load()
	for {
		// Grab the lock whenever it is free, even with parked waiters.
		if state&mutexLockedBit == 0 {
			if m.state.CompareAndSwap(state, state|mutexLockedBit) {
				return true
			}
			state = m.state.Load()
			continue
		}

		// With nobody queued yet, a short spin often avoids the park.
		if state&mutexParkedBit == 0 && spin.spin() {
			state = m.state.Load()
			continue
		}

		if state&mutexParkedBit == 0 {
			if !m.state.CompareAndSwap(state, state|mutexParkedBit) {
				state = m.state.Load()
				continue
			}
		}

		validate := func() bool {
			return m.state.Load() == mutexLockedBit|mutexParkedBit
		}
		timedOut := func(_ uintptr, wasLast bool) {
			if wasLast {
				m.state.And(^mutexParkedBit)
			}
		}
		res, token := Park(m.key(), validate, func() {}, timedOut, DefaultParkToken, deadline)
		switch res {
		case ParkResultUnparked:
			if token == tokenHandoff {
				// The unlocking goroutine left the lock to us directly.
				return true
			}
		case ParkResultInvalid:
			// The lock state changed under us; try again.
		case ParkResultTimeout:
			return false
		}

		spin.reset()
		state = m.state.Load()
	}
}

func (m *Mutex) unlockSlow(forceFair bool) {
	UnparkOne(m.key(), func(result UnparkResult) UnparkToken {
		if result.UnparkedCount != 0 && (forceFair || result.BeFair) {
			// Hand off: the locked bit never clears, so barging
			// goroutines keep failing their CAS.
			if !result.HaveMoreParked {
				m.state.Store(mutexLockedBit)
			}
			return tokenHandoff
		}
		if result.HaveMoreParked {
			m.state.Store(mutexParkedBit)
		} else {
			m.state.Store(0)
		}
		return tokenNormal
	})
}

func (m *Mutex) bumpSlow() {
	deadlockRelease(m.key())
	m.unlockSlow(true)
	m.Lock()
}
