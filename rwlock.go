package parkx

import (
	"sync/atomic"
	"time"
	"unsafe"
)

// State word layout, low bits to high:
//
//	Bit 0: parkedBit       — at least one goroutine waits in the primary queue.
//	Bit 1: writerParkedBit — the writerBit holder is parked on the secondary
//	                         queue, waiting only for readers to drain.
//	Bit 2: upgradableBit   — one goroutine holds the upgradable read lock.
//	                         Reader count non-zero, writerBit clear.
//	Bit 3: writerBit       — reader count zero: a writer holds the lock
//	                         exclusively. Non-zero: a writer is draining the
//	                         remaining readers.
//	Bits 4+:               — reader count, in units of oneReader.
const (
	rwParkedBit       uintptr = 0b0001
	rwWriterParkedBit uintptr = 0b0010
	rwUpgradableBit   uintptr = 0b0100
	rwWriterBit       uintptr = 0b1000
	rwReadersMask             = ^uintptr(0b1111)
	rwOneReader       uintptr = 0b10000
)

// Park tokens record what kind of lock a queued goroutine wants, so that an
// unlock can account for the claims of everyone it wakes in one pass.
const (
	tokenShared     = ParkToken(rwOneReader)
	tokenExclusive  = ParkToken(rwWriterBit)
	tokenUpgradable = ParkToken(rwOneReader | rwUpgradableBit)
)

const rwUpgradeDelta = (rwOneReader | rwUpgradableBit) - rwWriterBit

// RWLock is a parking-based reader-writer lock with upgradable reads, timed
// acquisition, and periodic fair handoff. The design follows Boost's
// upgrade_mutex: shared, upgradable and exclusive modes, where at most one
// goroutine holds the upgradable or exclusive lock at a time and the
// upgradable holder can become the writer without ever releasing.
//
// The whole lock is a single state word; see the bit layout above. Waiters
// park in the shared registry under two keys: every new waiter uses the lock
// address, while a writer that owns writerBit and is only draining readers
// parks alone on address+1, so it never competes with newly arriving
// waiters.
//
// The lock is fair between readers and writers: queue order alternates read
// and write phases, so writers cannot be starved by a stream of readers.
// New readers block as soon as a writer is pending, which is also why a
// goroutine that already holds a read lock must use the RLockRecursive
// family for nested acquisitions: those may jump ahead of a pending writer,
// deliberately breaking queue order to avoid deadlock.
//
// The zero value is unlocked. An RWLock must not be copied after first use.
type RWLock struct {
	_     noCopy
	state atomic.Uintptr
}

func (rw *RWLock) key() uintptr {
	return uintptr(unsafe.Pointer(rw))
}

// drainKey is the secondary queue: only the draining writer parks there.
func (rw *RWLock) drainKey() uintptr {
	return uintptr(unsafe.Pointer(rw)) + 1
}

// ----------------------------------------------------------------------------
// Exclusive
// ----------------------------------------------------------------------------

// Lock acquires the write lock, parking until every other holder is gone.
func (rw *RWLock) Lock() {
	if !rw.state.CompareAndSwap(0, rwWriterBit) {
		rw.lockExclusiveSlow(time.Time{})
	}
	deadlockAcquire(rw.key())
}

// TryLock acquires the write lock if the lock is completely free.
func (rw *RWLock) TryLock() bool {
	if rw.state.CompareAndSwap(0, rwWriterBit) {
		deadlockAcquire(rw.key())
		return true
	}
	return false
}

// TryLockFor acquires the write lock, giving up after the given duration.
func (rw *RWLock) TryLockFor(d time.Duration) bool {
	return rw.TryLockUntil(time.Now().Add(d))
}

// TryLockUntil acquires the write lock, giving up at the given deadline.
// On timeout the lock is restored to its pre-call condition, even when the
// writer already reserved the lock and was draining readers.
func (rw *RWLock) TryLockUntil(deadline time.Time) bool {
	ok := rw.state.CompareAndSwap(0, rwWriterBit) || rw.lockExclusiveSlow(deadline)
	if ok {
		deadlockAcquire(rw.key())
	}
	return ok
}

// Unlock releases the write lock, waking queued waiters.
func (rw *RWLock) Unlock() {
	deadlockRelease(rw.key())
	if rw.state.CompareAndSwap(rwWriterBit, 0) {
		return
	}
	rw.unlockExclusiveSlow(false)
}

// UnlockFair releases the write lock, handing it directly to the queued
// waiters instead of letting new arrivals race them for it.
func (rw *RWLock) UnlockFair() {
	deadlockRelease(rw.key())
	if rw.state.CompareAndSwap(rwWriterBit, 0) {
		return
	}
	rw.unlockExclusiveSlow(true)
}

// Bump temporarily yields the write lock to queued waiters, if any, and
// reacquires it, without the race window of Unlock+Lock.
func (rw *RWLock) Bump() {
	if rw.state.Load()&rwParkedBit != 0 {
		rw.bumpExclusiveSlow()
	}
}

// Downgrade atomically converts the write lock into a single read lock,
// waking parked readers (and at most one upgrader) so they can share it.
func (rw *RWLock) Downgrade() {
	s := rw.state.Add(rwOneReader - rwWriterBit)
	if s&rwParkedBit != 0 {
		rw.downgradeSlow(rwOneReader)
	}
}

// DowngradeToUpgradable atomically converts the write lock into the
// upgradable read lock, waking parked readers so they can share it.
func (rw *RWLock) DowngradeToUpgradable() {
	s := rw.state.Add((rwOneReader | rwUpgradableBit) - rwWriterBit)
	if s&rwParkedBit != 0 {
		rw.downgradeSlow(rwOneReader | rwUpgradableBit)
	}
}

// IsLocked reports whether the lock is held in any mode.
func (rw *RWLock) IsLocked() bool {
	return rw.state.Load()&(rwWriterBit|rwReadersMask) != 0
}

// IsLockedExclusive reports whether a writer holds or is draining the lock.
func (rw *RWLock) IsLockedExclusive() bool {
	return rw.state.Load()&rwWriterBit != 0
}

// ----------------------------------------------------------------------------
// Shared
// ----------------------------------------------------------------------------

// RLock acquires a read lock, parking while a writer holds or awaits the
// lock. Goroutines that already hold a read lock must use RLockRecursive
// for nested acquisitions.
func (rw *RWLock) RLock() {
	if !rw.tryRLockFast(false) {
		rw.lockSharedSlow(false, time.Time{})
	}
	deadlockAcquire(rw.key())
}

// TryRLock acquires a read lock without blocking.
func (rw *RWLock) TryRLock() bool {
	ok := rw.tryRLockFast(false) || rw.tryRLockSlow(false)
	if ok {
		deadlockAcquire(rw.key())
	}
	return ok
}

// TryRLockFor acquires a read lock, giving up after the given duration.
func (rw *RWLock) TryRLockFor(d time.Duration) bool {
	return rw.TryRLockUntil(time.Now().Add(d))
}

// TryRLockUntil acquires a read lock, giving up at the given deadline.
func (rw *RWLock) TryRLockUntil(deadline time.Time) bool {
	ok := rw.tryRLockFast(false) || rw.lockSharedSlow(false, deadline)
	if ok {
		deadlockAcquire(rw.key())
	}
	return ok
}

// RLockRecursive acquires a read lock for a goroutine that may already hold
// one. It is allowed to jump ahead of a pending writer, since refusing would
// deadlock the existing read hold against the waiting writer. The cost is
// that the fairness guarantee for that writer is broken.
func (rw *RWLock) RLockRecursive() {
	if !rw.tryRLockFast(true) {
		rw.lockSharedSlow(true, time.Time{})
	}
	deadlockAcquire(rw.key())
}

// TryRLockRecursive is the non-blocking RLockRecursive.
func (rw *RWLock) TryRLockRecursive() bool {
	ok := rw.tryRLockFast(true) || rw.tryRLockSlow(true)
	if ok {
		deadlockAcquire(rw.key())
	}
	return ok
}

// TryRLockRecursiveFor is RLockRecursive with a timeout.
func (rw *RWLock) TryRLockRecursiveFor(d time.Duration) bool {
	return rw.TryRLockRecursiveUntil(time.Now().Add(d))
}

// TryRLockRecursiveUntil is RLockRecursive with a deadline.
func (rw *RWLock) TryRLockRecursiveUntil(deadline time.Time) bool {
	ok := rw.tryRLockFast(true) || rw.lockSharedSlow(true, deadline)
	if ok {
		deadlockAcquire(rw.key())
	}
	return ok
}

// RUnlock releases a read lock. If we were the last reader a draining
// writer was waiting on, it is woken through the secondary queue.
func (rw *RWLock) RUnlock() {
	deadlockRelease(rw.key())
	s := rw.state.Add(^(rwOneReader - 1))
	if s&(rwReadersMask|rwWriterParkedBit) == rwWriterParkedBit {
		rw.rUnlockSlow()
	}
}

// RUnlockFair is identical to RUnlock; shared unlocking is always fair in
// this implementation.
func (rw *RWLock) RUnlockFair() {
	rw.RUnlock()
}

// RBump temporarily yields a read lock to a draining writer, if any, and
// reacquires it.
func (rw *RWLock) RBump() {
	s := rw.state.Load()
	if s&(rwReadersMask|rwWriterBit) == rwOneReader|rwWriterBit {
		rw.RUnlock()
		rw.RLock()
	}
}

// ----------------------------------------------------------------------------
// Upgradable
// ----------------------------------------------------------------------------

// ULock acquires the upgradable read lock: shared with plain readers, but
// exclusive against writers and other upgradable holders, and convertible
// to the write lock via Upgrade without ever releasing.
func (rw *RWLock) ULock() {
	if !rw.tryULockFast() {
		rw.lockUpgradableSlow(time.Time{})
	}
	deadlockAcquire(rw.key())
}

// TryULock acquires the upgradable read lock without blocking.
func (rw *RWLock) TryULock() bool {
	ok := rw.tryULockFast() || rw.tryULockSlow()
	if ok {
		deadlockAcquire(rw.key())
	}
	return ok
}

// TryULockFor acquires the upgradable read lock, giving up after d.
func (rw *RWLock) TryULockFor(d time.Duration) bool {
	return rw.TryULockUntil(time.Now().Add(d))
}

// TryULockUntil acquires the upgradable read lock, giving up at deadline.
func (rw *RWLock) TryULockUntil(deadline time.Time) bool {
	ok := rw.tryULockFast() || rw.lockUpgradableSlow(deadline)
	if ok {
		deadlockAcquire(rw.key())
	}
	return ok
}

// UUnlock releases the upgradable read lock.
func (rw *RWLock) UUnlock() {
	deadlockRelease(rw.key())
	state := rw.state.Load()
	if state&rwParkedBit == 0 {
		if rw.state.CompareAndSwap(state, state-(rwOneReader|rwUpgradableBit)) {
			return
		}
	}
	rw.unlockUpgradableSlow(false)
}

// UUnlockFair releases the upgradable read lock, handing it directly to
// queued waiters instead of letting new arrivals race them for it.
func (rw *RWLock) UUnlockFair() {
	deadlockRelease(rw.key())
	state := rw.state.Load()
	if state&rwParkedBit == 0 {
		if rw.state.CompareAndSwap(state, state-(rwOneReader|rwUpgradableBit)) {
			return
		}
	}
	rw.unlockUpgradableSlow(true)
}

// UBump temporarily yields the upgradable lock to queued waiters, if any,
// and reacquires it.
func (rw *RWLock) UBump() {
	if rw.state.Load() == rwOneReader|rwUpgradableBit|rwParkedBit {
		rw.uBumpSlow()
	}
}

// DowngradeUpgradable converts the upgradable read lock into a plain read
// lock, waking any parked upgradable waiter so it can take over the slot.
func (rw *RWLock) DowngradeUpgradable() {
	s := rw.state.Add(^(rwUpgradableBit - 1))
	if s&rwParkedBit != 0 {
		rw.downgradeSlow(rwOneReader)
	}
}

// Upgrade converts the upgradable read lock into the write lock, draining
// any other readers. No intermediate unlocked state is ever observable: the
// writer claim and the removal of our read claim happen in one atomic step.
func (rw *RWLock) Upgrade() {
	s := rw.state.Add(^(rwUpgradeDelta - 1))
	if (s+rwUpgradeDelta)&rwReadersMask != rwOneReader {
		rw.upgradeSlow(time.Time{})
	}
}

// TryUpgrade converts the upgradable read lock into the write lock if no
// other readers are present, without blocking.
func (rw *RWLock) TryUpgrade() bool {
	if rw.state.CompareAndSwap(rwOneReader|rwUpgradableBit, rwWriterBit) {
		return true
	}
	return rw.tryUpgradeSlow()
}

// TryUpgradeFor is Upgrade with a drain timeout; on timeout the upgradable
// read lock is retained exactly as before the call.
func (rw *RWLock) TryUpgradeFor(d time.Duration) bool {
	return rw.TryUpgradeUntil(time.Now().Add(d))
}

// TryUpgradeUntil is Upgrade with a drain deadline.
func (rw *RWLock) TryUpgradeUntil(deadline time.Time) bool {
	s := rw.state.Add(^(rwUpgradeDelta - 1))
	if (s+rwUpgradeDelta)&rwReadersMask == rwOneReader {
		return true
	}
	return rw.upgradeSlow(deadline)
}

// ----------------------------------------------------------------------------
// Slow paths
// ----------------------------------------------------------------------------

func (rw *RWLock) tryRLockFast(recursive bool) bool {
	state := rw.state.Load()

	// No shared grabs while a writer holds or drains the lock, except that
	// recursive readers may jump a pending writer while other readers still
	// hold it, trading that writer's fairness for deadlock freedom.
	if state&rwWriterBit != 0 {
		if !recursive || state&rwReadersMask == 0 {
			return false
		}
	}
	n := state + rwOneReader
	if n < state {
		return false
	}
	return rw.state.CompareAndSwap(state, n)
}

func (rw *RWLock) tryRLockSlow(recursive bool) bool {
	state := rw.state.Load()
	for {
		if state&rwWriterBit != 0 {
			if !recursive || state&rwReadersMask == 0 {
				return false
			}
		}
		if rw.state.CompareAndSwap(state, checkedReaders(state, rwOneReader)) {
			return true
		}
		state = rw.state.Load()
	}
}

func (rw *RWLock) lockSharedSlow(recursive bool, deadline time.Time) bool {
	tryLock := func(state *uintptr) bool {
		var spin spinWait
		for {
			// Mirrors tryRLockFast.
			if *state&rwWriterBit != 0 {
				if !recursive || *state&rwReadersMask == 0 {
					return false
				}
			}
			if rw.state.CompareAndSwap(*state, checkedReaders(*state, rwOneReader)) {
				return true
			}

			// High contention on the reader count: leave some time between
			// attempts so other goroutines can make progress.
			spin.spinNoYield()
			*state = rw.state.Load()
		}
	}
	return rw.lockCommon(deadline, tokenShared, tryLock, rwWriterBit)
}

func (rw *RWLock) rUnlockSlow() {
	// Readers are drained and a writer sleeps on the secondary queue; wake
	// it. Only one writer can ever be parked there.
	UnparkOne(rw.drainKey(), func(UnparkResult) UnparkToken {
		rw.state.And(^rwWriterParkedBit)
		return tokenNormal
	})
}

func (rw *RWLock) lockExclusiveSlow(deadline time.Time) bool {
	tryLock := func(state *uintptr) bool {
		for {
			if *state&(rwWriterBit|rwUpgradableBit) != 0 {
				return false
			}

			// Grab writerBit even while readers remain; they drain below.
			if rw.state.CompareAndSwap(*state, *state|rwWriterBit) {
				return true
			}
			*state = rw.state.Load()
		}
	}

	// Step 1: exclusive ownership of writerBit.
	if !rw.lockCommon(deadline, tokenExclusive, tryLock, rwWriterBit|rwUpgradableBit) {
		return false
	}

	// Step 2: wait for the remaining readers to exit the lock.
	return rw.waitForReaders(deadline, 0)
}

func (rw *RWLock) unlockExclusiveSlow(forceFair bool) {
	rw.wakeParkedThreads(0, func(newState uintptr, result UnparkResult) UnparkToken {
		// Fair unlock: keep the lock and hand it to the woken goroutines.
		if result.UnparkedCount != 0 && (forceFair || result.BeFair) {
			if result.HaveMoreParked {
				newState |= rwParkedBit
			}
			rw.state.Store(newState)
			return tokenHandoff
		}
		if result.HaveMoreParked {
			rw.state.Store(rwParkedBit)
		} else {
			rw.state.Store(0)
		}
		return tokenNormal
	})
}

func (rw *RWLock) tryULockFast() bool {
	state := rw.state.Load()

	// No upgradable grab while there is a writer or another upgradable
	// holder.
	if state&(rwWriterBit|rwUpgradableBit) != 0 {
		return false
	}
	n := state + (rwOneReader | rwUpgradableBit)
	if n < state {
		return false
	}
	return rw.state.CompareAndSwap(state, n)
}

func (rw *RWLock) tryULockSlow() bool {
	state := rw.state.Load()
	for {
		if state&(rwWriterBit|rwUpgradableBit) != 0 {
			return false
		}
		if rw.state.CompareAndSwap(state, checkedReaders(state, rwOneReader|rwUpgradableBit)) {
			return true
		}
		state = rw.state.Load()
	}
}

func (rw *RWLock) lockUpgradableSlow(deadline time.Time) bool {
	tryLock := func(state *uintptr) bool {
		var spin spinWait
		for {
			if *state&(rwWriterBit|rwUpgradableBit) != 0 {
				return false
			}
			if rw.state.CompareAndSwap(*state, checkedReaders(*state, rwOneReader|rwUpgradableBit)) {
				return true
			}

			spin.spinNoYield()
			*state = rw.state.Load()
		}
	}
	return rw.lockCommon(deadline, tokenUpgradable, tryLock, rwWriterBit|rwUpgradableBit)
}

func (rw *RWLock) unlockUpgradableSlow(forceFair bool) {
	// Just release while nobody is parked.
	state := rw.state.Load()
	for state&rwParkedBit == 0 {
		if rw.state.CompareAndSwap(state, state-(rwOneReader|rwUpgradableBit)) {
			return
		}
		state = rw.state.Load()
	}

	rw.wakeParkedThreads(0, func(newState uintptr, result UnparkResult) UnparkToken {
		state := rw.state.Load()
		if forceFair || result.BeFair {
			// Hand off: swap our read+upgradable claim for the woken
			// goroutines' claims. Falls back to a normal release if the
			// reader count would overflow; panicking is not allowed in
			// parking callbacks.
			for {
				base := state - (rwOneReader | rwUpgradableBit)
				n := base + newState
				if n < base {
					break
				}
				if result.HaveMoreParked {
					n |= rwParkedBit
				} else {
					n &^= rwParkedBit
				}
				if rw.state.CompareAndSwap(state, n) {
					return tokenHandoff
				}
				state = rw.state.Load()
			}
		}

		for {
			n := state - (rwOneReader | rwUpgradableBit)
			if result.HaveMoreParked {
				n |= rwParkedBit
			} else {
				n &^= rwParkedBit
			}
			if rw.state.CompareAndSwap(state, n) {
				return tokenNormal
			}
			state = rw.state.Load()
		}
	})
}

func (rw *RWLock) tryUpgradeSlow() bool {
	state := rw.state.Load()
	for {
		if state&rwReadersMask != rwOneReader {
			return false
		}
		if rw.state.CompareAndSwap(state, state-(rwOneReader|rwUpgradableBit)+rwWriterBit) {
			return true
		}
		state = rw.state.Load()
	}
}

func (rw *RWLock) upgradeSlow(deadline time.Time) bool {
	return rw.waitForReaders(deadline, rwOneReader|rwUpgradableBit)
}

func (rw *RWLock) downgradeSlow(claimed uintptr) {
	rw.wakeParkedThreads(claimed, func(_ uintptr, result UnparkResult) UnparkToken {
		if !result.HaveMoreParked {
			rw.state.And(^rwParkedBit)
		}
		return tokenNormal
	})
}

func (rw *RWLock) bumpExclusiveSlow() {
	deadlockRelease(rw.key())
	rw.unlockExclusiveSlow(true)
	rw.Lock()
}

func (rw *RWLock) uBumpSlow() {
	deadlockRelease(rw.key())
	rw.unlockUpgradableSlow(true)
	rw.ULock()
}

// wakeParkedThreads wakes all parked readers plus at most one writer or
// upgradable reader in a single queue pass. An upgrader or writer must be
// considered even when only readers were released, since RUnlock never comes
// here and a writer left behind could otherwise sleep forever.
//
// claimed seeds the accumulated state with what the caller still holds, so
// the filter skips an upgrader when the caller keeps its own upgradable
// claim. callback receives the summed claims of everyone woken.
func (rw *RWLock) wakeParkedThreads(claimed uintptr, callback func(uintptr, UnparkResult) UnparkToken) {
	newState := claimed
	filter := func(token ParkToken) FilterOp {
		s := newState

		// Once a writer is chosen nothing behind it may wake.
		if s&rwWriterBit != 0 {
			return FilterOpStop
		}

		if uintptr(token)&(rwUpgradableBit|rwWriterBit) != 0 && s&rwUpgradableBit != 0 {
			// Skip further writers and upgraders once one is accounted for.
			return FilterOpSkip
		}
		newState = s + uintptr(token)
		return FilterOpUnpark
	}
	UnparkFilter(rw.key(), filter, func(result UnparkResult) UnparkToken {
		return callback(newState, result)
	})
}

// waitForReaders parks on the secondary queue until the last reader leaves.
// prev is the claim to restore should the deadline pass: the writer gives
// writerBit back and restores the reader/upgradable bits it traded in, then
// wakes anyone who became eligible. A partial failure must never leave
// writerBit set with no owner.
func (rw *RWLock) waitForReaders(deadline time.Time, prev uintptr) bool {
	var spin spinWait
	state := rw.state.Load()
	for state&rwReadersMask != 0 {
		// Readers usually leave quickly; spin a few times first.
		if spin.spin() {
			state = rw.state.Load()
			continue
		}

		if state&rwWriterParkedBit == 0 {
			if !rw.state.CompareAndSwap(state, state|rwWriterParkedBit) {
				state = rw.state.Load()
				continue
			}
		}

		validate := func() bool {
			s := rw.state.Load()
			return s&rwReadersMask != 0 && s&rwWriterParkedBit != 0
		}
		res, _ := Park(rw.drainKey(), validate, func() {}, func(uintptr, bool) {}, tokenExclusive, deadline)
		switch res {
		case ParkResultUnparked, ParkResultInvalid:
			// A previous writer's timeout may have let a reader slip in
			// before we parked; re-check.
			state = rw.state.Load()
			continue
		case ParkResultTimeout:
			// Give writerBit back, restore our previous claim, and wake
			// whoever is now eligible. A last reader racing with this
			// timeout may have cleared writerParkedBit already, so the
			// restore cannot be a blind subtraction.
			s := rw.state.Load()
			for {
				n := (s &^ (rwWriterBit | rwWriterParkedBit)) + prev
				if rw.state.CompareAndSwap(s, n) {
					break
				}
				s = rw.state.Load()
			}
			if s&rwParkedBit != 0 {
				rw.wakeParkedThreads(rwOneReader|rwUpgradableBit, func(_ uintptr, result UnparkResult) UnparkToken {
					if !result.HaveMoreParked {
						rw.state.And(^rwParkedBit)
					}
					return tokenNormal
				})
			}
			return false
		}
	}
	return true
}

// lockCommon is the shared acquisition slow path: spin, set the parked bit,
// park on the primary queue, and retry until tryLock succeeds, a handoff
// arrives, or the deadline passes. validateFlags are the state bits that
// must still hold a conflicting claim for parking to stay worthwhile.
func (rw *RWLock) lockCommon(deadline time.Time, token ParkToken, tryLock func(*uintptr) bool, validateFlags uintptr) bool {
	var spin spinWait
	state := rw.state.Load()
	for {
		if tryLock(&state) {
			return true
		}

		// With nobody parked a short spin often avoids the park.
		if state&(rwParkedBit|rwWriterParkedBit) == 0 && spin.spin() {
			state = rw.state.Load()
			continue
		}

		if state&rwParkedBit == 0 {
			if !rw.state.CompareAndSwap(state, state|rwParkedBit) {
				state = rw.state.Load()
				continue
			}
		}

		validate := func() bool {
			s := rw.state.Load()
			return s&rwParkedBit != 0 && s&validateFlags != 0
		}
		timedOut := func(_ uintptr, wasLast bool) {
			if wasLast {
				rw.state.And(^rwParkedBit)
			}
		}
		res, tok := Park(rw.key(), validate, func() {}, timedOut, token, deadline)
		switch res {
		case ParkResultUnparked:
			if tok == tokenHandoff {
				// The unlocking goroutine passed the lock to us directly.
				return true
			}
		case ParkResultInvalid:
			// Lock state changed between our CAS and queuing; retry.
		case ParkResultTimeout:
			return false
		}

		spin.reset()
		state = rw.state.Load()
	}
}

// checkedReaders returns state plus delta, aborting the process when the
// reader count would overflow the word: wrapping silently would corrupt the
// state word, and there is no way to recover from that.
func checkedReaders(state, delta uintptr) uintptr {
	n := state + delta
	if n < state {
		panic("parkx: reader count overflow")
	}
	return n
}
