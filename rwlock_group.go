package parkx

import (
	"github.com/llxisdsh/pb"
)

// rwGroupEntry pairs a lock with the number of goroutines currently using
// or waiting on it. The entry is removed from the map when refs drops to
// zero, so idle keys cost nothing.
type rwGroupEntry struct {
	lock RWLock
	refs int
}

// RWLockGroup provides an RWLock per key, materialized on first use and
// dropped when the last holder or waiter leaves. Useful for locking a
// dynamic set of resources, such as rows or files, without keeping a lock
// alive per resource forever.
//
// The zero value is ready for use.
type RWLockGroup[K comparable] struct {
	locks pb.MapOf[K, *rwGroupEntry]
}

// enter pins the entry for key, creating it if absent, and returns its lock.
// The returned lock stays valid until the matching leave.
func (g *RWLockGroup[K]) enter(key K) *RWLock {
	ent, _ := g.locks.ProcessEntry(key, func(e *pb.EntryOf[K, *rwGroupEntry]) (*pb.EntryOf[K, *rwGroupEntry], *rwGroupEntry, bool) {
		if e != nil {
			e.Value.refs++
			return e, e.Value, true
		}
		n := &rwGroupEntry{refs: 1}
		return &pb.EntryOf[K, *rwGroupEntry]{Value: n}, n, true
	})
	return &ent.lock
}

// leave unpins the entry for key, removing it once unused.
func (g *RWLockGroup[K]) leave(key K) {
	g.locks.ProcessEntry(key, func(e *pb.EntryOf[K, *rwGroupEntry]) (*pb.EntryOf[K, *rwGroupEntry], *rwGroupEntry, bool) {
		if e == nil {
			return nil, nil, false
		}
		e.Value.refs--
		if e.Value.refs <= 0 {
			return nil, nil, true
		}
		return e, nil, true
	})
}

// Lock acquires the write lock for key.
func (g *RWLockGroup[K]) Lock(key K) {
	g.enter(key).Lock()
}

// TryLock acquires the write lock for key without blocking.
func (g *RWLockGroup[K]) TryLock(key K) bool {
	if g.enter(key).TryLock() {
		return true
	}
	g.leave(key)
	return false
}

// Unlock releases the write lock for key.
func (g *RWLockGroup[K]) Unlock(key K) {
	g.lookup(key).Unlock()
	g.leave(key)
}

// RLock acquires a read lock for key.
func (g *RWLockGroup[K]) RLock(key K) {
	g.enter(key).RLock()
}

// TryRLock acquires a read lock for key without blocking.
func (g *RWLockGroup[K]) TryRLock(key K) bool {
	if g.enter(key).TryRLock() {
		return true
	}
	g.leave(key)
	return false
}

// RUnlock releases a read lock for key.
func (g *RWLockGroup[K]) RUnlock(key K) {
	g.lookup(key).RUnlock()
	g.leave(key)
}

// ULock acquires the upgradable read lock for key.
func (g *RWLockGroup[K]) ULock(key K) {
	g.enter(key).ULock()
}

// UUnlock releases the upgradable read lock for key.
func (g *RWLockGroup[K]) UUnlock(key K) {
	g.lookup(key).UUnlock()
	g.leave(key)
}

// Upgrade converts the upgradable read lock for key into the write lock.
func (g *RWLockGroup[K]) Upgrade(key K) {
	g.lookup(key).Upgrade()
}

// lookup returns the live lock for key. The caller must hold a reference
// from a previous enter, so the entry is guaranteed to exist.
func (g *RWLockGroup[K]) lookup(key K) *RWLock {
	e, ok := g.locks.Load(key)
	if !ok {
		panic("parkx: unlock of unheld group key")
	}
	return &e.lock
}
