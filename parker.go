package parkx

import (
	"sync/atomic"
	"time"
)

// parker is the blocking half of a parking record: a one-slot wake channel.
//
// The parking protocol commits at most one wake per park cycle, and every
// committed wake is consumed before the record is recycled, so the slot is
// always empty when a new cycle begins.
type parker struct {
	wake chan struct{}
}

// parkWait blocks until a wake is delivered.
func (p *parker) parkWait() {
	<-p.wake
}

// parkUntil blocks until a wake is delivered or the deadline passes,
// reporting whether we were woken. A false return is best-effort: a wake may
// still race in while the record remains queued; Park re-checks under the
// bucket lock.
func (p *parker) parkUntil(deadline time.Time) bool {
	d := time.Until(deadline)
	if d <= 0 {
		select {
		case <-p.wake:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(d)
	select {
	case <-p.wake:
		timer.Stop()
		return true
	case <-timer.C:
		return false
	}
}

// unpark delivers the wake. Called only after the record has been unlinked
// from its queue and the bucket lock released; never blocks, since at that
// point the slot is empty.
func (p *parker) unpark() {
	p.wake <- struct{}{}
}

// threadData is one goroutine's parking record. While the goroutine is
// parked, the record is borrowed by exactly one bucket queue; ownership
// stays with the parked goroutine.
type threadData struct {
	parker parker

	// key is the queue this record sleeps on. UnparkRequeue may rewrite it
	// while the goroutine is parked, hence atomic.
	key atomic.Uintptr

	// nextInQueue links records within a bucket. Guarded by the bucket lock
	// while queued; reused as the free-list link while cached.
	nextInQueue *threadData

	// unparkToken is stored by the unparker under the bucket lock, before
	// the wake is committed; the channel receive orders the read.
	unparkToken UnparkToken

	// parkToken is set by the parking goroutine and inspected by
	// UnparkFilter.
	parkToken ParkToken
}

// Goroutines have no thread-local storage, so records are checked out of a
// free list for the duration of one Park call instead of living in TLS.
// Records are never freed; the count of records ever allocated is the peak
// number of concurrently parked goroutines and drives the hash table's size.
var (
	parkerCacheMu TicketLock
	parkerCache   *threadData
	numParkers    atomic.Uintptr
)

func acquireThreadData() *threadData {
	parkerCacheMu.Lock()
	td := parkerCache
	if td != nil {
		parkerCache = td.nextInQueue
		td.nextInQueue = nil
	}
	parkerCacheMu.Unlock()
	if td != nil {
		return td
	}

	// A brand-new record raises the peak; make sure the table keeps up.
	// This runs before any bucket lock is taken, as growTable locks them all.
	n := numParkers.Add(1)
	growTable(int(n))
	return &threadData{parker: parker{wake: make(chan struct{}, 1)}}
}

func releaseThreadData(td *threadData) {
	parkerCacheMu.Lock()
	td.nextInQueue = parkerCache
	parkerCache = td
	parkerCacheMu.Unlock()
}
