package parkx

import (
	"time"
)

// The parking registry maps arbitrary integer keys (typically lock
// addresses) to queues of parked goroutines, in the manner of Linux futexes
// and WebKit's WTF::ParkingLot. A lock built on it keeps its entire state in
// one atomic word and only calls in here when contention is detected, so any
// number of independent lock types share one blocking mechanism.
//
// Callers must only use keys they control: parking on someone else's key
// interferes with the operation of their synchronization primitives.

// ParkToken is a value associated with a parked goroutine, inspected by
// UnparkFilter to decide who wakes.
type ParkToken uintptr

// UnparkToken is a value passed from an unparker to the goroutine it wakes,
// typically to distinguish a direct lock handoff from a plain wakeup.
type UnparkToken uintptr

// Default tokens to use when no extra information needs to be exchanged.
const (
	DefaultParkToken   ParkToken   = 0
	DefaultUnparkToken UnparkToken = 0
)

// ParkResult is the outcome of a Park call.
type ParkResult int8

const (
	// ParkResultUnparked: another goroutine woke us; the returned token is
	// the one it left.
	ParkResultUnparked ParkResult = iota

	// ParkResultInvalid: the validate callback returned false; the caller
	// was never queued.
	ParkResultInvalid

	// ParkResultTimeout: the deadline passed. The record is guaranteed to
	// be unlinked from every queue before Park returns this.
	ParkResultTimeout
)

// UnparkResult describes what an unpark-family operation did.
type UnparkResult struct {
	// UnparkedCount is the number of goroutines woken.
	UnparkedCount int

	// RequeuedCount is the number of goroutines migrated to the target
	// queue by UnparkRequeue.
	RequeuedCount int

	// HaveMoreParked reports whether waiters with the key remain queued.
	// Only set when a goroutine was actually unparked.
	HaveMoreParked bool

	// BeFair is set on average every 0.5ms for any given key. The caller
	// should respond with a fair handoff for this particular unlock.
	BeFair bool
}

// RequeueOp tells UnparkRequeue what to do with the waiters it found.
type RequeueOp int8

const (
	// RequeueOpAbort: do nothing.
	RequeueOpAbort RequeueOp = iota

	// RequeueOpUnparkOneRequeueRest: wake the first waiter, migrate the
	// rest onto the target queue.
	RequeueOpUnparkOneRequeueRest

	// RequeueOpRequeueAll: migrate every waiter onto the target queue.
	RequeueOpRequeueAll

	// RequeueOpUnparkOne: wake the first waiter, leave the rest queued.
	RequeueOpUnparkOne

	// RequeueOpRequeueOne: migrate the first waiter, leave the rest queued.
	RequeueOpRequeueOne
)

// FilterOp is UnparkFilter's per-waiter verdict.
type FilterOp int8

const (
	// FilterOpUnpark: wake this goroutine and continue scanning.
	FilterOpUnpark FilterOp = iota

	// FilterOpSkip: leave this goroutine queued and continue scanning.
	FilterOpSkip

	// FilterOpStop: leave this goroutine queued and stop scanning.
	FilterOpStop
)

// Park parks the current goroutine on the queue keyed by key.
//
// validate runs with the queue locked and can abort by returning false; this
// lets the caller re-check its fast-path condition atomically with respect
// to queue insertion. beforeSleep runs after the queue is unlocked but
// before the goroutine blocks; that window may be used to release an outer
// lock that protected the fast-path check. timedOut runs with the queue
// locked, only when the deadline passed; it receives the key of the queue
// the record was on when it timed out (UnparkRequeue may have changed it)
// and whether it was the last record with that key.
//
// A zero deadline parks indefinitely.
//
// validate and timedOut execute under a bucket lock: they must not block,
// panic, or call back into this package. beforeSleep may call the
// unpark-family functions but must never call Park or panic.
func Park(
	key uintptr,
	validate func() bool,
	beforeSleep func(),
	timedOut func(key uintptr, wasLastInQueue bool),
	parkToken ParkToken,
	deadline time.Time,
) (ParkResult, UnparkToken) {
	td := acquireThreadData()
	defer releaseThreadData(td)

	b := lockBucket(key)

	if !validate() {
		b.mu.Unlock()
		return ParkResultInvalid, DefaultUnparkToken
	}

	// Append our record to the queue and unlock.
	timed := !deadline.IsZero()
	td.nextInQueue = nil
	td.key.Store(key)
	td.parkToken = parkToken
	if b.queueHead != nil {
		b.queueTail.nextInQueue = td
	} else {
		b.queueHead = td
	}
	b.queueTail = td
	b.mu.Unlock()

	beforeSleep()

	// Block. The timed result is best-effort: a wake can still race in for
	// as long as we remain queued.
	var unparked bool
	if timed {
		unparked = td.parker.parkUntil(deadline)
	} else {
		td.parker.parkWait()
		unparked = true
	}
	if unparked {
		return ParkResultUnparked, td.unparkToken
	}

	// Deadline passed. Re-lock the bucket for our current key (the table
	// may have grown and a requeue may have moved us) and decide
	// precisely, under the lock this time.
	k, b := lockBucketChecked(&td.key)

	if !removeTimedOut(b, td, k, timedOut) {
		// An unpark won the race and already unlinked us; its wake is
		// committed. Consume it so the record can be recycled.
		b.mu.Unlock()
		td.parker.parkWait()
		return ParkResultUnparked, td.unparkToken
	}
	b.mu.Unlock()
	return ParkResultTimeout, DefaultUnparkToken
}

// removeTimedOut unlinks td from b's queue, reporting whether it was still
// there. When it was, timedOut is invoked under the bucket lock with whether
// td was the last record for its key.
func removeTimedOut(b *bucket, td *threadData, key uintptr, timedOut func(uintptr, bool)) bool {
	link := &b.queueHead
	var prev *threadData
	wasLast := true
	for cur := *link; cur != nil; cur = *link {
		if cur == td {
			next := cur.nextInQueue
			*link = next
			if b.queueTail == cur {
				b.queueTail = prev
			} else {
				// Scan the rest of the queue for other records with our
				// key.
				for scan := next; scan != nil; scan = scan.nextInQueue {
					if scan.key.Load() == key {
						wasLast = false
						break
					}
				}
			}
			cur.nextInQueue = nil
			timedOut(key, wasLast)
			return true
		}
		if cur.key.Load() == key {
			wasLast = false
		}
		prev = cur
		link = &cur.nextInQueue
	}
	return false
}

// UnparkOne wakes the goroutine at the head of the queue keyed by key.
//
// callback runs with the queue locked, before the target wakes, and returns
// the UnparkToken handed to it; when no waiter was found the returned token
// is ignored. callback must not block, panic, or call back into this
// package.
func UnparkOne(key uintptr, callback func(UnparkResult) UnparkToken) UnparkResult {
	b := lockBucket(key)

	link := &b.queueHead
	var prev *threadData
	var result UnparkResult
	for cur := *link; cur != nil; cur = *link {
		if cur.key.Load() != key {
			prev = cur
			link = &cur.nextInQueue
			continue
		}

		next := cur.nextInQueue
		*link = next
		if b.queueTail == cur {
			b.queueTail = prev
		} else {
			for scan := next; scan != nil; scan = scan.nextInQueue {
				if scan.key.Load() == key {
					result.HaveMoreParked = true
					break
				}
			}
		}

		result.UnparkedCount = 1
		result.BeFair = b.fair.shouldTimeout()
		token := callback(result)

		cur.unparkToken = token
		cur.nextInQueue = nil

		// The wake is committed under the bucket lock but delivered after
		// releasing it: once unlinked, the target cannot reclaim its
		// record until it consumes the wake, and no queue stays locked
		// around the wakeup itself.
		b.mu.Unlock()
		cur.parker.unpark()
		return result
	}

	// No waiter with a matching key.
	callback(result)
	b.mu.Unlock()
	return result
}

// UnparkAll wakes every goroutine on the queue keyed by key, handing each
// the given token, and returns how many were woken.
func UnparkAll(key uintptr, token UnparkToken) int {
	b := lockBucket(key)

	link := &b.queueHead
	var prev *threadData
	wake := make([]*threadData, 0, 8)
	cur := b.queueHead
	for cur != nil {
		if cur.key.Load() != key {
			prev = cur
			link = &cur.nextInQueue
			cur = cur.nextInQueue
			continue
		}

		next := cur.nextInQueue
		*link = next
		if b.queueTail == cur {
			b.queueTail = prev
		}
		cur.unparkToken = token
		cur.nextInQueue = nil
		wake = append(wake, cur)
		cur = next
	}

	b.mu.Unlock()
	for _, td := range wake {
		td.parker.unpark()
	}
	return len(wake)
}

// UnparkRequeue removes all waiters from the queue keyed by keyFrom and,
// depending on the RequeueOp chosen by validate, wakes the first and/or
// migrates the rest onto the queue keyed by keyTo.
//
// validate and callback run with both queues locked and must not block,
// panic, or call back into this package. callback receives the chosen op
// and the result, and returns the token for the woken goroutine, if any.
func UnparkRequeue(
	keyFrom, keyTo uintptr,
	validate func() RequeueOp,
	callback func(RequeueOp, UnparkResult) UnparkToken,
) UnparkResult {
	bFrom, bTo := lockBucketPair(keyFrom, keyTo)

	var result UnparkResult
	op := validate()
	if op == RequeueOpAbort {
		unlockBucketPair(bFrom, bTo)
		return result
	}

	link := &bFrom.queueHead
	var prev *threadData
	var requeueHead, requeueTail *threadData
	var wakeup *threadData
	cur := bFrom.queueHead
	for cur != nil {
		if cur.key.Load() != keyFrom {
			prev = cur
			link = &cur.nextInQueue
			cur = cur.nextInQueue
			continue
		}

		next := cur.nextInQueue
		*link = next
		if bFrom.queueTail == cur {
			bFrom.queueTail = prev
		}

		// The first waiter wakes when the op asks for it; everyone else is
		// relinked onto the target queue under their new key.
		if wakeup == nil && (op == RequeueOpUnparkOneRequeueRest || op == RequeueOpUnparkOne) {
			wakeup = cur
			result.UnparkedCount = 1
		} else {
			if requeueHead != nil {
				requeueTail.nextInQueue = cur
			} else {
				requeueHead = cur
			}
			requeueTail = cur
			cur.key.Store(keyTo)
			result.RequeuedCount++
		}

		if op == RequeueOpUnparkOne || op == RequeueOpRequeueOne {
			for scan := next; scan != nil; scan = scan.nextInQueue {
				if scan.key.Load() == keyFrom {
					result.HaveMoreParked = true
					break
				}
			}
			break
		}
		cur = next
	}

	if requeueHead != nil {
		requeueTail.nextInQueue = nil
		if bTo.queueHead != nil {
			bTo.queueTail.nextInQueue = requeueHead
		} else {
			bTo.queueHead = requeueHead
		}
		bTo.queueTail = requeueTail
	}

	if result.UnparkedCount != 0 {
		result.BeFair = bFrom.fair.shouldTimeout()
	}
	token := callback(op, result)

	if wakeup != nil {
		wakeup.unparkToken = token
		wakeup.nextInQueue = nil
		unlockBucketPair(bFrom, bTo)
		wakeup.parker.unpark()
	} else {
		unlockBucketPair(bFrom, bTo)
	}
	return result
}

// UnparkFilter wakes a subset of the goroutines on the queue keyed by key,
// consulting filter with each waiter's ParkToken. The rwlock uses this to
// wake all readers plus at most one writer or upgrader in a single pass.
//
// filter and callback run with the queue locked and must not block, panic,
// or call back into this package. callback's token is handed to every woken
// goroutine.
func UnparkFilter(
	key uintptr,
	filter func(ParkToken) FilterOp,
	callback func(UnparkResult) UnparkToken,
) UnparkResult {
	b := lockBucket(key)

	link := &b.queueHead
	var prev *threadData
	wake := make([]*threadData, 0, 8)
	var result UnparkResult
	cur := b.queueHead
scan:
	for cur != nil {
		if cur.key.Load() != key {
			prev = cur
			link = &cur.nextInQueue
			cur = cur.nextInQueue
			continue
		}

		next := cur.nextInQueue
		switch filter(cur.parkToken) {
		case FilterOpUnpark:
			*link = next
			if b.queueTail == cur {
				b.queueTail = prev
			}
			cur.nextInQueue = nil
			wake = append(wake, cur)
			cur = next
		case FilterOpSkip:
			result.HaveMoreParked = true
			prev = cur
			link = &cur.nextInQueue
			cur = next
		case FilterOpStop:
			result.HaveMoreParked = true
			break scan
		}
	}

	result.UnparkedCount = len(wake)
	if result.UnparkedCount != 0 {
		result.BeFair = b.fair.shouldTimeout()
	}
	token := callback(result)
	for _, td := range wake {
		td.unparkToken = token
	}

	b.mu.Unlock()
	for _, td := range wake {
		td.parker.unpark()
	}
	return result
}
