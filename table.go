package parkx

import (
	"math/bits"
	"sync/atomic"
	"unsafe"

	"github.com/llxisdsh/parkx/internal/opt"
)

// Even with 3x more buckets than peak parkers, the memory overhead is only a
// few hundred bytes per goroutine that has ever parked.
const loadFactor = 3

// bucketData is the payload of one hash table slot: a ticket lock guarding
// an intrusive queue of borrowed parking records, plus the fair-unlock timer.
// The bucket never owns the records; it only threads them through their
// nextInQueue links for as long as they stay parked.
type bucketData struct {
	mu TicketLock

	// Guarded by mu.
	queueHead *threadData
	queueTail *threadData
	fair      fairTimeout
}

type bucket struct {
	bucketData
	_ [(opt.CacheLineSize_ - unsafe.Sizeof(bucketData{})%opt.CacheLineSize_) % opt.CacheLineSize_]byte
}

// fairTimeout decides, on average every 0.5ms of queue residency per key,
// that an unlock should hand the lock directly to a waiter instead of
// racing it. Guarded by the bucket lock.
type fairTimeout struct {
	// deadline is the next nanotime at which the fair unlock fires.
	deadline int64

	// seed for the PRNG. Never zero, or xorshift gets stuck.
	seed uint32
}

// shouldTimeout reports whether the next unlock should be fair, rearming the
// timer between 0 and 1ms ahead.
func (f *fairTimeout) shouldTimeout() bool {
	now := nanotime()
	if now <= f.deadline {
		return false
	}
	// Pseudo-random number generator from the "Xorshift RNGs" paper by
	// George Marsaglia.
	f.seed ^= f.seed << 13
	f.seed ^= f.seed >> 17
	f.seed ^= f.seed << 5
	f.deadline = now + int64(f.seed%1_000_000)
	return true
}

// hashTable maps keys (addresses) to buckets. The process-wide current table
// is reached through currentTable; superseded tables stay reachable through
// prev and are deliberately never freed, since a parker may briefly hold a
// bucket pointer into an old table. The leak is small and one-time-per-grow.
type hashTable struct {
	entries  []bucket
	hashBits uint32

	// prev also keeps leak detectors satisfied; it is never read after the
	// rehash completes.
	prev *hashTable
}

var currentTable atomic.Pointer[hashTable]

func newHashTable(forParkers int, prev *hashTable) *hashTable {
	size := nextPowOfTwo(forParkers * loadFactor)
	t := &hashTable{
		entries:  make([]bucket, size),
		hashBits: uint32(bits.Len(uint(size)) - 1),
		prev:     prev,
	}
	now := nanotime()
	for i := range t.entries {
		t.entries[i].fair = fairTimeout{deadline: now, seed: uint32(i) + 1}
	}
	return t
}

func nextPowOfTwo(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

// getTable returns the current table, creating the first one if needed.
// The returned pointer is valid forever but may become stale at any point:
// the table still exists, it is just no longer the one in active use.
func getTable() *hashTable {
	if t := currentTable.Load(); t != nil {
		return t
	}
	return createTable()
}

func createTable() *hashTable {
	t := newHashTable(loadFactor, nil)
	if currentTable.CompareAndSwap(nil, t) {
		return t
	}
	// Another goroutine won the race; drop the speculative table.
	return currentTable.Load()
}

// growTable makes the table big enough for the given number of parkers. Not
// performance critical: it runs once per newly allocated parking record.
func growTable(forParkers int) {
	var oldTable *hashTable
	for {
		t := getTable()
		if len(t.entries) >= loadFactor*forParkers {
			return
		}

		// Lock every bucket to freeze all concurrent park/unpark traffic.
		for i := range t.entries {
			t.entries[i].mu.Lock()
		}

		// Another goroutine may have grown the table between reading the
		// pointer and locking the buckets.
		if currentTable.Load() == t {
			oldTable = t
			break
		}
		for i := range t.entries {
			t.entries[i].mu.Unlock()
		}
	}

	newTable := newHashTable(forParkers, oldTable)

	// Move the queued records over. This only changes which bucket owns
	// them; the records stay fully linked and valid throughout, so an
	// in-flight parker is never invalidated by a grow.
	for i := range oldTable.entries {
		rehashBucketInto(&oldTable.entries[i], newTable)
	}

	// No races are possible here: any other goroutine trying to grow is
	// blocked on the old table's bucket locks.
	currentTable.Store(newTable)

	for i := range oldTable.entries {
		oldTable.entries[i].mu.Unlock()
	}
}

func rehashBucketInto(b *bucket, t *hashTable) {
	cur := b.queueHead
	for cur != nil {
		next := cur.nextInQueue
		nb := &t.entries[hashKey(cur.key.Load(), t.hashBits)]
		if nb.queueTail == nil {
			nb.queueHead = cur
		} else {
			nb.queueTail.nextInQueue = cur
		}
		nb.queueTail = cur
		cur.nextInQueue = nil
		cur = next
	}
}

// Fibonacci hashing with the 64-bit golden ratio; keys are addresses, whose
// low bits carry little entropy on their own.
func hashKey(key uintptr, hashBits uint32) uintptr {
	return uintptr(uint64(key) * 0x9E3779B97F4A7C15 >> (64 - hashBits))
}

// lockBucket locks and returns the bucket for the given key in the current
// table. The caller must unlock it.
func lockBucket(key uintptr) *bucket {
	for {
		t := getTable()
		b := &t.entries[hashKey(key, t.hashBits)]
		b.mu.Lock()

		// If no grow raced in, the lock we now hold blocks any rehash.
		if currentTable.Load() == t {
			return b
		}
		b.mu.Unlock()
	}
}

// lockBucketChecked is like lockBucket for a key that a concurrent
// UnparkRequeue may rewrite: it loops until both the table and the key are
// stable under the lock, returning the key it settled on. The key cannot
// change anymore once the proper bucket for it is locked.
func lockBucketChecked(key *atomic.Uintptr) (uintptr, *bucket) {
	for {
		t := getTable()
		k := key.Load()
		b := &t.entries[hashKey(k, t.hashBits)]
		b.mu.Lock()

		if currentTable.Load() == t && key.Load() == k {
			return k, b
		}
		b.mu.Unlock()
	}
}

// lockBucketPair locks the buckets for two keys, always taking the one with
// the lower index first so that concurrent pair locks cannot deadlock.
// Both results are the same bucket when the keys collide; unlockBucketPair
// unlocks exactly once in that case.
func lockBucketPair(key1, key2 uintptr) (*bucket, *bucket) {
	for {
		t := getTable()
		h1 := hashKey(key1, t.hashBits)
		h2 := hashKey(key2, t.hashBits)

		lo, hi := h1, h2
		if lo > hi {
			lo, hi = hi, lo
		}

		bLo := &t.entries[lo]
		bLo.mu.Lock()
		if currentTable.Load() != t {
			bLo.mu.Unlock()
			continue
		}

		if h1 == h2 {
			return bLo, bLo
		}
		bHi := &t.entries[hi]
		bHi.mu.Lock()
		if h1 == lo {
			return bLo, bHi
		}
		return bHi, bLo
	}
}

func unlockBucketPair(b1, b2 *bucket) {
	b1.mu.Unlock()
	if b1 != b2 {
		b2.mu.Unlock()
	}
}
