package parkx

import (
	"sync"
	"testing"
	"time"
	"unsafe"
)

func TestNextPowOfTwo(t *testing.T) {
	cases := [][2]int{{0, 1}, {1, 1}, {2, 2}, {3, 4}, {4, 4}, {5, 8}, {1000, 1024}}
	for _, c := range cases {
		if got := nextPowOfTwo(c[0]); got != c[1] {
			t.Errorf("nextPowOfTwo(%d) = %d, want %d", c[0], got, c[1])
		}
	}
}

func TestGrowTable_KeepsParkedRecords(t *testing.T) {
	var slot int
	key := uintptr(unsafe.Pointer(&slot))

	const n = 4
	var queued sync.WaitGroup
	queued.Add(n)
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			Park(key, func() bool { return true }, queued.Done, func(uintptr, bool) {}, DefaultParkToken, time.Time{})
		}()
	}
	queued.Wait()
	for parkedCount(key) != n {
		time.Sleep(time.Millisecond)
	}

	// Force a rehash well past the current size; the parked records must
	// come along into the new table.
	before := getTable()
	growTable(len(before.entries) * loadFactor * 4)
	after := getTable()
	if after == before {
		t.Fatal("table did not grow")
	}
	if after.prev != before {
		t.Fatal("grown table does not chain to its predecessor")
	}
	if c := parkedCount(key); c != n {
		t.Fatalf("parkedCount after rehash = %d, want %d", c, n)
	}

	if c := UnparkAll(key, DefaultUnparkToken); c != n {
		t.Fatalf("UnparkAll = %d, want %d", c, n)
	}
	wg.Wait()
}

func TestLockBucketPair_SameBucket(t *testing.T) {
	var slot int
	key := uintptr(unsafe.Pointer(&slot))

	b1, b2 := lockBucketPair(key, key)
	if b1 != b2 {
		t.Fatal("same key must map to the same bucket")
	}
	unlockBucketPair(b1, b2)

	// The bucket must be usable again afterwards.
	b := lockBucket(key)
	b.mu.Unlock()
}

func TestLockBucketPair_DistinctKeys(t *testing.T) {
	var a, b int
	k1 := uintptr(unsafe.Pointer(&a))
	k2 := uintptr(unsafe.Pointer(&b))

	b1, b2 := lockBucketPair(k1, k2)
	unlockBucketPair(b1, b2)

	// Reverse order must take the same locks without deadlocking.
	b1, b2 = lockBucketPair(k2, k1)
	unlockBucketPair(b1, b2)
}

func TestFairTimeout_EventuallyFires(t *testing.T) {
	f := fairTimeout{seed: 1}
	deadline := time.Now().Add(time.Second)
	for !f.shouldTimeout() {
		if time.Now().After(deadline) {
			t.Fatal("fair timeout never fired")
		}
		time.Sleep(100 * time.Microsecond)
	}
}

func TestHashKey_InRange(t *testing.T) {
	const bits = 5
	for i := range 1000 {
		h := hashKey(uintptr(i)*64, bits)
		if h >= 1<<bits {
			t.Fatalf("hashKey out of range: %d", h)
		}
	}
}
