package parkx

import (
	"sync"
	"testing"
)

func TestRWLockGroup_Basic(t *testing.T) {
	var g RWLockGroup[string]

	g.Lock("a")
	if g.TryLock("a") {
		t.Fatal("TryLock succeeded on a held key")
	}
	if !g.TryLock("b") {
		t.Fatal("TryLock failed on a free key")
	}
	g.Unlock("b")
	g.Unlock("a")

	if !g.TryLock("a") {
		t.Fatal("TryLock failed after unlock")
	}
	g.Unlock("a")
}

func TestRWLockGroup_SharedAndUpgradable(t *testing.T) {
	var g RWLockGroup[int]

	g.RLock(1)
	g.RLock(1)
	if !g.TryRLock(1) {
		t.Fatal("TryRLock failed alongside readers")
	}
	if g.TryLock(1) {
		t.Fatal("write lock succeeded with readers held")
	}
	g.RUnlock(1)
	g.RUnlock(1)
	g.RUnlock(1)

	g.ULock(1)
	g.Upgrade(1)
	g.Unlock(1)

	g.ULock(1)
	g.UUnlock(1)
}

func TestRWLockGroup_EntriesReclaimed(t *testing.T) {
	var g RWLockGroup[int]

	for i := range 100 {
		g.Lock(i)
		g.Unlock(i)
	}

	if n := g.locks.Size(); n != 0 {
		t.Fatalf("map holds %d entries after all keys released, want 0", n)
	}
}

func TestRWLockGroup_Concurrent(t *testing.T) {
	var g RWLockGroup[int]
	const keys = 8
	const loops = 500

	counters := make([]int, keys)
	var wg sync.WaitGroup
	wg.Add(keys * 2)
	for k := range keys {
		go func() {
			defer wg.Done()
			for range loops {
				g.Lock(k)
				counters[k]++
				g.Unlock(k)
			}
		}()
		go func() {
			defer wg.Done()
			for range loops {
				g.RLock(k)
				_ = counters[k]
				g.RUnlock(k)
			}
		}()
	}
	wg.Wait()

	for k, c := range counters {
		if c != loops {
			t.Errorf("counters[%d] = %d, want %d", k, c, loops)
		}
	}
	if n := g.locks.Size(); n != 0 {
		t.Fatalf("map holds %d entries after shutdown, want 0", n)
	}
}
