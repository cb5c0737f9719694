package parkx

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestMutex_Basic(t *testing.T) {
	var m Mutex
	m.Lock()
	if !m.IsLocked() {
		t.Fatal("IsLocked = false while held")
	}
	if m.TryLock() {
		t.Fatal("TryLock succeeded on a held mutex")
	}
	m.Unlock()
	if m.IsLocked() {
		t.Fatal("IsLocked = true after unlock")
	}
	if !m.TryLock() {
		t.Fatal("TryLock failed on a free mutex")
	}
	m.Unlock()
}

func TestMutex_Contended(t *testing.T) {
	var m Mutex
	const loops = 1000
	n := runtime.GOMAXPROCS(0)

	var counter int
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			for range loops {
				m.Lock()
				counter++
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != n*loops {
		t.Fatalf("counter = %d, want %d", counter, n*loops)
	}
}

func TestMutex_TryLockFor(t *testing.T) {
	var m Mutex
	m.Lock()

	start := time.Now()
	if m.TryLockFor(30 * time.Millisecond) {
		t.Fatal("TryLockFor succeeded on a held mutex")
	}
	if d := time.Since(start); d < 30*time.Millisecond {
		t.Fatalf("returned after %v, before the timeout", d)
	}
	if !m.IsLocked() {
		t.Fatal("timeout corrupted lock state")
	}

	m.Unlock()
	if !m.TryLockFor(time.Second) {
		t.Fatal("TryLockFor failed on a free mutex")
	}
	m.Unlock()
}

func TestMutex_TimeoutThenAcquire(t *testing.T) {
	// A waiter timing out must not strand the parked bit and block the
	// next acquisition.
	var m Mutex
	m.Lock()

	done := make(chan bool, 2)
	for range 2 {
		go func() { done <- m.TryLockFor(20 * time.Millisecond) }()
	}
	for range 2 {
		if <-done {
			t.Fatal("timed lock succeeded while held")
		}
	}

	m.Unlock()
	m.Lock()
	m.Unlock()
}

func TestMutex_UnlockFairHandsOff(t *testing.T) {
	var m Mutex
	m.Lock()

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()

	// Let the waiter park.
	for m.state.Load()&mutexParkedBit == 0 {
		time.Sleep(time.Millisecond)
	}
	m.UnlockFair()

	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("fair unlock did not wake the waiter")
	}
}

func TestMutex_Bump(t *testing.T) {
	var m Mutex
	m.Lock()
	m.Bump() // no waiters: no-op
	if !m.IsLocked() {
		t.Fatal("Bump released an uncontended lock")
	}

	acquired := make(chan struct{})
	go func() {
		m.Lock()
		close(acquired)
		m.Unlock()
	}()
	for m.state.Load()&mutexParkedBit == 0 {
		time.Sleep(time.Millisecond)
	}

	m.Bump()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("Bump did not yield to the waiter")
	}
	if !m.IsLocked() {
		t.Fatal("Bump did not reacquire")
	}
	m.Unlock()
}

func TestFairMutex_Contended(t *testing.T) {
	var m FairMutex
	const loops = 500
	n := runtime.GOMAXPROCS(0)

	var counter int64
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			for range loops {
				m.Lock()
				atomic.AddInt64(&counter, 1)
				m.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != int64(n*loops) {
		t.Fatalf("counter = %d, want %d", counter, n*loops)
	}

	if !m.TryLock() {
		t.Fatal("TryLock failed on a free mutex")
	}
	if m.TryLock() {
		t.Fatal("TryLock succeeded on a held mutex")
	}
	m.Unlock()
}
