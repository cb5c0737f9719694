package parkx

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
)

// TestRWLock_WriterNotStarved runs a heavy reader churn against a single
// writer. Fair queue phases bound how long the writer can wait; a second
// per acquisition is orders of magnitude beyond that bound.
func TestRWLock_WriterNotStarved(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	var rw RWLock
	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	readers := runtime.GOMAXPROCS(0)
	for range readers {
		g.Go(func() error {
			for ctx.Err() == nil {
				rw.RLock()
				rw.RUnlock()
			}
			return nil
		})
	}

	g.Go(func() error {
		defer cancel()
		for range 200 {
			start := time.Now()
			rw.Lock()
			wait := time.Since(start)
			rw.Unlock()
			if wait > time.Second {
				return errors.New("writer waited " + wait.String())
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}

func TestMutex_Stress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	var m Mutex
	var counter int64
	var held atomic.Int32

	g := new(errgroup.Group)
	n := runtime.GOMAXPROCS(0) * 2
	const loops = 2000
	for range n {
		g.Go(func() error {
			for range loops {
				m.Lock()
				if held.Add(1) != 1 {
					m.Unlock()
					return errors.New("mutual exclusion violated")
				}
				counter++
				held.Add(-1)
				m.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if counter != int64(n*loops) {
		t.Fatalf("counter = %d, want %d", counter, n*loops)
	}
}

// TestRWLock_MixedStress exercises all three lock modes, timed variants
// included, against each other.
func TestRWLock_MixedStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}

	var rw RWLock
	var exclusive atomic.Int32

	g := new(errgroup.Group)
	workers := runtime.GOMAXPROCS(0)
	const loops = 500

	for i := range workers {
		mode := i % 4
		g.Go(func() error {
			for range loops {
				switch mode {
				case 0:
					rw.Lock()
					if exclusive.Add(1) != 1 {
						rw.Unlock()
						return errors.New("writer overlap")
					}
					exclusive.Add(-1)
					rw.Unlock()
				case 1:
					rw.RLock()
					if exclusive.Load() != 0 {
						rw.RUnlock()
						return errors.New("reader saw a writer")
					}
					rw.RUnlock()
				case 2:
					rw.ULock()
					rw.Upgrade()
					if exclusive.Add(1) != 1 {
						rw.Unlock()
						return errors.New("upgrader overlap")
					}
					exclusive.Add(-1)
					rw.DowngradeToUpgradable()
					rw.UUnlock()
				case 3:
					if rw.TryRLockFor(10 * time.Millisecond) {
						rw.RUnlock()
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	if rw.IsLocked() {
		t.Fatal("lock still held after shutdown")
	}
}
