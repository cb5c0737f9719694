package parkx

import "runtime"

// spinWait performs bounded exponential backoff in spin loops.
//
// Unlike delay, which is tuned for waiting indefinitely, spinWait reports
// when spinning stops paying off so the caller can park instead.
type spinWait struct {
	counter uint32
}

// spin wastes a little CPU, reporting false once the park threshold is
// reached. The first few rounds are CPU-bound; later rounds yield to the
// scheduler.
func (s *spinWait) spin() bool {
	if s.counter >= 10 {
		return false
	}
	s.counter++
	if s.counter <= 3 {
		cpuRelax(1 << s.counter)
	} else {
		runtime.Gosched()
	}
	return true
}

// spinNoYield spins without yielding to the scheduler, with the backoff
// capped. Used in CAS loops with high contention on a shared counter, where
// throughput matters more than latency.
func (s *spinWait) spinNoYield() {
	s.counter++
	if s.counter > 10 {
		s.counter = 10
	}
	cpuRelax(1 << s.counter)
}

func (s *spinWait) reset() {
	s.counter = 0
}

func cpuRelax(iterations uint32) {
	for range iterations {
		runtime_doSpin()
	}
}
