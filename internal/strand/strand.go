// Package strand implements the per-socket callback serializer: a
// single-consumer FIFO of functors that guarantees a socket's
// read-queue, write-queue, shutdown, and error events are delivered in
// strict order without a lock held across each callback.
package strand

import "sync"

// Strand serializes execution of functors submitted from any
// goroutine (typically driver threads) onto a single logical stream,
// draining them on whichever goroutine happens to find the strand idle
// and claims the draining duty.
type Strand struct {
	mu      sync.Mutex
	queue   []func()
	running bool

	// maxPerDrain bounds how many functors one drain pass executes
	// before yielding, so a socket that keeps scheduling work on itself
	// cannot starve other sockets sharing the same driver thread.
	maxPerDrain int
}

// New creates an idle Strand. maxPerDrain <= 0 means unbounded.
func New(maxPerDrain int) *Strand {
	return &Strand{maxPerDrain: maxPerDrain}
}

// Execute submits fn to run on the strand. If no goroutine is
// currently draining the strand, the calling goroutine becomes the
// drainer and runs fn (and anything enqueued while it runs) inline.
// Otherwise fn is appended and the current drainer will reach it.
func (s *Strand) Execute(fn func()) {
	s.mu.Lock()
	if s.running {
		s.queue = append(s.queue, fn)
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.drain(fn)
}

// drain runs fn, then repeatedly pops and runs whatever is queued,
// until the queue is empty or maxPerDrain is reached — at which point
// it hands draining duty to a fresh goroutine so this call stack
// returns instead of running unbounded on a shared driver thread.
func (s *Strand) drain(fn func()) {
	ran := 0
	for {
		fn()
		ran++

		s.mu.Lock()
		if len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		if s.maxPerDrain > 0 && ran >= s.maxPerDrain {
			s.mu.Unlock()
			go s.resumeDrain()
			return
		}
		fn = s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
	}
}

// resumeDrain is the continuation a yielded drain hands off to: it
// re-enters the normal drain loop under the lock, so it sees whatever
// was enqueued in the meantime rather than a stale snapshot.
func (s *Strand) resumeDrain() {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.running = false
		s.mu.Unlock()
		return
	}
	fn := s.queue[0]
	s.queue = s.queue[1:]
	s.mu.Unlock()

	s.drain(fn)
}

// Pending returns the number of functors currently queued (not
// counting one that may be executing). Intended for tests and
// diagnostics, not for control flow.
func (s *Strand) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}
