// Package detach implements the acquire/release reference-counting
// protocol that lets a socket be detached from its driver safely while
// other driver threads may be mid-callback on it, guaranteeing the
// completion callback fires exactly once.
package detach

import "sync"

// State enumerates the detach lifecycle.
type State int

const (
	StateAttached State = iota
	StateDetaching
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateAttached:
		return "attached"
	case StateDetaching:
		return "detaching"
	case StateDetached:
		return "detached"
	default:
		return "unknown"
	}
}

// Coordinator guards concurrent access to a socket across driver
// threads during detachment. Every driver-thread operation on the
// socket must be bracketed by Acquire/Release.
type Coordinator struct {
	mu    sync.Mutex
	state State
	refs  int
}

// NewCoordinator creates a Coordinator in the attached state.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// State returns the current detach state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Acquire increments the reference count and reports whether the
// socket was attached at the moment of acquisition. If it returns
// false, the caller must not operate on the socket, but must still
// call Release exactly once to balance this Acquire.
func (c *Coordinator) Acquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs++
	return c.state == StateAttached
}

// Release decrements the reference count. It returns true iff this
// call observed state == detaching and the ref count reached zero —
// in which case the caller must schedule the detach completion
// callback on the socket's strand and transition to Detached via
// MarkDetached once that callback has been scheduled.
func (c *Coordinator) Release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.refs--
	return c.state == StateDetaching && c.refs == 0
}

// RequestDetach transitions attached → detaching. It returns false if
// a detach was already requested (idempotent: only the first caller
// drives the transition).
func (c *Coordinator) RequestDetach() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAttached {
		return false
	}
	c.state = StateDetaching
	return true
}

// MarkDetached transitions detaching → detached. Called once by
// whichever Release call observed refs reaching zero, after it has
// scheduled the completion callback.
func (c *Coordinator) MarkDetached() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDetaching {
		c.state = StateDetached
	}
}

// Refs returns the current outstanding reference count, for tests and
// diagnostics.
func (c *Coordinator) Refs() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refs
}
