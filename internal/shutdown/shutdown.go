// Package shutdown implements the per-socket half-close/full-close
// state machine: a monotonic progression from open through send_shut
// and/or recv_shut to both_shut, with the direction that first closed
// each side (source or destination) recorded for event reporting.
package shutdown

import "sync"

// State enumerates the shutdown lifecycle. Transitions only ever move
// forward in this list; a socket never reopens a direction once shut.
type State int

const (
	StateOpen State = iota
	StateSendShut
	StateRecvShut
	StateBothShut
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSendShut:
		return "send_shut"
	case StateRecvShut:
		return "recv_shut"
	case StateBothShut:
		return "both_shut"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Origin records which side first initiated a given direction's close.
type Origin int

const (
	OriginNone Origin = iota
	OriginSource
	OriginDestination
)

func (o Origin) String() string {
	switch o {
	case OriginSource:
		return "source"
	case OriginDestination:
		return "destination"
	default:
		return "none"
	}
}

// Request identifies which direction(s) a caller is asking to close.
type Request int

const (
	RequestShutSend Request = iota
	RequestShutRecv
	RequestShutBoth
)

// Result reports the side effects a Coordinator.Request call must
// trigger in the caller: which queues to fail/freeze, and whether a
// Shutdown completion event should now be emitted.
type Result struct {
	SendNewlyShut bool
	RecvNewlyShut bool
	BothShut      bool
	Completed     bool
	SendOrigin    Origin
	RecvOrigin    Origin
}

// Coordinator drives the shutdown state machine for one socket.
// KeepHalfOpen governs whether a remote-initiated half-close (recv_shut
// with OriginDestination) auto-promotes to a full local shut_send; the
// default (false) auto-promotes, matching typical half-close-is-rare
// socket usage.
type Coordinator struct {
	mu           sync.Mutex
	state        State
	sendOrigin   Origin
	recvOrigin   Origin
	keepHalfOpen bool
	completed    bool
}

// NewCoordinator creates a Coordinator in the open state.
func NewCoordinator(keepHalfOpen bool) *Coordinator {
	return &Coordinator{keepHalfOpen: keepHalfOpen}
}

// State returns the current shutdown state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Request drives the state machine for req, initiated by origin. It is
// idempotent: requesting a direction that is already shut from any
// origin returns a Result with no newly-shut flags set.
func (c *Coordinator) Request(req Request, origin Origin) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	var wantSend, wantRecv bool
	switch req {
	case RequestShutSend:
		wantSend = true
	case RequestShutRecv:
		wantRecv = true
	case RequestShutBoth:
		wantSend, wantRecv = true, true
	}

	var res Result
	if wantSend {
		res.SendNewlyShut = c.shutSendLocked(origin)
	}
	if wantRecv {
		res.RecvNewlyShut = c.shutRecvLocked(origin)
		// A remote half-close auto-promotes to a full local shutdown
		// unless the caller opted into keeping the connection half-open.
		if res.RecvNewlyShut && origin == OriginDestination && !c.keepHalfOpen {
			if c.shutSendLocked(origin) {
				res.SendNewlyShut = true
			}
		}
	}

	res.SendOrigin = c.sendOrigin
	res.RecvOrigin = c.recvOrigin
	res.BothShut = c.state == StateBothShut || c.state == StateClosed
	res.Completed = res.BothShut && (res.SendNewlyShut || res.RecvNewlyShut) && !c.alreadyCompleted()
	if res.BothShut && (res.SendNewlyShut || res.RecvNewlyShut) {
		c.completed = true
	}
	return res
}

// alreadyCompleted reports whether the Shutdown{completed} event has
// already been emitted, so a redundant Request call on an
// already-both_shut socket does not re-report completion.
func (c *Coordinator) alreadyCompleted() bool { return c.completed }

func (c *Coordinator) shutSendLocked(origin Origin) bool {
	switch c.state {
	case StateOpen:
		c.state = StateSendShut
		c.sendOrigin = origin
		return true
	case StateRecvShut:
		c.state = StateBothShut
		c.sendOrigin = origin
		return true
	default:
		return false
	}
}

func (c *Coordinator) shutRecvLocked(origin Origin) bool {
	switch c.state {
	case StateOpen:
		c.state = StateRecvShut
		c.recvOrigin = origin
		return true
	case StateSendShut:
		c.state = StateBothShut
		c.recvOrigin = origin
		return true
	default:
		return false
	}
}

// Close transitions both_shut to closed once the socket handle itself
// has been torn down. It is a no-op if not currently both_shut.
func (c *Coordinator) Close() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateBothShut {
		return false
	}
	c.state = StateClosed
	return true
}
