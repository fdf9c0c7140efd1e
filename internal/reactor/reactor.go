// Package reactor implements the readiness-model I/O multiplexing
// driver: attach/detach a socket handle, arm interest in
// readable/writable/exceptional events, and wait for the OS to report
// them, announcing each to the bound session.
package reactor

import "time"

// Trigger selects level- or edge-triggered delivery for a registration.
type Trigger int

const (
	TriggerLevel Trigger = iota
	TriggerEdge
)

// Interest is a bitmask of the events a registration is armed for.
type Interest uint8

const (
	InterestReadable Interest = 1 << iota
	InterestWritable
	InterestExceptional
)

func (i Interest) Has(bit Interest) bool { return i&bit != 0 }

// Event reports one readiness notification delivered by Wait.
type Event struct {
	FD          int
	Readable    bool
	Writable    bool
	Exceptional bool
	Hangup      bool
	Error       bool
}

// Driver is the readiness-model multiplexing primitive: epoll on
// Linux, kqueue on BSD/Darwin, poll elsewhere. Exactly one goroutine
// calls Wait on a given Driver at a time, matching the per-driver-
// thread ownership model the timer wheel also assumes.
type Driver interface {
	// Attach registers fd for the given initial interest and trigger
	// mode. oneShot re-arms must be requested explicitly via Rearm
	// after each fire when trigger is edge and oneShot is true.
	Attach(fd int, interest Interest, trigger Trigger, oneShot bool) error
	// Modify changes the armed interest for an already-attached fd.
	Modify(fd int, interest Interest) error
	// Detach removes fd from the driver's registration set.
	Detach(fd int) error
	// Rearm re-arms a one-shot registration after it has fired.
	Rearm(fd int, interest Interest) error
	// Wait blocks until at least one event is ready or timeout elapses
	// (timeout < 0 means block indefinitely), appending ready events to
	// dst and returning the extended slice.
	Wait(dst []Event, timeout time.Duration) ([]Event, error)
	// Close releases the underlying OS resource (epoll/kqueue fd).
	Close() error
}
