package ntf

import (
	"fmt"

	"github.com/vireo-io/ntf/internal/recvqueue"
)

// Trigger selects level- or edge-triggered reactor delivery.
type Trigger int

const (
	TriggerLevel Trigger = iota
	TriggerEdge
)

func (t Trigger) String() string {
	if t == TriggerEdge {
		return "edge"
	}
	return "level"
}

// Config configures a Scheduler's thread pool and driver selection.
type Config struct {
	// MinThreads is the minimum number of I/O threads kept alive.
	MinThreads int
	// MaxThreads is the upper bound on I/O threads.
	MaxThreads int
	// MaxEventsPerWait sets the initial capacity of each worker's event
	// buffer. It does not limit a Wait call; the epoll and kqueue drivers
	// use a fixed 256-entry event array.
	MaxEventsPerWait int
	// MaxTimersPerWait bounds how many timers fire per drain cycle.
	MaxTimersPerWait int
	// MaxCyclesPerWait bounds wait->dispatch->drain_timers repetitions
	// per poll iteration, preventing livelock from self-rescheduling
	// timers or functors.
	MaxCyclesPerWait int
	// DynamicLoadBalancing is carried in the Config but the Scheduler
	// does not read it: every socket stays on the worker it was
	// assigned, and no thread polls another worker's driver.
	DynamicLoadBalancing bool
	// Driver selects the reactor backend by name: "epoll", "kqueue",
	// "poll", "select", or "" for the platform default. Names from
	// spec.md's driver table with no build target in this environment
	// (devpoll, eventport, pollset, iocp) resolve to "poll".
	Driver string
	// CPUAffinity, if non-empty, pins driver thread N to
	// CPUAffinity[N % len(CPUAffinity)], round-robin by thread index —
	// the same assignment go-ublk's queue.Runner.ioLoop uses per queue.
	CPUAffinity []int

	Logger   Logger
	Observer Observer
}

// DefaultConfig returns a Config populated with the package defaults.
func DefaultConfig() Config {
	return Config{
		MinThreads:       DefaultMinThreads,
		MaxThreads:       DefaultMaxThreads,
		MaxEventsPerWait: DefaultMaxEventsPerWait,
		MaxTimersPerWait: DefaultMaxTimersPerWait,
		MaxCyclesPerWait: DefaultMaxCyclesPerWait,
	}
}

// Validate sanitizes Config, returning a *Error with CodeInvalid for any
// inadmissible combination of fields.
func (c *Config) Validate() error {
	if c.MinThreads <= 0 {
		c.MinThreads = DefaultMinThreads
	}
	if c.MaxThreads <= 0 {
		c.MaxThreads = DefaultMaxThreads
	}
	if c.MaxThreads < c.MinThreads {
		return &Error{Op: "config", Code: CodeInvalid, Msg: fmt.Sprintf("max_threads %d < min_threads %d", c.MaxThreads, c.MinThreads)}
	}
	if c.MaxEventsPerWait <= 0 {
		c.MaxEventsPerWait = DefaultMaxEventsPerWait
	}
	if c.MaxTimersPerWait <= 0 {
		c.MaxTimersPerWait = DefaultMaxTimersPerWait
	}
	if c.MaxCyclesPerWait <= 0 {
		c.MaxCyclesPerWait = DefaultMaxCyclesPerWait
	}
	switch c.Driver {
	case "", "epoll", "kqueue", "poll", "select":
	case "devpoll", "eventport", "pollset", "iocp":
		// Recognized names from spec.md's platform table with no build
		// target in this environment; fall back to the portable poll
		// driver rather than fabricating a stub syscall layer.
		c.Driver = "poll"
	default:
		return &Error{Op: "config", Code: CodeInvalid, Msg: "unknown driver name: " + c.Driver}
	}
	return nil
}

// SocketOptions configures the per-socket queues and flow control a
// Socket is created with.
type SocketOptions struct {
	WriteQueueLowWatermark  int
	WriteQueueHighWatermark int
	ReadQueueLowWatermark   int
	ReadQueueHighWatermark  int
	MinIncomingTransfer     int
	MaxIncomingTransfer     int
	// KeepHalfOpen disables auto-promoting a remote-initiated half
	// close into a full local shutdown.
	KeepHalfOpen bool
	// ZeroCopyThreshold is the send size, in bytes, above which the
	// proactor driver attempts a zero-copy send.
	ZeroCopyThreshold int
	// Datagram selects datagram receive-queue semantics (discrete
	// messages) instead of the stream default (one contiguous buffer).
	Datagram bool
}

// DefaultSocketOptions returns SocketOptions populated with the package
// defaults.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{
		WriteQueueLowWatermark:  DefaultWriteQueueLowWatermark,
		WriteQueueHighWatermark: DefaultWriteQueueHighWatermark,
		ReadQueueLowWatermark:   DefaultReadQueueLowWatermark,
		ReadQueueHighWatermark:  DefaultReadQueueHighWatermark,
		MinIncomingTransfer:     DefaultMinIncomingTransfer,
		MaxIncomingTransfer:     DefaultMaxIncomingTransfer,
		ZeroCopyThreshold:       DefaultZeroCopyThreshold,
	}
}

// Validate sanitizes SocketOptions, returning a *Error with CodeInvalid
// for an inadmissible watermark pair.
func (o *SocketOptions) Validate() error {
	if o.WriteQueueLowWatermark < 0 {
		o.WriteQueueLowWatermark = 0
	}
	if o.WriteQueueHighWatermark < o.WriteQueueLowWatermark {
		return &Error{Op: "config", Code: CodeInvalid, Msg: "write_queue_high_watermark < write_queue_low_watermark"}
	}
	if o.ReadQueueLowWatermark < 0 {
		o.ReadQueueLowWatermark = 0
	}
	if o.ReadQueueHighWatermark < o.ReadQueueLowWatermark {
		return &Error{Op: "config", Code: CodeInvalid, Msg: "read_queue_high_watermark < read_queue_low_watermark"}
	}
	if o.MinIncomingTransfer <= 0 {
		o.MinIncomingTransfer = 1
	}
	if o.MaxIncomingTransfer < o.MinIncomingTransfer {
		return &Error{Op: "config", Code: CodeInvalid, Msg: "max_incoming_transfer < min_incoming_transfer"}
	}
	return nil
}

func (o SocketOptions) recvMode() recvqueue.Mode {
	if o.Datagram {
		return recvqueue.ModeDatagram
	}
	return recvqueue.ModeStream
}

// ReactorOptions configures how a socket is registered with a reactor
// driver.
type ReactorOptions struct {
	// AutoAttach registers the socket with the scheduler as soon as it
	// is created.
	AutoAttach bool
	// AutoDetach requests detachment automatically when the socket's
	// shutdown state reaches both_shut.
	AutoDetach bool
	Trigger    Trigger
	// OneShot re-arms interest explicitly after each firing (required
	// for edge-triggered registrations that want one-shot semantics).
	OneShot bool
}

// DefaultReactorOptions returns ReactorOptions populated with the
// package defaults: auto-attach and auto-detach enabled, level trigger.
func DefaultReactorOptions() ReactorOptions {
	return ReactorOptions{AutoAttach: true, AutoDetach: true, Trigger: TriggerLevel}
}
