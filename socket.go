package ntf

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/vireo-io/ntf/internal/buffer"
	"github.com/vireo-io/ntf/internal/endpoint"
	"github.com/vireo-io/ntf/internal/recvqueue"
	"github.com/vireo-io/ntf/internal/sendqueue"
	"github.com/vireo-io/ntf/internal/session"
	"github.com/vireo-io/ntf/internal/shutdown"
	"github.com/vireo-io/ntf/internal/socket"
)

// Endpoint is the tagged-union address type from spec.md §3: IPv4,
// IPv6 (with optional zone), or a local-domain path.
type Endpoint = endpoint.Endpoint

// ParseEndpoint parses textual endpoint forms: dotted-quad with port,
// RFC 5952 collapsed IPv6 in brackets with port, or a filesystem path
// for a local-domain endpoint.
func ParseEndpoint(text string) (Endpoint, error) { return endpoint.Parse(text) }

// Transport identifies the socket family/type combination a Socket is
// opened for.
type Transport = socket.Transport

const (
	TransportTCPv4         = socket.TransportTCPv4
	TransportTCPv6         = socket.TransportTCPv6
	TransportUDPv4         = socket.TransportUDPv4
	TransportUDPv6         = socket.TransportUDPv6
	TransportLocalStream   = socket.TransportLocalStream
	TransportLocalDatagram = socket.TransportLocalDatagram
)

// Buffer is the DataBuffer sum type from spec.md §3: an owned or
// borrowed byte sequence handed to Send.
type Buffer = buffer.Buffer

// NewBlob wraps an owned byte slice as a Buffer.
func NewBlob(data []byte) Buffer { return buffer.NewBlob(data) }

// NewSharedBlob wraps a byte slice shared with other readers as a
// Buffer; Consume never mutates the backing array.
func NewSharedBlob(data []byte) Buffer { return buffer.NewSharedBlob(data) }

// SendOptions supplements a queued send with priority, a zero-copy
// hint, a best-effort deadline, and an opaque correlation token.
type SendOptions = sendqueue.Options

// SendCompletion is delivered to a Send callback once an entry is
// fully acknowledged, canceled, or failed.
type SendCompletion = sendqueue.CompletionContext

// SendCallback is invoked exactly once per entry, on the socket's
// strand.
type SendCallback = sendqueue.Callback

// ShutdownRequest selects which half (or both) of a socket to close.
type ShutdownRequest = shutdown.Request

const (
	ShutdownSend = shutdown.RequestShutSend
	ShutdownRecv = shutdown.RequestShutRecv
	ShutdownBoth = shutdown.RequestShutBoth
)

var socketIDs atomic.Uint64

// Socket is the public per-connection handle: a Transport-bound
// descriptor driven by a scheduler-owned driver thread, with a send
// queue, receive queue, and shutdown/detach state machine bound to it.
// Construct one with Connect, Listen+Accept, or Scheduler.Attach.
type Socket struct {
	id     uint64
	sched  *Scheduler
	worker *worker
	handle *socket.Handle
	sess   *session.Session
	opts   SocketOptions
	ropts  ReactorOptions

	mu             sync.Mutex
	onEvent        func(Event)
	connectPending atomic.Bool
}

func newSocket(sched *Scheduler, h *socket.Handle, local, remote Endpoint, opts SocketOptions, ropts ReactorOptions, onEvent func(Event)) *Socket {
	s := &Socket{
		id:     socketIDs.Add(1),
		sched:  sched,
		handle: h,
		opts:   opts,
		ropts:  ropts,
	}
	s.onEvent = onEvent

	s.sess = session.New(h, local, remote, session.Options{
		SendLowWatermark:  opts.WriteQueueLowWatermark,
		SendHighWatermark: opts.WriteQueueHighWatermark,
		RecvMode:          opts.recvMode(),
		RecvLow:           opts.ReadQueueLowWatermark,
		RecvHigh:          opts.ReadQueueHighWatermark,
		RecvMin:           opts.MinIncomingTransfer,
		RecvMax:           opts.MaxIncomingTransfer,
		KeepHalfOpen:      opts.KeepHalfOpen,
		Logger:            sched.logger,
		Observer:          sched.observer,
	}, session.Callbacks{
		OnReceive:       s.handleReceive,
		OnSendLowWater:  func() { s.raise(Event{Kind: EventWriteQueueLowWatermark}) },
		OnSendHighWater: func() { s.raise(Event{Kind: EventWriteQueueHighWatermark}) },
		OnShutdown:      s.handleShutdown,
		OnError:         func(err error) { s.raise(Event{Kind: EventError, Err: err}) },
	})
	return s
}

func (s *Socket) handleReceive(ev recvqueue.Event) {
	if ev.ReceiveReady {
		s.raise(Event{Kind: EventReadQueueLowWatermark})
	}
	if ev.FlowControlApplied {
		s.raise(Event{Kind: EventReadQueueFlowControlApplied})
	}
	if ev.FlowControlRelaxed {
		s.raise(Event{Kind: EventReadQueueFlowControlRelaxed})
	}
}

func (s *Socket) handleShutdown(res shutdown.Result) {
	if res.RecvNewlyShut {
		s.raise(Event{Kind: EventShutdownReceive})
	}
	if res.SendNewlyShut {
		s.raise(Event{Kind: EventShutdownSend})
	}
	if res.Completed {
		s.raise(Event{Kind: EventShutdownComplete})
		if s.ropts.AutoDetach {
			s.sched.detach(s, nil)
		}
	}
}

func (s *Socket) raise(ev Event) {
	ev.Socket = s.id
	ev.At = time.Now()
	s.mu.Lock()
	cb := s.onEvent
	s.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
}

// ID returns the socket's scheduler-local identifier, used as Event.Socket
// and Error.Socket.
func (s *Socket) ID() uint64 { return s.id }

// Local returns the bound local endpoint.
func (s *Socket) Local() Endpoint { return s.sess.Local() }

// Remote returns the bound peer endpoint.
func (s *Socket) Remote() Endpoint { return s.sess.Remote() }

// FD returns the underlying descriptor, for diagnostics; ownership
// stays with the Socket.
func (s *Socket) FD() int { return s.handle.FD() }

// Send enqueues data for transmission. cb, if non-nil, fires once the
// entry is fully acknowledged, canceled, or failed.
func (s *Socket) Send(data Buffer, dest *Endpoint, opts SendOptions, cb SendCallback) error {
	if err := s.sess.Send(data, dest, opts, cb); err != nil {
		return err
	}
	s.syncInterest()
	return nil
}

// syncInterest re-arms the driver's readiness registration to match what
// the session currently wants. The session only tracks whether it wants
// write-readiness; it never touches the driver itself, since the driver
// is owned by whichever worker this socket is registered on.
func (s *Socket) syncInterest() {
	if s.worker == nil {
		return
	}
	_ = s.worker.driver.Modify(s.FD(), s.sess.Interest())
}

// Receive pops up to max bytes (at least min, if available) from the
// receive queue. ok is false if fewer than min bytes are currently
// buffered and the socket has not half-closed its receive side.
func (s *Socket) Receive(min, max int) (data []byte, source Endpoint, ok bool) {
	data, source, ok, _ = s.sess.Recv().Take(min, max)
	return data, source, ok
}

// Shutdown requests a local half- or full-close.
func (s *Socket) Shutdown(req ShutdownRequest) shutdown.Result {
	return s.sess.Shutdown(req)
}

// Detach begins the scheduler's exactly-once teardown protocol for
// this socket: it is removed from the driver's registration, and cb
// fires once every in-flight callback has finished running and the
// underlying descriptor has been closed.
func (s *Socket) Detach(cb func()) {
	s.sched.detach(s, cb)
}

// OnEvent replaces the socket's event callback.
func (s *Socket) OnEvent(cb func(Event)) {
	s.mu.Lock()
	s.onEvent = cb
	s.mu.Unlock()
}
