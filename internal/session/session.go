// Package session glues one socket handle to its queues, strand, and
// shutdown/detach state, and generalizes the teacher's per-tag
// FETCH/COMMIT state machine to readiness events: readable, writable,
// exceptional, shutdown, and error.
package session

import (
	"errors"
	"io"
	"sync"

	"github.com/vireo-io/ntf/internal/buffer"
	"github.com/vireo-io/ntf/internal/detach"
	"github.com/vireo-io/ntf/internal/endpoint"
	"github.com/vireo-io/ntf/internal/interfaces"
	"github.com/vireo-io/ntf/internal/reactor"
	"github.com/vireo-io/ntf/internal/recvqueue"
	"github.com/vireo-io/ntf/internal/sendqueue"
	"github.com/vireo-io/ntf/internal/shutdown"
	"github.com/vireo-io/ntf/internal/strand"
)

// ErrClosed is returned by operations attempted after detach completes.
var ErrClosed = errors.New("session: socket closed")

// Syscalls is the raw read/write surface a Session drives; *socket.Handle
// satisfies it directly, and tests substitute a fake.
type Syscalls interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	FD() int
}

// Callbacks receives the events a Session produces. All methods are
// invoked on the session's strand, never concurrently with each other.
type Callbacks struct {
	OnReceive       func(recvqueue.Event)
	OnSendLowWater  func()
	OnSendHighWater func()
	OnShutdown      func(shutdown.Result)
	OnError         func(error)
}

// Options configures a new Session.
type Options struct {
	SendLowWatermark  int
	SendHighWatermark int
	RecvMode          recvqueue.Mode
	RecvLow           int
	RecvHigh          int
	RecvMin           int
	RecvMax           int
	KeepHalfOpen      bool
	MaxPerDrain       int
	Logger            interfaces.Logger
	Observer          interfaces.Observer
}

// Session is the per-socket state machine bound to one reactor-managed
// fd (or one proactor operation chain).
type Session struct {
	sys    Syscalls
	local  endpoint.Endpoint
	remote endpoint.Endpoint

	strand *strand.Strand
	send   *sendqueue.Queue
	recv   *recvqueue.Queue
	shut   *shutdown.Coordinator
	detach *detach.Coordinator

	cb       Callbacks
	logger   interfaces.Logger
	observer interfaces.Observer

	mu        sync.Mutex
	wantWrite bool
	readBuf   []byte
	lastErr   error
	detachCB  func()
}

// New creates a Session bound to sys, driving the send/receive queues
// described by opts and reporting events through cb.
func New(sys Syscalls, local, remote endpoint.Endpoint, opts Options, cb Callbacks) *Session {
	maxPerDrain := opts.MaxPerDrain
	if maxPerDrain <= 0 {
		maxPerDrain = 256
	}
	return &Session{
		sys:      sys,
		local:    local,
		remote:   remote,
		strand:   strand.New(maxPerDrain),
		send:     sendqueue.NewQueue(opts.SendLowWatermark, opts.SendHighWatermark),
		recv:     recvqueue.NewQueue(opts.RecvMode, opts.RecvLow, opts.RecvHigh, opts.RecvMin, opts.RecvMax),
		shut:     shutdown.NewCoordinator(opts.KeepHalfOpen),
		detach:   detach.NewCoordinator(),
		cb:       cb,
		logger:   opts.Logger,
		observer: opts.Observer,
		readBuf:  make([]byte, 64*1024),
	}
}

// Local returns the bound local endpoint.
func (s *Session) Local() endpoint.Endpoint { return s.local }

// Remote returns the bound peer endpoint.
func (s *Session) Remote() endpoint.Endpoint { return s.remote }

// FD returns the underlying file descriptor, for driver registration.
func (s *Session) FD() int { return s.sys.FD() }

// Recv returns the session's receive queue, for callers that pop
// buffered data directly (Socket.Receive).
func (s *Session) Recv() *recvqueue.Queue { return s.recv }

// Send enqueues data for transmission; cb, if non-nil, fires once the
// entry is fully acknowledged, canceled, or failed.
func (s *Session) Send(data buffer.Buffer, dest *endpoint.Endpoint, opts sendqueue.Options, cb sendqueue.Callback) error {
	if s.detach.State() != detach.StateAttached {
		return ErrClosed
	}
	res := s.send.Enqueue(data, dest, opts, cb)
	if res.HighWatermarkHit && s.cb.OnSendHighWater != nil {
		s.strand.Execute(s.cb.OnSendHighWater)
	}
	s.armWritable(true)
	return nil
}

// OnReadable is invoked by the owning driver when the fd is readable.
// It pumps recv syscalls into the receive queue until EAGAIN, EOF, or a
// short read suggests the socket buffer is drained for now.
func (s *Session) OnReadable() {
	s.strand.Execute(func() {
		s.guarded(func() {
			for {
				if st := s.shut.State(); st == shutdown.StateRecvShut || st == shutdown.StateBothShut {
					return
				}
				n, err := s.sys.Read(s.readBuf)
				if n > 0 {
					ev := s.recv.Feed(s.readBuf[:n], endpoint.Endpoint{})
					s.notifyRecv(ev)
					if s.observer != nil {
						s.observer.ObserveReceive(uint64(n), 0, true)
					}
				}
				if err != nil {
					if err == io.EOF {
						s.handleRecvShutdown()
						return
					}
					if isWouldBlock(err) {
						return
					}
					s.fail(err)
					return
				}
				if n == 0 || n < len(s.readBuf) {
					return
				}
			}
		})
	})
}

// OnWritable is invoked by the owning driver when the fd is writable.
// It drains the send queue by batching contiguous entries and issuing
// write syscalls until EAGAIN or the queue empties.
func (s *Session) OnWritable() {
	s.strand.Execute(func() {
		s.guarded(func() {
			for {
				segments, total := s.send.Drain(sendqueue.Limits{MaxBytes: 256 * 1024, MaxBuffers: 64})
				if total == 0 {
					s.armWritable(false)
					return
				}
				n, err := writeSegments(s.sys, segments)
				if n > 0 {
					ack := s.send.Acknowledge(n)
					if ack.LowWatermarkHit && s.cb.OnSendLowWater != nil {
						s.cb.OnSendLowWater()
					}
					if s.observer != nil {
						s.observer.ObserveSend(uint64(n), 0, true)
					}
				}
				if err != nil {
					if isWouldBlock(err) {
						return
					}
					s.send.FailAll(err)
					s.fail(err)
					return
				}
				if n < total {
					return
				}
			}
		})
	})
}

// OnExceptional is invoked when the driver reports exceptional/OOB
// readiness (e.g. EPOLLPRI for TCP urgent data) or a pending socket
// error surfaced via SO_ERROR.
func (s *Session) OnExceptional(sockErr error) {
	s.strand.Execute(func() {
		s.guarded(func() {
			if sockErr != nil {
				s.fail(sockErr)
			}
		})
	})
}

// OnHangup is invoked when the driver reports the peer closed its
// write side (EPOLLRDHUP) or a full hangup (EPOLLHUP).
func (s *Session) OnHangup() {
	s.strand.Execute(func() {
		s.guarded(func() {
			s.handleRecvShutdown()
		})
	})
}

func (s *Session) handleRecvShutdown() {
	res := s.shut.Request(shutdown.RequestShutRecv, shutdown.OriginDestination)
	s.recv.ShutRecv()
	if s.cb.OnShutdown != nil {
		s.cb.OnShutdown(res)
	}
}

// Shutdown requests a local half- or full-close.
func (s *Session) Shutdown(req shutdown.Request) shutdown.Result {
	res := s.shut.Request(req, shutdown.OriginSource)
	if s.cb.OnShutdown != nil {
		s.strand.Execute(func() { s.cb.OnShutdown(res) })
	}
	return res
}

// Detach begins the exactly-once teardown protocol: new driver events
// stop being acquired immediately, and cb fires once every in-flight
// callback invoked before this call has finished running.
func (s *Session) Detach(cb func()) {
	s.mu.Lock()
	s.detachCB = cb
	s.mu.Unlock()

	if !s.detach.RequestDetach() {
		return
	}
	// Balances against any Acquire already in flight: if none are
	// outstanding, this pair observes refs reaching zero itself.
	s.detach.Acquire()
	s.finishIfDrained()
}

// guarded brackets fn with the detach Acquire/Release protocol so a
// detach request racing with an in-flight driver event cannot run fn
// against a socket mid-teardown, and so the last such event to finish
// is the one that fires the detach completion.
func (s *Session) guarded(fn func()) {
	if s.detach.Acquire() {
		fn()
	}
	s.finishIfDrained()
}

func (s *Session) finishIfDrained() {
	if !s.detach.Release() {
		return
	}
	s.detach.MarkDetached()
	s.mu.Lock()
	cb := s.detachCB
	s.detachCB = nil
	s.mu.Unlock()
	if cb != nil {
		cb()
	}
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
	s.send.FailAll(err)
	res := s.shut.Request(shutdown.RequestShutBoth, shutdown.OriginSource)
	if s.cb.OnError != nil {
		s.cb.OnError(err)
	}
	if s.cb.OnShutdown != nil {
		s.cb.OnShutdown(res)
	}
}

// LastError returns the error that caused the most recent fail, if any.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) notifyRecv(ev recvqueue.Event) {
	if s.cb.OnReceive != nil {
		s.cb.OnReceive(ev)
	}
}

func (s *Session) armWritable(want bool) {
	s.mu.Lock()
	changed := s.wantWrite != want
	s.wantWrite = want
	s.mu.Unlock()
	if changed && s.logger != nil {
		s.logger.Debugf("session fd=%d writable interest=%v", s.FD(), want)
	}
}

// WantWrite reports whether the session currently wants EPOLLOUT/write
// readiness armed, for the owning driver to call Modify/Rearm with.
func (s *Session) WantWrite() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wantWrite
}

// Interest computes the Reactor interest mask this session currently
// wants armed.
func (s *Session) Interest() reactor.Interest {
	interest := reactor.InterestReadable | reactor.InterestExceptional
	if s.WantWrite() {
		interest |= reactor.InterestWritable
	}
	return interest
}

func writeSegments(sys Syscalls, segments [][]byte) (int, error) {
	total := 0
	for _, seg := range segments {
		n, err := sys.Write(seg)
		total += n
		if err != nil {
			return total, err
		}
		if n < len(seg) {
			return total, nil
		}
	}
	return total, nil
}

func isWouldBlock(err error) bool {
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return false
}
