// Package ntf provides an asynchronous socket framework: a reactor-driven
// scheduler that multiplexes many non-blocking sockets across a small
// pool of OS threads, with per-socket send/receive queues, watermark-based
// flow control, and a shutdown/detach protocol that tears a socket down
// only once every in-flight callback for it has finished running.
package ntf

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/vireo-io/ntf/internal/endpoint"
	"github.com/vireo-io/ntf/internal/reactor"
	"github.com/vireo-io/ntf/internal/socket"
	"github.com/vireo-io/ntf/internal/timer"
)

// TimerHandle identifies a scheduled callback for later cancellation.
type TimerHandle struct {
	worker int
	id     timer.ID
}

// Scheduler owns a pool of driver threads, each pinned to its own OS
// thread and (optionally) a CPU, each running one reactor.Driver and
// one timer.Wheel. A Socket is assigned to exactly one worker for its
// lifetime (Config.DynamicLoadBalancing does not change this), matching
// the per-queue thread-affinity model go-ublk's queue.Runner.ioLoop
// enforces for its own kernel-imposed reasons.
type Scheduler struct {
	cfg      Config
	logger   Logger
	observer Observer

	workers []*worker
	next    atomic64 // round-robin counter for Attach

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type atomic64 struct {
	mu sync.Mutex
	v  uint64
}

func (a *atomic64) next() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.v++
	return a.v
}

type worker struct {
	index     int
	sched     *Scheduler
	driver    reactor.Driver
	wheel     *timer.Wheel
	mu        sync.Mutex
	sockets   map[int]*Socket
	listeners map[int]*Listener
	wake      chan func()
	started   chan error
}

// NewScheduler validates cfg and constructs a Scheduler with cfg.MaxThreads
// idle worker threads. Call Start to begin polling.
func NewScheduler(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Scheduler{
		cfg:      cfg,
		logger:   cfg.Logger,
		observer: cfg.Observer,
	}
	s.workers = make([]*worker, cfg.MaxThreads)
	for i := range s.workers {
		s.workers[i] = &worker{
			index:     i,
			sched:     s,
			sockets:   make(map[int]*Socket),
			listeners: make(map[int]*Listener),
			wake:      make(chan func(), 64),
			started:   make(chan error, 1),
		}
	}
	return s, nil
}

// Start spins up every worker thread's driver and begins polling.
func (s *Scheduler) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	for _, w := range s.workers {
		driver, err := reactor.NewNamedDriver(s.cfg.Driver)
		if err != nil {
			s.cancel()
			return fmt.Errorf("scheduler: worker %d: %w", w.index, err)
		}
		w.driver = driver
		w.wheel = timer.NewWheel(s.cfg.MaxCyclesPerWait)

		s.wg.Add(1)
		go w.loop(s.ctx, &s.wg)
		if err := <-w.started; err != nil {
			s.cancel()
			return err
		}
	}
	return nil
}

// Stop signals every worker to exit its loop and blocks until all have
// returned, closing each driver.
func (s *Scheduler) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	var firstErr error
	for _, w := range s.workers {
		if w.driver == nil {
			continue
		}
		if err := w.driver.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Attach opens a socket for the given transport and registers it with
// a worker, always chosen round-robin. The worker's driver begins watching it for readable
// events immediately; writable interest is armed on demand by Send.
func (s *Scheduler) Attach(t Transport, local, remote Endpoint, opts SocketOptions, ropts ReactorOptions, onEvent func(Event)) (*Socket, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	h, err := socket.Open(t)
	if err != nil {
		return nil, &Error{Op: "attach", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	if err := h.SetNonblocking(true); err != nil {
		h.Close()
		return nil, &Error{Op: "attach", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	return s.attachHandle(h, local, remote, opts, ropts, onEvent)
}

// Connect opens transport t and initiates a non-blocking connection to
// remote, optionally binding to local first. The returned Socket raises
// EventConnectComplete once the connection resolves, or EventError if it
// fails; until then Send enqueues normally but nothing is flushed to the
// wire.
func (s *Scheduler) Connect(t Transport, local, remote Endpoint, opts SocketOptions, ropts ReactorOptions, onEvent func(Event)) (*Socket, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	h, err := socket.Open(t)
	if err != nil {
		return nil, &Error{Op: "connect", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	if err := h.SetNonblocking(true); err != nil {
		h.Close()
		return nil, &Error{Op: "connect", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	if local.Kind() != endpoint.KindUndefined {
		if err := h.Bind(local); err != nil {
			h.Close()
			return nil, &Error{Op: "connect", Code: CodeUnknown, Msg: err.Error(), Inner: err}
		}
	}
	connErr := h.Connect(remote)
	if connErr != nil && connErr != unix.EINPROGRESS && connErr != unix.EAGAIN {
		h.Close()
		return nil, &Error{Op: "connect", Code: CodeUnknown, Msg: connErr.Error(), Inner: connErr}
	}

	sock, err := s.attachHandle(h, local, remote, opts, ropts, onEvent)
	if err != nil {
		return nil, err
	}
	sock.raise(Event{Kind: EventConnectInitiated})
	if connErr == nil {
		sock.raise(Event{Kind: EventConnectComplete})
		return sock, nil
	}
	sock.connectPending.Store(true)
	w := sock.worker
	if err := w.driver.Modify(sock.FD(), reactor.InterestReadable|reactor.InterestWritable); err != nil {
		return nil, &Error{Op: "connect", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	return sock, nil
}

// AttachExisting wires an already-open, already-connected descriptor
// (e.g. one returned by accept(2)) into the scheduler the same way
// Attach does.
func (s *Scheduler) AttachExisting(fd int, t Transport, local, remote Endpoint, opts SocketOptions, ropts ReactorOptions, onEvent func(Event)) (*Socket, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	h := socket.Acquire(fd, t)
	if err := h.SetNonblocking(true); err != nil {
		h.Close()
		return nil, &Error{Op: "attach", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	return s.attachHandle(h, local, remote, opts, ropts, onEvent)
}

func (s *Scheduler) attachHandle(h *socket.Handle, local, remote Endpoint, opts SocketOptions, ropts ReactorOptions, onEvent func(Event)) (*Socket, error) {
	w := s.pickWorker()
	sock := newSocket(s, h, local, remote, opts, ropts, onEvent)
	sock.worker = w

	if ropts.AutoAttach {
		if err := w.register(sock, ropts); err != nil {
			h.Close()
			return nil, err
		}
	}
	return sock, nil
}

func (s *Scheduler) pickWorker() *worker {
	n := len(s.workers)
	if n == 0 {
		return nil
	}
	idx := int(s.next.next() % uint64(n))
	return s.workers[idx]
}

// detach removes sock from its worker's driver registration and closes
// its descriptor once every in-flight callback for it has finished.
func (s *Scheduler) detach(sock *Socket, cb func()) {
	w := sock.worker
	if w == nil {
		if cb != nil {
			cb()
		}
		return
	}
	w.submit(func() {
		w.unregister(sock)
		sock.sess.Detach(func() {
			sock.handle.Close()
			if cb != nil {
				cb()
			}
		})
	})
}

// ScheduleTimer arms a one-shot callback at deadline on sock's worker,
// serialized with that socket's other readiness callbacks.
func (s *Scheduler) ScheduleTimer(sock *Socket, deadline time.Time, cb func(dropped bool)) TimerHandle {
	w := sock.worker
	id := w.wheel.Schedule(deadline, func(dropped bool) {
		w.submit(func() { cb(dropped) })
	})
	return TimerHandle{worker: w.index, id: id}
}

// CancelTimer cancels a previously scheduled callback; it is a no-op
// if the callback already fired.
func (s *Scheduler) CancelTimer(h TimerHandle) bool {
	if h.worker < 0 || h.worker >= len(s.workers) {
		return false
	}
	return s.workers[h.worker].wheel.Cancel(h.id)
}

func (w *worker) register(sock *Socket, ropts ReactorOptions) error {
	trig := reactor.TriggerLevel
	if ropts.Trigger == TriggerEdge {
		trig = reactor.TriggerEdge
	}
	if err := w.driver.Attach(sock.FD(), reactor.InterestReadable, trig, ropts.OneShot); err != nil {
		return &Error{Op: "attach", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	w.mu.Lock()
	w.sockets[sock.FD()] = sock
	w.mu.Unlock()
	return nil
}

func (w *worker) unregister(sock *Socket) {
	_ = w.driver.Detach(sock.FD())
	w.mu.Lock()
	delete(w.sockets, sock.FD())
	w.mu.Unlock()
}

func (w *worker) registerListener(lis *Listener) error {
	if err := w.driver.Attach(lis.handle.FD(), reactor.InterestReadable, reactor.TriggerLevel, false); err != nil {
		return &Error{Op: "listen", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	w.mu.Lock()
	w.listeners[lis.handle.FD()] = lis
	w.mu.Unlock()
	return nil
}

func (w *worker) unregisterListener(lis *Listener) {
	_ = w.driver.Detach(lis.handle.FD())
	w.mu.Lock()
	delete(w.listeners, lis.handle.FD())
	w.mu.Unlock()
}

// submit queues fn to run on the worker's own thread, serialized with
// that thread's readiness dispatch; used so timer callbacks and detach
// never race a session's strand-bound methods.
func (w *worker) submit(fn func()) {
	select {
	case w.wake <- fn:
	default:
		go func() { w.wake <- fn }()
	}
}

// loop is the worker's driver thread: pinned to its OS thread (and,
// if configured, to a CPU), it waits for readiness events, dispatches
// them to the owning socket's session, drains due timers, and runs
// anything submitted via submit, all without ever running two of
// those concurrently on this worker.
func (w *worker) loop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if aff := w.sched.cfg.CPUAffinity; len(aff) > 0 {
		cpu := aff[w.index%len(aff)]
		var mask unix.CPUSet
		mask.Set(cpu)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			if w.sched.logger != nil {
				w.sched.logger.Printf("scheduler: worker %d: set affinity to cpu %d: %v", w.index, cpu, err)
			}
		}
	}

	w.started <- nil

	events := make([]reactor.Event, 0, w.sched.cfg.MaxEventsPerWait)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-w.wake:
			fn()
			continue
		default:
		}

		timeout := w.nextTimeout()
		var err error
		events, err = w.driver.Wait(events[:0], timeout)
		if err != nil {
			if w.sched.logger != nil {
				w.sched.logger.Printf("scheduler: worker %d: wait: %v", w.index, err)
			}
			continue
		}

		for _, ev := range events {
			w.dispatch(ev)
		}

		fired, drift := w.wheel.DrainDue(time.Now())
		if fired > 0 && w.sched.observer != nil {
			w.sched.observer.ObserveTimerDrift(drift.Nanoseconds())
		}

		w.drainWake()
	}
}

// drainWake runs every function queued via submit without blocking,
// so detach and timer callbacks interleave with readiness dispatch on
// the same worker thread instead of racing it.
func (w *worker) drainWake() {
	for {
		select {
		case fn := <-w.wake:
			fn()
		default:
			return
		}
	}
}

func (w *worker) nextTimeout() time.Duration {
	deadline, ok := w.wheel.NextDeadline()
	if !ok {
		return 100 * time.Millisecond
	}
	d := time.Until(deadline)
	if d < 0 {
		return 0
	}
	return d
}

func (w *worker) dispatch(ev reactor.Event) {
	w.mu.Lock()
	lis, isListener := w.listeners[ev.FD]
	sock, isSocket := w.sockets[ev.FD]
	w.mu.Unlock()

	if isListener {
		if ev.Readable {
			w.acceptLoop(lis)
		}
		return
	}
	if !isSocket {
		return
	}

	if sock.connectPending.Load() && (ev.Writable || ev.Error) {
		sock.connectPending.Store(false)
		if err := sock.handle.LastError(); err != nil {
			sock.raise(Event{Kind: EventError, Err: err})
		} else {
			sock.raise(Event{Kind: EventConnectComplete})
		}
		_ = w.driver.Modify(sock.FD(), reactor.InterestReadable)
		return
	}

	if ev.Error {
		sock.sess.OnExceptional(fmt.Errorf("scheduler: fd %d: driver reported error", ev.FD))
		sock.syncInterest()
		return
	}
	if ev.Readable {
		sock.sess.OnReadable()
	}
	if ev.Writable {
		sock.sess.OnWritable()
	}
	if ev.Exceptional {
		sock.sess.OnExceptional(nil)
	}
	if ev.Hangup {
		sock.sess.OnHangup()
	}
	sock.syncInterest()
}

// acceptLoop drains every pending connection on a listener's backlog
// until the kernel reports no more are ready, attaching each to a
// (possibly different) worker chosen round-robin.
func (w *worker) acceptLoop(lis *Listener) {
	for {
		h, remote, err := lis.handle.Accept()
		if err != nil {
			if isWouldBlockErr(err) {
				return
			}
			lis.onAccept(nil, &Error{Op: "accept", Code: CodeUnknown, Msg: err.Error(), Inner: err})
			return
		}
		if err := h.SetNonblocking(true); err != nil {
			h.Close()
			lis.onAccept(nil, &Error{Op: "accept", Code: CodeUnknown, Msg: err.Error(), Inner: err})
			continue
		}
		local, _ := h.LocalEndpoint()

		target := lis.sched.pickWorker()
		sock := newSocket(lis.sched, h, local, remote, lis.opts, lis.ropts, nil)
		sock.worker = target
		if lis.ropts.AutoAttach {
			if err := target.register(sock, lis.ropts); err != nil {
				h.Close()
				lis.onAccept(nil, err)
				continue
			}
		}
		lis.onAccept(sock, nil)
	}
}

func isWouldBlockErr(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
