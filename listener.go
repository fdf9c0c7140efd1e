package ntf

import (
	"github.com/vireo-io/ntf/internal/socket"
)

// Listener is a passive socket accepting incoming connections. Each
// accepted connection is attached to the scheduler and delivered
// through onAccept the same way a dialed Socket is delivered from
// Connect.
type Listener struct {
	sched    *Scheduler
	handle   *socket.Handle
	worker   *worker
	opts     SocketOptions
	ropts    ReactorOptions
	onAccept func(*Socket, error)
}

// Listen opens transport t, binds to local, and begins listening with
// the given backlog. onAccept fires once per accepted connection (or
// once with a non-nil error if the listener itself fails) from
// whichever worker thread is polling the listening descriptor.
func (s *Scheduler) Listen(t Transport, local Endpoint, backlog int, opts SocketOptions, ropts ReactorOptions, onAccept func(*Socket, error)) (*Listener, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	h, err := socket.Open(t)
	if err != nil {
		return nil, &Error{Op: "listen", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	if err := h.SetNonblocking(true); err != nil {
		h.Close()
		return nil, &Error{Op: "listen", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	_ = h.SetReuseAddr(true)
	if err := h.Bind(local); err != nil {
		h.Close()
		return nil, &Error{Op: "listen", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}
	if backlog <= 0 {
		backlog = DefaultListenBacklog
	}
	if err := h.Listen(backlog); err != nil {
		h.Close()
		return nil, &Error{Op: "listen", Code: CodeUnknown, Msg: err.Error(), Inner: err}
	}

	l := &Listener{
		sched:    s,
		handle:   h,
		worker:   s.pickWorker(),
		opts:     opts,
		ropts:    ropts,
		onAccept: onAccept,
	}
	if err := l.worker.registerListener(l); err != nil {
		h.Close()
		return nil, err
	}
	return l, nil
}

// Addr returns the endpoint the listener is bound to.
func (l *Listener) Addr() (Endpoint, error) {
	return l.handle.LocalEndpoint()
}

// Close stops accepting new connections and releases the listening
// descriptor. Already-accepted Sockets are unaffected.
func (l *Listener) Close() error {
	l.worker.unregisterListener(l)
	return l.handle.Close()
}
