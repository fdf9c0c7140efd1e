// Package socket wraps a raw OS socket descriptor in an RAII-style
// handle: open/acquire on construction, close/release on teardown,
// with blocking-mode and option accessors used by the reactor and
// proactor drivers.
package socket

import (
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Transport identifies the socket family/type/protocol combination a
// Handle was opened for.
type Transport int

const (
	TransportUndefined Transport = iota
	TransportTCPv4
	TransportTCPv6
	TransportUDPv4
	TransportUDPv6
	TransportLocalStream
	TransportLocalDatagram
)

func (t Transport) String() string {
	switch t {
	case TransportTCPv4:
		return "tcp4"
	case TransportTCPv6:
		return "tcp6"
	case TransportUDPv4:
		return "udp4"
	case TransportUDPv6:
		return "udp6"
	case TransportLocalStream:
		return "local-stream"
	case TransportLocalDatagram:
		return "local-datagram"
	default:
		return "undefined"
	}
}

func (t Transport) domain() (family, sotype, proto int, err error) {
	switch t {
	case TransportTCPv4:
		return unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP, nil
	case TransportTCPv6:
		return unix.AF_INET6, unix.SOCK_STREAM, unix.IPPROTO_TCP, nil
	case TransportUDPv4:
		return unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP, nil
	case TransportUDPv6:
		return unix.AF_INET6, unix.SOCK_DGRAM, unix.IPPROTO_UDP, nil
	case TransportLocalStream:
		return unix.AF_UNIX, unix.SOCK_STREAM, 0, nil
	case TransportLocalDatagram:
		return unix.AF_UNIX, unix.SOCK_DGRAM, 0, nil
	default:
		return 0, 0, 0, fmt.Errorf("socket: unsupported transport %v", t)
	}
}

// Handle owns a single OS socket descriptor. Close is idempotent and
// safe to call from any goroutine; a Handle must not be copied after
// first use (it carries a released flag, not a reference count).
type Handle struct {
	fd        int32 // -1 once closed
	transport Transport
	closeOnce sync.Once
}

// Open creates a new socket for the given transport, non-blocking by
// default, and returns a Handle owning it.
func Open(t Transport) (*Handle, error) {
	family, sotype, proto, err := t.domain()
	if err != nil {
		return nil, err
	}
	fd, err := unix.Socket(family, sotype|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, proto)
	if err != nil {
		return nil, fmt.Errorf("socket: open %v: %w", t, err)
	}
	return &Handle{fd: int32(fd), transport: t}, nil
}

// Acquire wraps an already-open descriptor (e.g. returned by Accept4)
// without creating a new one. The Handle takes ownership: Close will
// close fd.
func Acquire(fd int, t Transport) *Handle {
	return &Handle{fd: int32(fd), transport: t}
}

// FD returns the underlying descriptor, or -1 if the handle is closed.
func (h *Handle) FD() int {
	return int(atomic.LoadInt32(&h.fd))
}

// Transport reports the transport this handle was opened for.
func (h *Handle) Transport() Transport { return h.transport }

// Valid reports whether the handle still owns an open descriptor.
func (h *Handle) Valid() bool {
	return atomic.LoadInt32(&h.fd) >= 0
}

// Release detaches the descriptor from this handle without closing it,
// returning it to the caller. Used when ownership transfers elsewhere
// (e.g. handing a descriptor to a completion-based driver that manages
// its own lifecycle).
func (h *Handle) Release() int {
	fd := atomic.SwapInt32(&h.fd, -1)
	return int(fd)
}

// Close closes the underlying descriptor. Safe to call more than once;
// only the first call has any effect.
func (h *Handle) Close() error {
	var closeErr error
	h.closeOnce.Do(func() {
		fd := atomic.SwapInt32(&h.fd, -1)
		if fd < 0 {
			return
		}
		closeErr = unix.Close(int(fd))
	})
	return closeErr
}

// SetNonblocking toggles O_NONBLOCK on the descriptor. Handles opened
// via Open already start non-blocking; this exists for descriptors
// acquired from elsewhere.
func (h *Handle) SetNonblocking(nonblocking bool) error {
	return unix.SetNonblock(h.FD(), nonblocking)
}

// Read reads from the underlying descriptor, satisfying the Syscalls
// surface a session drives directly against a non-blocking socket.
func (h *Handle) Read(p []byte) (int, error) {
	return unix.Read(h.FD(), p)
}

// Write writes to the underlying descriptor.
func (h *Handle) Write(p []byte) (int, error) {
	return unix.Write(h.FD(), p)
}

// SetReuseAddr sets SO_REUSEADDR, needed before Bind on a restarted
// listener.
func (h *Handle) SetReuseAddr(enable bool) error {
	return unix.SetsockoptInt(h.FD(), unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(enable))
}

// SetReusePort sets SO_REUSEPORT, allowing multiple listeners to share
// a port for kernel-level load balancing across driver threads.
func (h *Handle) SetReusePort(enable bool) error {
	return unix.SetsockoptInt(h.FD(), unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(enable))
}

// SetNoDelay disables Nagle's algorithm on a TCP handle.
func (h *Handle) SetNoDelay(enable bool) error {
	return unix.SetsockoptInt(h.FD(), unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(enable))
}

// SetKeepAlive enables or disables SO_KEEPALIVE.
func (h *Handle) SetKeepAlive(enable bool) error {
	return unix.SetsockoptInt(h.FD(), unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(enable))
}

// SetSendBufferSize sets SO_SNDBUF.
func (h *Handle) SetSendBufferSize(bytes int) error {
	return unix.SetsockoptInt(h.FD(), unix.SOL_SOCKET, unix.SO_SNDBUF, bytes)
}

// SetReceiveBufferSize sets SO_RCVBUF.
func (h *Handle) SetReceiveBufferSize(bytes int) error {
	return unix.SetsockoptInt(h.FD(), unix.SOL_SOCKET, unix.SO_RCVBUF, bytes)
}

// LastError reads and clears SO_ERROR, the mechanism for discovering
// whether a non-blocking connect succeeded.
func (h *Handle) LastError() error {
	errno, err := unix.GetsockoptInt(h.FD(), unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno != 0 {
		return unix.Errno(errno)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
