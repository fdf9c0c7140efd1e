// Package proactor implements the completion-model I/O driver: submit
// an accept/connect/send/recv/timeout operation once, get a single
// callback invocation when the kernel finishes it. On Linux this is
// backed by io_uring (proactor_linux.go); other platforms get a stub
// that reports the driver as unavailable (proactor_stub.go).
package proactor

import (
	"errors"
	"time"
)

// ErrNotImplemented is returned by NewProactor on platforms without a
// completion-model backend.
var ErrNotImplemented = errors.New("proactor: not implemented on this platform")

// Op identifies the kind of operation a Completion reports on.
type Op int

const (
	OpAccept Op = iota
	OpConnect
	OpSend
	OpSendZC
	OpRecv
	OpTimeout
	OpPollAdd
	OpCancel
)

// Completion reports the result of one submitted operation. Result is
// the raw return value (bytes transferred, new fd, or negative errno
// per io_uring convention); Err is non-nil when Result indicates
// failure. Notif is set only for OpSendZC's second completion: the
// buffer-release notification, carrying no byte count of its own,
// delivered once the kernel is done referencing the send buffer.
type Completion struct {
	Op     Op
	UserID uint64
	Result int32
	Err    error
	Notif  bool
}

// CompletionFunc is invoked exactly once per submitted operation,
// except operations submitted multishot: accept, which may fire
// repeatedly until canceled, and zero-copy send, which fires a second
// time with its buffer-release notification.
type CompletionFunc func(Completion)

// Proactor submits operations to the kernel and reports their
// completions. A single goroutine owns each Proactor and drives it via
// repeated Wait calls, matching the per-driver-thread ownership model
// internal/reactor and internal/timer also assume.
type Proactor interface {
	// SubmitAccept arms a multishot accept on a listening fd; cb fires
	// once per accepted connection until Cancel is called for userID.
	SubmitAccept(listenFD int, userID uint64, cb CompletionFunc) error
	// SubmitConnect issues a connect(2) to the given raw sockaddr.
	SubmitConnect(fd int, addr []byte, userID uint64, cb CompletionFunc) error
	// SubmitSend issues a send(2) of buf on fd. The caller must keep buf
	// alive and unmodified until cb fires.
	SubmitSend(fd int, buf []byte, userID uint64, cb CompletionFunc) error
	// SubmitSendZC issues a zero-copy send(2) of buf on fd. cb fires
	// twice: once with the transfer result, once more with Notif set
	// once the kernel releases its reference to buf — only then may
	// the caller reuse or free it.
	SubmitSendZC(fd int, buf []byte, userID uint64, cb CompletionFunc) error
	// SubmitRecv issues a recv(2) into buf on fd. The caller must keep
	// buf alive until cb fires.
	SubmitRecv(fd int, buf []byte, userID uint64, cb CompletionFunc) error
	// SubmitTimeout arms a relative timeout; cb fires once it elapses.
	SubmitTimeout(d time.Duration, userID uint64, cb CompletionFunc) error
	// SubmitPollAdd arms a readiness poll for fd.
	SubmitPollAdd(fd int, writable bool, userID uint64, cb CompletionFunc) error
	// Cancel requests cancellation of the operation registered under
	// userID. The canceled operation still completes with ECANCELED.
	Cancel(userID uint64) error
	// Wait blocks until at least one submitted operation completes (or
	// timeout elapses, timeout < 0 meaning block indefinitely),
	// dispatching each ready completion to its CompletionFunc.
	Wait(timeout time.Duration) error
	// Close releases the underlying ring. It does not cancel pending
	// operations or invoke their callbacks.
	Close() error
}
