//go:build linux

package proactor

import (
	"sync"
	"syscall"
	"time"
	"unsafe"

	"github.com/pawelgaczynski/giouring"
)

const completionBatch = 128

// ringProactor is the Linux Proactor implementation, one io_uring per
// driver thread.
type ringProactor struct {
	ring *giouring.Ring

	mu        sync.Mutex
	callbacks map[uint64]CompletionFunc
	multishot map[uint64]bool
	ops       map[uint64]Op
	pending   []func(*giouring.SubmissionQueueEntry)
}

// NewProactor creates a Linux io_uring-backed Proactor with the given
// ring depth.
func NewProactor(entries uint32) (Proactor, error) {
	ring, err := giouring.CreateRing(entries)
	if err != nil {
		return nil, err
	}
	return &ringProactor{
		ring:      ring,
		callbacks: make(map[uint64]CompletionFunc),
		multishot: make(map[uint64]bool),
		ops:       make(map[uint64]Op),
	}, nil
}

func (p *ringProactor) register(userID uint64, cb CompletionFunc, multishot bool, op Op) {
	p.mu.Lock()
	p.callbacks[userID] = cb
	p.ops[userID] = op
	if multishot {
		p.multishot[userID] = true
	}
	p.mu.Unlock()
}

func (p *ringProactor) submit(op func(*giouring.SubmissionQueueEntry)) error {
	sqe := p.ring.GetSQE()
	if sqe == nil {
		p.mu.Lock()
		p.pending = append(p.pending, op)
		p.mu.Unlock()
		return nil
	}
	op(sqe)
	return nil
}

func (p *ringProactor) SubmitAccept(listenFD int, userID uint64, cb CompletionFunc) error {
	p.register(userID, cb, true, OpAccept)
	return p.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareMultishotAccept(listenFD, 0, 0, 0)
		sqe.UserData = userID
	})
}

func (p *ringProactor) SubmitConnect(fd int, addr []byte, userID uint64, cb CompletionFunc) error {
	p.register(userID, cb, false, OpConnect)
	return p.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareConnect(fd, uintptr(unsafe.Pointer(&addr[0])), uint64(len(addr)))
		sqe.UserData = userID
	})
}

func (p *ringProactor) SubmitSend(fd int, buf []byte, userID uint64, cb CompletionFunc) error {
	p.register(userID, cb, false, OpSend)
	return p.submit(func(sqe *giouring.SubmissionQueueEntry) {
		var ptr uintptr
		if len(buf) > 0 {
			ptr = uintptr(unsafe.Pointer(&buf[0]))
		}
		sqe.PrepareSend(fd, ptr, uint32(len(buf)), 0)
		sqe.UserData = userID
	})
}

// SubmitSendZC issues an io_uring zero-copy send. Unlike SubmitSend,
// the kernel keeps a reference to buf past the first completion, so
// the operation is registered multishot-style: complete() keeps the
// callback armed until the CQEFMore flag clears on the trailing
// notification completion.
func (p *ringProactor) SubmitSendZC(fd int, buf []byte, userID uint64, cb CompletionFunc) error {
	p.register(userID, cb, true, OpSendZC)
	return p.submit(func(sqe *giouring.SubmissionQueueEntry) {
		var ptr uintptr
		if len(buf) > 0 {
			ptr = uintptr(unsafe.Pointer(&buf[0]))
		}
		sqe.PrepareSendZC(fd, ptr, uint32(len(buf)), 0, 0)
		sqe.UserData = userID
	})
}

func (p *ringProactor) SubmitRecv(fd int, buf []byte, userID uint64, cb CompletionFunc) error {
	p.register(userID, cb, false, OpRecv)
	return p.submit(func(sqe *giouring.SubmissionQueueEntry) {
		var ptr uintptr
		if len(buf) > 0 {
			ptr = uintptr(unsafe.Pointer(&buf[0]))
		}
		sqe.PrepareRecv(fd, ptr, uint32(len(buf)), 0)
		sqe.UserData = userID
	})
}

func (p *ringProactor) SubmitTimeout(d time.Duration, userID uint64, cb CompletionFunc) error {
	p.register(userID, cb, false, OpTimeout)
	ts := syscall.NsecToTimespec(d.Nanoseconds())
	return p.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareTimeout(&giouring.Timespec{Sec: uint64(ts.Sec), Nsec: uint64(ts.Nsec)}, 0, 0)
		sqe.UserData = userID
	})
}

func (p *ringProactor) SubmitPollAdd(fd int, writable bool, userID uint64, cb CompletionFunc) error {
	p.register(userID, cb, false, OpPollAdd)
	mask := uint32(giouring.POLLIN)
	if writable {
		mask = giouring.POLLOUT
	}
	return p.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PreparePollAdd(fd, mask)
		sqe.UserData = userID
	})
}

func (p *ringProactor) Cancel(userID uint64) error {
	return p.submit(func(sqe *giouring.SubmissionQueueEntry) {
		sqe.PrepareCancel64(userID, 0)
		sqe.UserData = 0
	})
}

func (p *ringProactor) flushPending() {
	p.mu.Lock()
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	var remaining []func(*giouring.SubmissionQueueEntry)
	for _, op := range pending {
		sqe := p.ring.GetSQE()
		if sqe == nil {
			remaining = append(remaining, op)
			continue
		}
		op(sqe)
	}
	if len(remaining) > 0 {
		p.mu.Lock()
		p.pending = append(remaining, p.pending...)
		p.mu.Unlock()
	}
}

func (p *ringProactor) Wait(timeout time.Duration) error {
	p.flushPending()

	var ts *syscall.Timespec
	if timeout >= 0 {
		t := syscall.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	if ts != nil {
		gts := giouring.Timespec{Sec: uint64(ts.Sec), Nsec: uint64(ts.Nsec)}
		if _, err := p.ring.SubmitAndWaitTimeout(1, &gts, nil); err != nil && !isTemporary(err) {
			return err
		}
	} else {
		if _, err := p.ring.SubmitAndWait(1); err != nil && !isTemporary(err) {
			return err
		}
	}
	p.dispatch()
	return nil
}

func (p *ringProactor) dispatch() {
	var cqes [completionBatch]*giouring.CompletionQueueEvent
	for {
		n := p.ring.PeekBatchCQE(cqes[:])
		for _, cqe := range cqes[:n] {
			p.complete(cqe)
		}
		p.ring.CQAdvance(n)
		if n < uint32(len(cqes)) {
			return
		}
	}
}

func (p *ringProactor) complete(cqe *giouring.CompletionQueueEvent) {
	if cqe.UserData == 0 {
		return
	}
	p.mu.Lock()
	cb, ok := p.callbacks[cqe.UserData]
	op := p.ops[cqe.UserData]
	isMultishot := p.multishot[cqe.UserData]
	more := cqe.Flags&giouring.CQEFMore != 0
	if ok && !(isMultishot && more) {
		delete(p.callbacks, cqe.UserData)
		delete(p.multishot, cqe.UserData)
		delete(p.ops, cqe.UserData)
	}
	p.mu.Unlock()
	if !ok {
		return
	}

	c := Completion{Op: op, UserID: cqe.UserData, Result: cqe.Res}
	if cqe.Res < 0 {
		c.Err = syscall.Errno(-cqe.Res)
	}
	if op == OpSendZC {
		c.Notif = cqe.Flags&giouring.CQEFNotif != 0
	}
	cb(c)
}

func isTemporary(err error) bool {
	errno, ok := err.(syscall.Errno)
	return ok && (errno == syscall.EINTR || errno == syscall.EAGAIN)
}

func (p *ringProactor) Close() error {
	p.ring.QueueExit()
	return nil
}
