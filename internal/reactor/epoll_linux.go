//go:build linux

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// epollDriver is the Linux Driver implementation.
type epollDriver struct {
	fd int

	mu        sync.Mutex
	oneShot   map[int]bool
	trigger   map[int]Trigger
}

// NewDriver creates the platform-default Driver: epoll on Linux.
func NewDriver() (Driver, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollDriver{
		fd:      fd,
		oneShot: make(map[int]bool),
		trigger: make(map[int]Trigger),
	}, nil
}

func toEpollEvents(interest Interest, trigger Trigger, oneShot bool) uint32 {
	var ev uint32
	if interest.Has(InterestReadable) {
		ev |= unix.EPOLLIN
	}
	if interest.Has(InterestWritable) {
		ev |= unix.EPOLLOUT
	}
	if interest.Has(InterestExceptional) {
		ev |= unix.EPOLLPRI
	}
	if trigger == TriggerEdge {
		ev |= unix.EPOLLET
	}
	if oneShot {
		ev |= unix.EPOLLONESHOT
	}
	return ev
}

func (d *epollDriver) Attach(fd int, interest Interest, trigger Trigger, oneShot bool) error {
	ev := &unix.EpollEvent{Events: toEpollEvents(interest, trigger, oneShot), Fd: int32(fd)}
	if err := unix.EpollCtl(d.fd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	d.mu.Lock()
	d.oneShot[fd] = oneShot
	d.trigger[fd] = trigger
	d.mu.Unlock()
	return nil
}

func (d *epollDriver) Modify(fd int, interest Interest) error {
	d.mu.Lock()
	trigger := d.trigger[fd]
	oneShot := d.oneShot[fd]
	d.mu.Unlock()
	ev := &unix.EpollEvent{Events: toEpollEvents(interest, trigger, oneShot), Fd: int32(fd)}
	return unix.EpollCtl(d.fd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (d *epollDriver) Detach(fd int) error {
	d.mu.Lock()
	delete(d.oneShot, fd)
	delete(d.trigger, fd)
	d.mu.Unlock()
	return unix.EpollCtl(d.fd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (d *epollDriver) Rearm(fd int, interest Interest) error {
	return d.Modify(fd, interest)
}

func (d *epollDriver) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	var raw [256]unix.EpollEvent
	n, err := unix.EpollWait(d.fd, raw[:], ms)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	for i := 0; i < n; i++ {
		e := raw[i]
		dst = append(dst, Event{
			FD:          int(e.Fd),
			Readable:    e.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0,
			Writable:    e.Events&unix.EPOLLOUT != 0,
			Exceptional: e.Events&unix.EPOLLPRI != 0,
			Hangup:      e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			Error:       e.Events&unix.EPOLLERR != 0,
		})
	}
	return dst, nil
}

func (d *epollDriver) Close() error {
	return unix.Close(d.fd)
}
