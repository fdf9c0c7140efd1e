//go:build unix

// Package reactor's poll backend: a portable Driver built on
// unix.Poll, used on platforms without a native epoll/kqueue binding
// and as the fallback target for documented-but-unbuildable driver
// names (devpoll, eventport, pollset, IOCP).
package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// pollDriver implements Driver with a single unix.Poll call per Wait,
// rebuilding its pollfd slice from the registration map each time.
// O(n) per wait where epoll/kqueue are O(ready); acceptable for the
// portable fallback, not the platform default.
type pollDriver struct {
	mu       sync.Mutex
	interest map[int]Interest
	oneShot  map[int]bool
}

// NewPollDriver creates the portable poll(2)-based Driver.
func NewPollDriver() (Driver, error) {
	return &pollDriver{interest: make(map[int]Interest), oneShot: make(map[int]bool)}, nil
}

func (d *pollDriver) Attach(fd int, interest Interest, trigger Trigger, oneShot bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interest[fd] = interest
	d.oneShot[fd] = oneShot
	return nil
}

func (d *pollDriver) Modify(fd int, interest Interest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interest[fd] = interest
	return nil
}

func (d *pollDriver) Detach(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.interest, fd)
	delete(d.oneShot, fd)
	return nil
}

func (d *pollDriver) Rearm(fd int, interest Interest) error {
	return d.Modify(fd, interest)
}

func (d *pollDriver) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	d.mu.Lock()
	fds := make([]unix.PollFd, 0, len(d.interest))
	for fd, interest := range d.interest {
		var events int16
		if interest.Has(InterestReadable) {
			events |= unix.POLLIN
		}
		if interest.Has(InterestWritable) {
			events |= unix.POLLOUT
		}
		if interest.Has(InterestExceptional) {
			events |= unix.POLLPRI
		}
		fds = append(fds, unix.PollFd{Fd: int32(fd), Events: events})
	}
	d.mu.Unlock()

	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}
	n, err := unix.Poll(fds, ms)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	if n == 0 {
		return dst, nil
	}

	var oneShotFired []int
	for _, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		dst = append(dst, Event{
			FD:          int(pfd.Fd),
			Readable:    pfd.Revents&unix.POLLIN != 0,
			Writable:    pfd.Revents&unix.POLLOUT != 0,
			Exceptional: pfd.Revents&unix.POLLPRI != 0,
			Hangup:      pfd.Revents&unix.POLLHUP != 0,
			Error:       pfd.Revents&unix.POLLERR != 0,
		})
		d.mu.Lock()
		if d.oneShot[int(pfd.Fd)] {
			oneShotFired = append(oneShotFired, int(pfd.Fd))
		}
		d.mu.Unlock()
	}
	d.mu.Lock()
	for _, fd := range oneShotFired {
		d.interest[fd] = 0
	}
	d.mu.Unlock()
	return dst, nil
}

func (d *pollDriver) Close() error {
	return nil
}

// NewNamedDriver creates the Driver identified by name: "epoll",
// "kqueue", "poll", "select", or "" for the platform default
// (NewDriver). Unrecognized names fall through to the platform
// default rather than erroring, matching Config.Validate's normalizing
// of documented-but-unbuildable driver names (devpoll, eventport,
// pollset, iocp) to "poll" before a name ever reaches here.
func NewNamedDriver(name string) (Driver, error) {
	switch name {
	case "poll":
		return NewPollDriver()
	case "select":
		return newSelectDriver()
	case "epoll", "kqueue", "":
		return NewDriver()
	default:
		return NewDriver()
	}
}
