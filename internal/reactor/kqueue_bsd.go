//go:build darwin || freebsd || dragonfly || netbsd || openbsd

package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// kqueueDriver is the BSD/Darwin Driver implementation.
type kqueueDriver struct {
	fd int

	mu       sync.Mutex
	interest map[int]Interest
	oneShot  map[int]bool
}

// NewDriver creates the platform-default Driver: kqueue on BSD/Darwin.
func NewDriver() (Driver, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &kqueueDriver{
		fd:       fd,
		interest: make(map[int]Interest),
		oneShot:  make(map[int]bool),
	}, nil
}

func (d *kqueueDriver) changelistFor(fd int, interest Interest, oneShot bool, add bool) []unix.Kevent_t {
	var flags uint16 = unix.EV_ADD | unix.EV_ENABLE
	if oneShot {
		flags |= unix.EV_ONESHOT
	}
	if !add {
		flags = unix.EV_DELETE
	}

	var changes []unix.Kevent_t
	if add && interest.Has(InterestReadable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: flags})
	} else if !add {
		changes = append(changes,
			unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
			unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
		)
	}
	if add && interest.Has(InterestWritable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: flags})
	}
	return changes
}

func (d *kqueueDriver) Attach(fd int, interest Interest, trigger Trigger, oneShot bool) error {
	changes := d.changelistFor(fd, interest, oneShot, true)
	if len(changes) > 0 {
		if _, err := unix.Kevent(d.fd, changes, nil, nil); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.interest[fd] = interest
	d.oneShot[fd] = oneShot
	d.mu.Unlock()
	return nil
}

func (d *kqueueDriver) Modify(fd int, interest Interest) error {
	d.mu.Lock()
	prev := d.interest[fd]
	oneShot := d.oneShot[fd]
	d.mu.Unlock()

	var changes []unix.Kevent_t
	if prev.Has(InterestReadable) && !interest.Has(InterestReadable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE})
	}
	if prev.Has(InterestWritable) && !interest.Has(InterestWritable) {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE})
	}
	addInterest := interest &^ prev
	changes = append(changes, d.changelistFor(fd, addInterest, oneShot, true)...)

	if len(changes) > 0 {
		if _, err := unix.Kevent(d.fd, changes, nil, nil); err != nil {
			return err
		}
	}
	d.mu.Lock()
	d.interest[fd] = interest
	d.mu.Unlock()
	return nil
}

func (d *kqueueDriver) Detach(fd int) error {
	changes := d.changelistFor(fd, 0, false, false)
	d.mu.Lock()
	delete(d.interest, fd)
	delete(d.oneShot, fd)
	d.mu.Unlock()
	_, err := unix.Kevent(d.fd, changes, nil, nil)
	return err
}

func (d *kqueueDriver) Rearm(fd int, interest Interest) error {
	return d.Modify(fd, interest)
}

func (d *kqueueDriver) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(timeout.Nanoseconds())
		ts = &t
	}
	var raw [256]unix.Kevent_t
	n, err := unix.Kevent(d.fd, nil, raw[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}

	byFD := make(map[int]*Event)
	for i := 0; i < n; i++ {
		e := raw[i]
		fd := int(e.Ident)
		ev, ok := byFD[fd]
		if !ok {
			ev = &Event{FD: fd}
			byFD[fd] = ev
			dst = append(dst, Event{})
		}
		switch e.Filter {
		case unix.EVFILT_READ:
			ev.Readable = true
		case unix.EVFILT_WRITE:
			ev.Writable = true
		}
		if e.Flags&unix.EV_EOF != 0 {
			ev.Hangup = true
		}
		if e.Flags&unix.EV_ERROR != 0 {
			ev.Error = true
		}
	}
	i := len(dst) - len(byFD)
	for _, ev := range byFD {
		dst[i] = *ev
		i++
	}
	return dst, nil
}

func (d *kqueueDriver) Close() error {
	return unix.Close(d.fd)
}
