//go:build linux

// selectDriver is Linux-only: unix.FdSet.Bits is a []int64 on this
// platform, which the bit-twiddling below assumes. Other platforms
// expose the same `select` driver config string but resolve to the
// portable poll backend instead (see newSelectDriver in
// select_other.go), since FdSet's word size is not uniform across unix.
package reactor

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// selectDriver implements Driver with unix.Select. Present for parity
// with the `select` driver config string (spec.md §6); FD_SETSIZE
// limits it to low-numbered descriptors, which is why it is never the
// platform default.
type selectDriver struct {
	mu       sync.Mutex
	interest map[int]Interest
}

// NewSelectDriver creates the select(2)-based Driver.
func NewSelectDriver() (Driver, error) {
	return &selectDriver{interest: make(map[int]Interest)}, nil
}

func newSelectDriver() (Driver, error) {
	return NewSelectDriver()
}

func (d *selectDriver) Attach(fd int, interest Interest, trigger Trigger, oneShot bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interest[fd] = interest
	return nil
}

func (d *selectDriver) Modify(fd int, interest Interest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.interest[fd] = interest
	return nil
}

func (d *selectDriver) Detach(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.interest, fd)
	return nil
}

func (d *selectDriver) Rearm(fd int, interest Interest) error {
	return d.Modify(fd, interest)
}

func (d *selectDriver) Wait(dst []Event, timeout time.Duration) ([]Event, error) {
	d.mu.Lock()
	var readSet, writeSet, exceptSet unix.FdSet
	maxFD := 0
	for fd, interest := range d.interest {
		if fd > maxFD {
			maxFD = fd
		}
		if interest.Has(InterestReadable) {
			fdSet(&readSet, fd)
		}
		if interest.Has(InterestWritable) {
			fdSet(&writeSet, fd)
		}
		if interest.Has(InterestExceptional) {
			fdSet(&exceptSet, fd)
		}
	}
	d.mu.Unlock()

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}
	n, err := unix.Select(maxFD+1, &readSet, &writeSet, &exceptSet, tv)
	if err != nil {
		if err == unix.EINTR {
			return dst, nil
		}
		return dst, err
	}
	if n == 0 {
		return dst, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for fd := range d.interest {
		r := fdIsSet(&readSet, fd)
		w := fdIsSet(&writeSet, fd)
		e := fdIsSet(&exceptSet, fd)
		if r || w || e {
			dst = append(dst, Event{FD: fd, Readable: r, Writable: w, Exceptional: e})
		}
	}
	return dst, nil
}

func (d *selectDriver) Close() error {
	return nil
}

func fdSet(set *unix.FdSet, fd int) {
	set.Bits[fd/64] |= 1 << (uint(fd) % 64)
}

func fdIsSet(set *unix.FdSet, fd int) bool {
	return set.Bits[fd/64]&(1<<(uint(fd)%64)) != 0
}
