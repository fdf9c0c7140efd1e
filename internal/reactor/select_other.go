//go:build unix && !linux

package reactor

// newSelectDriver falls back to the portable poll backend on unix
// platforms other than Linux, where unix.FdSet's word width isn't the
// []int64 the Linux select backend assumes (see select.go).
func newSelectDriver() (Driver, error) {
	return NewPollDriver()
}
