package socket

import (
	"net"
	"strconv"
)

// interfaceIndex resolves an IPv6 zone name (e.g. "eth0") to its
// kernel interface index. Numeric zone strings are parsed directly,
// matching the convention net.ParseIP/net.Dial already use.
func interfaceIndex(zone string) (uint32, error) {
	if n, err := strconv.ParseUint(zone, 10, 32); err == nil {
		return uint32(n), nil
	}
	iface, err := net.InterfaceByName(zone)
	if err != nil {
		return 0, err
	}
	return uint32(iface.Index), nil
}

// interfaceName resolves a kernel interface index back to its name,
// falling back to the decimal index if the interface cannot be looked
// up (e.g. it has since disappeared).
func interfaceName(index uint32) string {
	iface, err := net.InterfaceByIndex(int(index))
	if err != nil {
		return strconv.FormatUint(uint64(index), 10)
	}
	return iface.Name
}
