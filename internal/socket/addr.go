package socket

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/vireo-io/ntf/internal/endpoint"
)

// toSockaddr converts an Endpoint into the unix.Sockaddr the kernel
// expects for Bind/Connect.
func toSockaddr(e endpoint.Endpoint) (unix.Sockaddr, error) {
	switch e.Kind() {
	case endpoint.KindIPv4:
		b := e.IPv4Bytes()
		return &unix.SockaddrInet4{Port: int(e.Port()), Addr: b}, nil
	case endpoint.KindIPv6:
		b := e.IPv6Bytes()
		var zoneID uint32
		if e.Zone() != "" {
			if iface, err := interfaceIndex(e.Zone()); err == nil {
				zoneID = iface
			}
		}
		return &unix.SockaddrInet6{Port: int(e.Port()), ZoneId: zoneID, Addr: b}, nil
	case endpoint.KindLocal:
		if e.Unnamed() {
			return &unix.SockaddrUnix{Name: ""}, nil
		}
		name := e.Path()
		if e.Abstract() {
			name = "\x00" + name
		}
		return &unix.SockaddrUnix{Name: name}, nil
	default:
		return nil, fmt.Errorf("socket: endpoint has no transport kind")
	}
}

// fromSockaddr converts a kernel sockaddr back into an Endpoint.
func fromSockaddr(sa unix.Sockaddr) (endpoint.Endpoint, error) {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return endpoint.NewIPv4Endpoint(a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3], uint16(a.Port)), nil
	case *unix.SockaddrInet6:
		zone := ""
		if a.ZoneId != 0 {
			zone = interfaceName(a.ZoneId)
		}
		return endpoint.NewIPv6Endpoint(a.Addr, zone, uint16(a.Port)), nil
	case *unix.SockaddrUnix:
		if a.Name == "" {
			return endpoint.NewUnnamedLocalEndpoint(), nil
		}
		if a.Name[0] == 0 {
			return endpoint.NewAbstractLocalEndpoint(a.Name[1:]), nil
		}
		return endpoint.NewLocalEndpoint(a.Name), nil
	default:
		return endpoint.Endpoint{}, fmt.Errorf("socket: unsupported sockaddr type %T", sa)
	}
}

// Bind binds the handle to the local endpoint.
func (h *Handle) Bind(local endpoint.Endpoint) error {
	sa, err := toSockaddr(local)
	if err != nil {
		return err
	}
	return unix.Bind(h.FD(), sa)
}

// Listen marks the handle as a passive socket accepting up to backlog
// pending connections.
func (h *Handle) Listen(backlog int) error {
	return unix.Listen(h.FD(), backlog)
}

// Connect initiates a connection to the remote endpoint. On a
// non-blocking socket this returns EINPROGRESS immediately; callers
// must wait for writability and then consult LastError.
func (h *Handle) Connect(remote endpoint.Endpoint) error {
	sa, err := toSockaddr(remote)
	if err != nil {
		return err
	}
	return unix.Connect(h.FD(), sa)
}

// Accept accepts a pending connection, returning a Handle for the new
// socket and the remote endpoint it was accepted from.
func (h *Handle) Accept() (*Handle, endpoint.Endpoint, error) {
	fd, sa, err := unix.Accept4(h.FD(), unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, endpoint.Endpoint{}, err
	}
	remote, err := fromSockaddr(sa)
	if err != nil {
		unix.Close(fd)
		return nil, endpoint.Endpoint{}, err
	}
	return Acquire(fd, h.transport), remote, nil
}

// LocalEndpoint returns the endpoint this handle is bound to.
func (h *Handle) LocalEndpoint() (endpoint.Endpoint, error) {
	sa, err := unix.Getsockname(h.FD())
	if err != nil {
		return endpoint.Endpoint{}, err
	}
	return fromSockaddr(sa)
}

// RemoteEndpoint returns the endpoint this handle is connected to.
func (h *Handle) RemoteEndpoint() (endpoint.Endpoint, error) {
	sa, err := unix.Getpeername(h.FD())
	if err != nil {
		return endpoint.Endpoint{}, err
	}
	return fromSockaddr(sa)
}
