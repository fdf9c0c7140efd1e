// Package endpoint implements the tagged-union transport address used
// throughout the runtime: an IPv4 address+port, an IPv6 address+port
// with an optional scope (zone) id, or a local (Unix domain) path.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalid is returned by Parse when text cannot be interpreted as
// any endpoint variant.
var ErrInvalid = errors.New("endpoint: invalid text")

// Kind discriminates the Endpoint variant.
type Kind int

const (
	KindUndefined Kind = iota
	KindIPv4
	KindIPv6
	KindLocal
)

// Endpoint is a transport address: exactly one of an IPv4 pair, an
// IPv6 pair (with optional scope), or a local path is meaningful,
// selected by Kind.
type Endpoint struct {
	kind Kind

	ip   [4]byte // valid when kind == KindIPv4
	ip6  [16]byte
	zone string // IPv6 scope id, e.g. "eth0" or numeric "2"
	port uint16

	path       string
	abstract   bool // Linux abstract-namespace socket (leading NUL)
	unnamed    bool // explicitly unnamed, distinct from path == ""
}

// NewIPv4Endpoint builds an IPv4 endpoint from four octets and a port.
func NewIPv4Endpoint(a, b, c, d byte, port uint16) Endpoint {
	return Endpoint{kind: KindIPv4, ip: [4]byte{a, b, c, d}, port: port}
}

// NewIPv6Endpoint builds an IPv6 endpoint from 16 address bytes, an
// optional scope id, and a port.
func NewIPv6Endpoint(addr [16]byte, zone string, port uint16) Endpoint {
	return Endpoint{kind: KindIPv6, ip6: addr, zone: zone, port: port}
}

// NewLocalEndpoint builds a Unix domain socket endpoint bound to path.
func NewLocalEndpoint(path string) Endpoint {
	return Endpoint{kind: KindLocal, path: path}
}

// NewAbstractLocalEndpoint builds a Linux abstract-namespace endpoint,
// which has no presence on the filesystem.
func NewAbstractLocalEndpoint(name string) Endpoint {
	return Endpoint{kind: KindLocal, path: name, abstract: true}
}

// NewUnnamedLocalEndpoint builds the distinguished "unnamed" local
// endpoint, as reported by getsockname on a socket that has not been
// bound to a path. This is distinct from a local endpoint whose path
// is the empty string.
func NewUnnamedLocalEndpoint() Endpoint {
	return Endpoint{kind: KindLocal, unnamed: true}
}

func (e Endpoint) Kind() Kind { return e.kind }
func (e Endpoint) IsIP() bool { return e.kind == KindIPv4 || e.kind == KindIPv6 }

// IPv4Bytes returns the four address octets. Valid only when
// Kind() == KindIPv4.
func (e Endpoint) IPv4Bytes() [4]byte { return e.ip }

// IPv6Bytes returns the sixteen address bytes. Valid only when
// Kind() == KindIPv6.
func (e Endpoint) IPv6Bytes() [16]byte { return e.ip6 }

// Zone returns the IPv6 scope id, or "" if none was set.
func (e Endpoint) Zone() string { return e.zone }

// Port returns the transport port. Valid only for IP endpoints.
func (e Endpoint) Port() uint16 { return e.port }

// Path returns the local socket path. Valid only when Kind() == KindLocal.
func (e Endpoint) Path() string { return e.path }

// Abstract reports whether this is a Linux abstract-namespace socket.
func (e Endpoint) Abstract() bool { return e.abstract }

// Unnamed reports whether this is the distinguished unnamed local
// endpoint, as opposed to one explicitly bound to the empty path.
func (e Endpoint) Unnamed() bool { return e.kind == KindLocal && e.unnamed }

// WithPort returns a copy of e with its port replaced. No-op for local
// endpoints.
func (e Endpoint) WithPort(port uint16) Endpoint {
	e.port = port
	return e
}

// String formats the endpoint in its canonical textual form:
// dotted-quad[:port] for IPv4; for IPv6 the RFC 5952 collapsed form
// with "%zone" appended when a scope id is set, wrapped in brackets and
// followed by ":port" only when the port is non-zero; or the bare path
// for local endpoints.
func (e Endpoint) String() string {
	switch e.kind {
	case KindIPv4:
		if e.port == 0 {
			return fmt.Sprintf("%d.%d.%d.%d", e.ip[0], e.ip[1], e.ip[2], e.ip[3])
		}
		return fmt.Sprintf("%d.%d.%d.%d:%d", e.ip[0], e.ip[1], e.ip[2], e.ip[3], e.port)
	case KindIPv6:
		addr := net.IP(e.ip6[:]).String()
		if e.zone != "" {
			addr = addr + "%" + e.zone
		}
		if e.port == 0 {
			return addr
		}
		return "[" + addr + "]:" + strconv.Itoa(int(e.port))
	case KindLocal:
		if e.unnamed {
			return ""
		}
		if e.abstract {
			return "@" + e.path
		}
		return e.path
	default:
		return "<undefined>"
	}
}

// Parse decodes a textual endpoint in any of the forms produced by
// String: "a.b.c.d[:port]", "[ipv6[%zone]][:port]", a bare local path,
// or "@name" for an abstract-namespace local endpoint.
func Parse(text string) (Endpoint, error) {
	if text == "" {
		return Endpoint{}, fmt.Errorf("%w: empty endpoint text", ErrInvalid)
	}

	if strings.HasPrefix(text, "@") {
		return NewAbstractLocalEndpoint(text[1:]), nil
	}

	if strings.HasPrefix(text, "[") {
		return parseBracketedIPv6(text)
	}

	if strings.Contains(text, "/") || (!strings.Contains(text, ":") && looksLikePath(text)) {
		return NewLocalEndpoint(text), nil
	}

	// Unbracketed text: try host:port with IPv4, then bare IPv4, then
	// bare (possibly zoned) IPv6, then fall back to a local path.
	if host, portStr, ok := splitLastColon(text); ok {
		if ip := net.ParseIP(host); ip != nil {
			if ip4 := ip.To4(); ip4 != nil {
				return parseIPv4WithPort(host, portStr)
			}
		}
	}

	addr, zone := text, ""
	if i := strings.IndexByte(text, '%'); i >= 0 {
		addr, zone = text[:i], text[i+1:]
	}
	if ip := net.ParseIP(addr); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			if zone == "" {
				return NewIPv4Endpoint(ip4[0], ip4[1], ip4[2], ip4[3], 0), nil
			}
		} else {
			var raw [16]byte
			copy(raw[:], ip.To16())
			return NewIPv6Endpoint(raw, zone, 0), nil
		}
	}

	if host, portStr, ok := splitLastColon(text); ok {
		if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
			var raw [16]byte
			copy(raw[:], ip.To16())
			port, err := parsePort(portStr)
			if err != nil {
				return Endpoint{}, err
			}
			return NewIPv6Endpoint(raw, "", port), nil
		}
	}

	return NewLocalEndpoint(text), nil
}

func looksLikePath(text string) bool {
	return strings.ContainsAny(text, "\\") || text == "." || text == ".." ||
		strings.HasPrefix(text, ".") || strings.HasPrefix(text, "~")
}

func parseIPv4WithPort(host, portStr string) (Endpoint, error) {
	ip := net.ParseIP(host).To4()
	port, err := parsePort(portStr)
	if err != nil {
		return Endpoint{}, err
	}
	return NewIPv4Endpoint(ip[0], ip[1], ip[2], ip[3], port), nil
}

func splitLastColon(text string) (host, port string, ok bool) {
	i := strings.LastIndex(text, ":")
	if i < 0 || i == len(text)-1 {
		return "", "", false
	}
	host = text[:i]
	port = text[i+1:]
	for _, r := range port {
		if r < '0' || r > '9' {
			return "", "", false
		}
	}
	return host, port, true
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid port: %s", ErrInvalid, s)
	}
	return uint16(n), nil
}

// parseBracketedIPv6 handles "[addr[%zone]]" and "[addr[%zone]]:port".
func parseBracketedIPv6(text string) (Endpoint, error) {
	close := strings.Index(text, "]")
	if close < 0 {
		return Endpoint{}, fmt.Errorf("%w: missing closing bracket: %s", ErrInvalid, text)
	}
	inner := text[1:close]
	rest := text[close+1:]

	var zone string
	if idx := strings.Index(inner, "%"); idx >= 0 {
		zone = inner[idx+1:]
		inner = inner[:idx]
	}

	ip := net.ParseIP(inner)
	if ip == nil || ip.To4() != nil {
		return Endpoint{}, fmt.Errorf("%w: invalid IPv6 address: %s", ErrInvalid, inner)
	}

	var port uint16
	if strings.HasPrefix(rest, ":") {
		p, err := parsePort(rest[1:])
		if err != nil {
			return Endpoint{}, err
		}
		port = p
	}

	var raw [16]byte
	copy(raw[:], ip.To16())
	return NewIPv6Endpoint(raw, zone, port), nil
}
