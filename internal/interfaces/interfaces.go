// Package interfaces declares the contracts the core runtime depends on
// for its external collaborators without implementing them itself:
// encryption, name resolution, metrics, and rate limiting all live
// behind these interfaces so internal/session, internal/reactor and
// internal/proactor never import a concrete TLS, DNS or metrics stack.
package interfaces

import "context"

// Logger is the minimal logging surface internal packages take, so they
// can depend on this interface instead of internal/logging directly.
type Logger interface {
	Printf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// Observer receives queue/socket lifecycle measurements. Implementations
// must be safe for concurrent use: methods are called from driver threads.
type Observer interface {
	ObserveSend(bytes uint64, latencyNs uint64, success bool)
	ObserveReceive(bytes uint64, latencyNs uint64, success bool)
	ObserveWatermark(kind string, armed bool)
	ObserveTimerDrift(driftNs int64)
	ObserveQueueDepth(bytes uint64)
}

// Encryptor is the TLS/encryption collaborator named in spec.md §1: the
// core only opens and closes a session and pumps cleartext/ciphertext
// through it; certificate parsing, key storage and cipher negotiation
// are out of scope for this module.
type Encryptor interface {
	// Upgrade begins a handshake, invoking cb with the negotiated session (or an error) once the
	// handshake completes or fails.
	Upgrade(ctx context.Context, cb func(Session, error))
	// Downgrade tears down an encrypted session, returning the
	// underlying cleartext stream to the caller.
	Downgrade(s Session, cb func(error))
}

// Session is an established encrypted session: cleartext in, ciphertext
// out (or vice versa), depending on which side of Upgrade produced it.
type Session interface {
	Read(p []byte) (n int, err error)
	Write(p []byte) (n int, err error)
	Close() error
}

// Resolver is the DNS collaborator named in spec.md §1: the core
// invokes Resolve and is handed back resolved endpoints via callback;
// it never parses zone files or speaks DNS wire format itself.
type Resolver interface {
	Resolve(ctx context.Context, host string, cb func(addrs []string, err error))
}

// RateLimiter is the leaky-bucket collaborator named in spec.md §1 as
// "used by but not part of the core." No implementation ships in this
// module; a send queue may optionally consult one before draining.
type RateLimiter interface {
	// Permit reports whether n bytes may be sent now.
	Permit(n int) bool
}
