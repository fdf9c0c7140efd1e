package ntf

import "github.com/vireo-io/ntf/internal/interfaces"

// Logger is the logging surface a Scheduler and its Sockets report
// through. It is a type alias for internal/interfaces.Logger so
// internal packages and this package's public API share one contract
// without internal/interfaces leaking into external module paths.
type Logger = interfaces.Logger

// Observer receives queue/socket lifecycle measurements; see Metrics
// and MetricsObserver for the built-in implementation.
type Observer = interfaces.Observer

// Encryptor is the TLS/encryption collaborator the core opens and
// closes a session through without implementing itself.
type Encryptor = interfaces.Encryptor

// Resolver performs host/port name resolution invoked via callback.
type Resolver = interfaces.Resolver

// RateLimiter is a leaky-bucket interface the send path may consult
// before a drain; no implementation ships in this repository.
type RateLimiter = interfaces.RateLimiter
