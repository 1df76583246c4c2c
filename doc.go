// Package checkmate is the authentication and session-security core of the
// CheckMate backend. It verifies identity via password, WebAuthn ceremony, or
// email one-time code, then issues and governs JWT access tokens, refresh
// tokens, and Redis-backed server-side sessions.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build]. All state lives in the injected stores; the Engine itself
// holds no mutable state and no in-process locks.
//
// # Architecture boundaries
//
// checkmate is the public surface. It exposes [Engine], [Builder], [Config],
// the [IdentityProvider] integration interface, and value types (LoginResult,
// SessionInfo, AuditEvent). Redis session encoding, challenge storage, and
// audit dispatch live under internal/ and are never exported.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its
//     public API.
//   - Parse token claims anywhere except the token subpackage.
//   - Reveal account existence through error shape differences.
package checkmate
