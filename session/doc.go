// Package session implements the Redis-backed session registry and token
// revocation list.
//
// Every successful authentication opens exactly one session record. The
// record holds SHA-256 hashes of the tokens bound to it, never the tokens
// themselves, and is keyed by a random session ID that travels inside the
// JWTs as the sid claim. A per-user index set supports listing and the
// concurrent-session cap.
//
// Expiry is passive: records carry a Redis TTL through the refresh window
// and disappear on their own. Terminated sessions are kept, inactive, until
// that TTL so listings can show how each session ended.
package session
