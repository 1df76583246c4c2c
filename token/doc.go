// Package token implements the Token Issuer: short-lived HS256 access tokens
// and longer-lived refresh tokens signed with a distinct key, plus unverified
// expiry extraction for revocation bookkeeping.
//
// # Architecture boundaries
//
// Tokens are opaque outside this package. The root engine and the session
// registry handle token strings and hashes only; no other package may parse
// claims.
package token
