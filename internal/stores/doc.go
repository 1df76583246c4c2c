// Package stores implements the volatile Redis state behind two-factor
// login: pending one-time codes with transactional attempt counting, and
// single-use WebAuthn ceremony state.
package stores
