// Package internal holds shared non-exported machinery: random code
// generation and hashing helpers used by the engine and its stores.
package internal
