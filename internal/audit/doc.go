// Package audit implements the asynchronous audit pipeline: a buffered
// dispatcher goroutine draining into a pluggable sink.
//
// # Architecture boundaries
//
// This package owns event buffering and delivery only. Event taxonomy and
// emission sites live in the root package.
//
// # What this package must NOT do
//
//   - Block or fail a caller: emission is fire-and-forget by contract.
//   - Import the root package or any sibling package.
package audit
