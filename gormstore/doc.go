// Package gormstore is the reference IdentityProvider implementation on a
// GORM database (PostgreSQL in production, any GORM dialect in principle).
//
// The engine's race-sensitive provider operations are pushed down to single
// SQL statements here: RecordLoginFailure is an atomic increment with
// RETURNING, and ConsumeBackupCode is one conditional UPDATE whose rows
// affected decide the winner.
package gormstore
