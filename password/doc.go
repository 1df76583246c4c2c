// Package password provides bcrypt hashing for the Credential Verifier.
package password
