package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"math/big"
	"strings"
)

// Backup codes use an unambiguous uppercase alphabet (no 0/O, 1/I/L).
const backupCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewOTP generates a numeric one-time code of the given length.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	return b.String(), nil
}

// NewBackupCode generates a single backup code of the given length.
func NewBackupCode(length int) (string, error) {
	if length < 8 || length > 32 {
		return "", errors.New("invalid backup code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}

	return b.String(), nil
}

// CanonicalizeCode normalizes user-entered codes: uppercase, separators and
// whitespace stripped. Backup code matching is case-insensitive by contract.
func CanonicalizeCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatBackupCode inserts a dash every 5 characters for display.
func FormatBackupCode(code string) string {
	const group = 5
	if len(code) <= group {
		return code
	}

	var b strings.Builder
	for i, r := range code {
		if i > 0 && i%group == 0 {
			b.WriteByte('-')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HashCode hashes a canonical code scoped to its owning user, so identical
// codes across users produce distinct hashes.
func HashCode(userID, canonicalCode string) [32]byte {
	return sha256.Sum256([]byte(userID + ":" + canonicalCode))
}

// HashToken hashes a token string for storage. Raw tokens never reach Redis.
func HashToken(token string) [32]byte {
	return sha256.Sum256([]byte(token))
}
