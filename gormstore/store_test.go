package gormstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	checkmate "github.com/Mr-ivo/CheckMate-backend"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "identities", identityModel{}.TableName())
	assert.Equal(t, "two_factor_settings", twoFactorModel{}.TableName())
	assert.Equal(t, "backup_codes", backupCodeModel{}.TableName())
	assert.Equal(t, "webauthn_credentials", webAuthnCredentialModel{}.TableName())
}

func TestToIdentityRecord(t *testing.T) {
	lockUntil := time.Now().Add(30 * time.Minute)
	model := identityModel{
		ID:           "u1",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$hash",
		Role:         "admin",
		Active:       true,
		FailedLogins: 3,
		LockUntil:    &lockUntil,
	}

	record := toIdentityRecord(model)

	require.Equal(t, "u1", record.UserID)
	require.Equal(t, "alice@example.com", record.Email)
	require.Equal(t, "$2a$10$hash", record.PasswordHash)
	require.Equal(t, "admin", record.Role)
	require.True(t, record.Active)
	require.Equal(t, 3, record.FailedLogins)
	require.Equal(t, lockUntil, record.LockUntil)
}

func TestToIdentityRecordWithoutLock(t *testing.T) {
	record := toIdentityRecord(identityModel{ID: "u1", Email: "a@b.c"})

	assert.True(t, record.LockUntil.IsZero(), "nil lock_until must map to the zero time")
}

func TestToCredentialRecord(t *testing.T) {
	lastUsed := time.Now().Add(-time.Hour)
	created := time.Now().Add(-24 * time.Hour)
	model := webAuthnCredentialModel{
		UserID:        "u1",
		CredentialID:  []byte{0x01, 0x02},
		PublicKey:     []byte{0x03, 0x04},
		SignCount:     42,
		CounterExempt: true,
		Transports:    "usb,nfc",
		Label:         "yubikey",
		UsageCount:    7,
		LastUsedAt:    &lastUsed,
		CreatedAt:     created,
	}

	record := toCredentialRecord(model)

	require.Equal(t, checkmate.WebAuthnCredentialRecord{
		UserID:        "u1",
		CredentialID:  []byte{0x01, 0x02},
		PublicKey:     []byte{0x03, 0x04},
		SignCount:     42,
		CounterExempt: true,
		Transports:    []string{"usb", "nfc"},
		Label:         "yubikey",
		UsageCount:    7,
		LastUsedAt:    lastUsed,
		CreatedAt:     created,
	}, record)
}

func TestToCredentialRecordEmptyTransports(t *testing.T) {
	record := toCredentialRecord(webAuthnCredentialModel{
		UserID:       "u1",
		CredentialID: []byte{0x01},
	})

	// An empty column must not round-trip into [""]; the engine treats nil
	// and empty the same but descriptors built from [""] would be garbage.
	assert.Nil(t, record.Transports)
	assert.True(t, record.LastUsedAt.IsZero())
}

func TestCredentialTransportsRoundTrip(t *testing.T) {
	record := checkmate.WebAuthnCredentialRecord{
		UserID:       "u1",
		CredentialID: []byte{0x01},
		Transports:   []string{"internal", "hybrid"},
	}

	model := webAuthnCredentialModel{
		UserID:        record.UserID,
		CredentialID:  record.CredentialID,
		PublicKey:     record.PublicKey,
		SignCount:     record.SignCount,
		CounterExempt: record.CounterExempt,
		Transports:    "internal,hybrid",
		Label:         record.Label,
	}

	assert.Equal(t, record.Transports, toCredentialRecord(model).Transports)
}
