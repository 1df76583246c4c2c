package gormstore

import (
	"time"
)

type identityModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	Email        string `gorm:"uniqueIndex;size:255;not null"`
	PasswordHash string `gorm:"size:255;not null"`
	Role         string `gorm:"size:64;not null;default:user"`
	Active       bool   `gorm:"not null;default:true"`
	FailedLogins int    `gorm:"not null;default:0"`
	LockUntil    *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (identityModel) TableName() string { return "identities" }

type twoFactorModel struct {
	UserID    string `gorm:"primaryKey;size:64"`
	Enabled   bool   `gorm:"not null;default:false"`
	Method    string `gorm:"size:32"`
	UpdatedAt time.Time
}

func (twoFactorModel) TableName() string { return "two_factor_settings" }

type backupCodeModel struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    string `gorm:"index;size:64;not null"`
	Hash      []byte `gorm:"size:32;not null"`
	Used      bool   `gorm:"not null;default:false"`
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (backupCodeModel) TableName() string { return "backup_codes" }

type webAuthnCredentialModel struct {
	ID            uint   `gorm:"primaryKey"`
	UserID        string `gorm:"index;size:64;not null"`
	CredentialID  []byte `gorm:"uniqueIndex;not null"`
	PublicKey     []byte `gorm:"not null"`
	SignCount     uint32 `gorm:"not null;default:0"`
	CounterExempt bool   `gorm:"not null;default:false"`
	Transports    string `gorm:"size:128"`
	Label         string `gorm:"size:128"`
	UsageCount    int64  `gorm:"not null;default:0"`
	LastUsedAt    *time.Time
	CreatedAt     time.Time
}

func (webAuthnCredentialModel) TableName() string { return "webauthn_credentials" }
