package gormstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	checkmate "github.com/Mr-ivo/CheckMate-backend"
)

// Store implements checkmate.IdentityProvider on a GORM database. The two
// operations the engine needs to be race-free, RecordLoginFailure and
// ConsumeBackupCode, are single SQL statements: an increment with RETURNING
// and a conditional update checked by rows affected.
type Store struct {
	db *gorm.DB
}

var _ checkmate.IdentityProvider = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates the four backing tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(
		&identityModel{},
		&twoFactorModel{},
		&backupCodeModel{},
		&webAuthnCredentialModel{},
	)
}

// CreateIdentity inserts a new account row. Not part of the engine
// interface; applications call it during signup.
func (s *Store) CreateIdentity(ctx context.Context, record checkmate.IdentityRecord) error {
	model := identityModel{
		ID:           record.UserID,
		Email:        record.Email,
		PasswordHash: record.PasswordHash,
		Role:         record.Role,
		Active:       record.Active,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *Store) GetIdentityByEmail(ctx context.Context, email string) (checkmate.IdentityRecord, error) {
	var model identityModel
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return checkmate.IdentityRecord{}, checkmate.ErrIdentityNotFound
		}
		return checkmate.IdentityRecord{}, err
	}
	return toIdentityRecord(model), nil
}

func (s *Store) GetIdentityByID(ctx context.Context, userID string) (checkmate.IdentityRecord, error) {
	var model identityModel
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return checkmate.IdentityRecord{}, checkmate.ErrIdentityNotFound
		}
		return checkmate.IdentityRecord{}, err
	}
	return toIdentityRecord(model), nil
}

// RecordLoginFailure increments the failure counter in one statement and
// returns the new value via RETURNING, so concurrent failures each count.
func (s *Store) RecordLoginFailure(ctx context.Context, userID string) (int, error) {
	var model identityModel
	result := s.db.WithContext(ctx).
		Model(&model).
		Clauses(clause.Returning{Columns: []clause.Column{{Name: "failed_logins"}}}).
		Where("id = ?", userID).
		UpdateColumn("failed_logins", gorm.Expr("failed_logins + 1"))
	if result.Error != nil {
		return 0, result.Error
	}
	if result.RowsAffected == 0 {
		return 0, checkmate.ErrIdentityNotFound
	}
	return model.FailedLogins, nil
}

func (s *Store) LockIdentity(ctx context.Context, userID string, until time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&identityModel{}).
		Where("id = ?", userID).
		UpdateColumn("lock_until", until)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return checkmate.ErrIdentityNotFound
	}
	return nil
}

func (s *Store) ClearLoginFailures(ctx context.Context, userID string) error {
	return s.db.WithContext(ctx).
		Model(&identityModel{}).
		Where("id = ?", userID).
		UpdateColumns(map[string]interface{}{
			"failed_logins": 0,
			"lock_until":    nil,
		}).Error
}

func (s *Store) GetTwoFactor(ctx context.Context, userID string) (checkmate.TwoFactorRecord, error) {
	var model twoFactorModel
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No row means the user never configured a second factor.
			return checkmate.TwoFactorRecord{}, nil
		}
		return checkmate.TwoFactorRecord{}, err
	}
	return checkmate.TwoFactorRecord{Enabled: model.Enabled, Method: model.Method}, nil
}

func (s *Store) SetTwoFactor(ctx context.Context, userID string, record checkmate.TwoFactorRecord) error {
	model := twoFactorModel{
		UserID:  userID,
		Enabled: record.Enabled,
		Method:  record.Method,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"enabled", "method", "updated_at"}),
		}).
		Create(&model).Error
}

func (s *Store) ReplaceBackupCodes(ctx context.Context, userID string, codes []checkmate.BackupCodeRecord) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&backupCodeModel{}).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		models := make([]backupCodeModel, 0, len(codes))
		for _, code := range codes {
			hash := make([]byte, len(code.Hash))
			copy(hash, code.Hash[:])
			models = append(models, backupCodeModel{
				UserID: userID,
				Hash:   hash,
			})
		}
		return tx.Create(&models).Error
	})
}

// ConsumeBackupCode marks the matching unused code as used in a single
// conditional UPDATE. Two concurrent redemptions of the same code race on
// rows affected; exactly one sees 1.
func (s *Store) ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&backupCodeModel{}).
		Where("user_id = ? AND hash = ? AND used = ?", userID, codeHash[:], false).
		UpdateColumns(map[string]interface{}{
			"used":    true,
			"used_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) ListWebAuthnCredentials(ctx context.Context, userID string) ([]checkmate.WebAuthnCredentialRecord, error) {
	var models []webAuthnCredentialModel
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]checkmate.WebAuthnCredentialRecord, 0, len(models))
	for _, model := range models {
		records = append(records, toCredentialRecord(model))
	}
	return records, nil
}

func (s *Store) GetWebAuthnCredential(ctx context.Context, credentialID []byte) (checkmate.WebAuthnCredentialRecord, error) {
	var model webAuthnCredentialModel
	err := s.db.WithContext(ctx).Where("credential_id = ?", credentialID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return checkmate.WebAuthnCredentialRecord{}, checkmate.ErrIdentityNotFound
		}
		return checkmate.WebAuthnCredentialRecord{}, err
	}
	return toCredentialRecord(model), nil
}

func (s *Store) CreateWebAuthnCredential(ctx context.Context, record checkmate.WebAuthnCredentialRecord) error {
	model := webAuthnCredentialModel{
		UserID:        record.UserID,
		CredentialID:  record.CredentialID,
		PublicKey:     record.PublicKey,
		SignCount:     record.SignCount,
		CounterExempt: record.CounterExempt,
		Transports:    strings.Join(record.Transports, ","),
		Label:         record.Label,
		CreatedAt:     record.CreatedAt,
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *Store) UpdateWebAuthnUsage(ctx context.Context, credentialID []byte, signCount uint32, counterExempt bool, usedAt time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&webAuthnCredentialModel{}).
		Where("credential_id = ?", credentialID).
		UpdateColumns(map[string]interface{}{
			"sign_count":     signCount,
			"counter_exempt": counterExempt,
			"usage_count":    gorm.Expr("usage_count + 1"),
			"last_used_at":   usedAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return checkmate.ErrIdentityNotFound
	}
	return nil
}

func (s *Store) DeleteWebAuthnCredential(ctx context.Context, userID string, credentialID []byte) error {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND credential_id = ?", userID, credentialID).
		Delete(&webAuthnCredentialModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return checkmate.ErrIdentityNotFound
	}
	return nil
}

func toIdentityRecord(model identityModel) checkmate.IdentityRecord {
	record := checkmate.IdentityRecord{
		UserID:       model.ID,
		Email:        model.Email,
		PasswordHash: model.PasswordHash,
		Role:         model.Role,
		Active:       model.Active,
		FailedLogins: model.FailedLogins,
	}
	if model.LockUntil != nil {
		record.LockUntil = *model.LockUntil
	}
	return record
}

func toCredentialRecord(model webAuthnCredentialModel) checkmate.WebAuthnCredentialRecord {
	record := checkmate.WebAuthnCredentialRecord{
		UserID:        model.UserID,
		CredentialID:  model.CredentialID,
		PublicKey:     model.PublicKey,
		SignCount:     model.SignCount,
		CounterExempt: model.CounterExempt,
		Label:         model.Label,
		UsageCount:    model.UsageCount,
		CreatedAt:     model.CreatedAt,
	}
	if model.Transports != "" {
		record.Transports = strings.Split(model.Transports, ",")
	}
	if model.LastUsedAt != nil {
		record.LastUsedAt = *model.LastUsedAt
	}
	return record
}
