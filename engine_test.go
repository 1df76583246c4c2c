package checkmate

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Token.AccessSigningKey = bytes.Repeat([]byte{0xA1}, 32)
	cfg.Token.RefreshSigningKey = bytes.Repeat([]byte{0xB2}, 32)
	cfg.WebAuthn.RPID = "example.com"
	cfg.WebAuthn.RPDisplayName = "Example"
	cfg.WebAuthn.RPOrigins = []string{"https://example.com"}
	cfg.Password.BcryptCost = 10
	return cfg
}

// newTestEngine wires a full engine against miniredis and an in-memory
// identity provider. Mutators adjust the config before Build.
func newTestEngine(t *testing.T, mutators ...func(*Config)) (*Engine, *memoryIdentity, *captureSender, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := testConfig()
	for _, mutate := range mutators {
		mutate(&cfg)
	}

	provider := newMemoryIdentity()
	sender := &captureSender{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithIdentityProvider(provider).
		WithOTPSender(sender).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)

	return engine, provider, sender, mr
}

// captureSender records delivered codes instead of sending email.
type captureSender struct {
	mu    sync.Mutex
	codes []string
	fail  error
}

func (s *captureSender) SendOTP(ctx context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.codes = append(s.codes, code)
	return nil
}

func (s *captureSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) == 0 {
		t.Fatal("no code was delivered")
	}
	return s.codes[len(s.codes)-1]
}

type backupEntry struct {
	hash [32]byte
	used bool
}

// memoryIdentity is a mutex-guarded IdentityProvider test double. The atomic
// contracts (increment-and-return, conditional consume) hold under the lock.
type memoryIdentity struct {
	mu          sync.Mutex
	byID        map[string]IdentityRecord
	emails      map[string]string
	twoFactor   map[string]TwoFactorRecord
	backupCodes map[string][]backupEntry
	credentials map[string][]WebAuthnCredentialRecord
}

func newMemoryIdentity() *memoryIdentity {
	return &memoryIdentity{
		byID:        make(map[string]IdentityRecord),
		emails:      make(map[string]string),
		twoFactor:   make(map[string]TwoFactorRecord),
		backupCodes: make(map[string][]backupEntry),
		credentials: make(map[string][]WebAuthnCredentialRecord),
	}
}

func (p *memoryIdentity) seed(t *testing.T, userID, email, plainPassword, role string, active bool) {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(plainPassword), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt failed: %v", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.byID[userID] = IdentityRecord{
		UserID:       userID,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		Active:       active,
	}
	p.emails[email] = userID
}

func (p *memoryIdentity) setActive(userID string, active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec := p.byID[userID]
	rec.Active = active
	p.byID[userID] = rec
}

func (p *memoryIdentity) GetIdentityByEmail(ctx context.Context, email string) (IdentityRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	userID, ok := p.emails[email]
	if !ok {
		return IdentityRecord{}, ErrIdentityNotFound
	}
	return p.byID[userID], nil
}

func (p *memoryIdentity) GetIdentityByID(ctx context.Context, userID string) (IdentityRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.byID[userID]
	if !ok {
		return IdentityRecord{}, ErrIdentityNotFound
	}
	return rec, nil
}

func (p *memoryIdentity) RecordLoginFailure(ctx context.Context, userID string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.byID[userID]
	if !ok {
		return 0, ErrIdentityNotFound
	}
	rec.FailedLogins++
	p.byID[userID] = rec
	return rec.FailedLogins, nil
}

func (p *memoryIdentity) LockIdentity(ctx context.Context, userID string, until time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.byID[userID]
	if !ok {
		return ErrIdentityNotFound
	}
	rec.LockUntil = until
	p.byID[userID] = rec
	return nil
}

func (p *memoryIdentity) ClearLoginFailures(ctx context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.byID[userID]
	if !ok {
		return ErrIdentityNotFound
	}
	rec.FailedLogins = 0
	rec.LockUntil = time.Time{}
	p.byID[userID] = rec
	return nil
}

func (p *memoryIdentity) GetTwoFactor(ctx context.Context, userID string) (TwoFactorRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.twoFactor[userID], nil
}

func (p *memoryIdentity) SetTwoFactor(ctx context.Context, userID string, record TwoFactorRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.twoFactor[userID] = record
	return nil
}

func (p *memoryIdentity) ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := make([]backupEntry, 0, len(codes))
	for _, code := range codes {
		entries = append(entries, backupEntry{hash: code.Hash})
	}
	p.backupCodes[userID] = entries
	return nil
}

func (p *memoryIdentity) ConsumeBackupCode(ctx context.Context, userID string, codeHash [32]byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entries := p.backupCodes[userID]
	for i := range entries {
		if !entries[i].used && entries[i].hash == codeHash {
			entries[i].used = true
			return true, nil
		}
	}
	return false, nil
}

func (p *memoryIdentity) ListWebAuthnCredentials(ctx context.Context, userID string) ([]WebAuthnCredentialRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]WebAuthnCredentialRecord(nil), p.credentials[userID]...), nil
}

func (p *memoryIdentity) GetWebAuthnCredential(ctx context.Context, credentialID []byte) (WebAuthnCredentialRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, records := range p.credentials {
		for _, record := range records {
			if bytes.Equal(record.CredentialID, credentialID) {
				return record, nil
			}
		}
	}
	return WebAuthnCredentialRecord{}, ErrIdentityNotFound
}

func (p *memoryIdentity) CreateWebAuthnCredential(ctx context.Context, record WebAuthnCredentialRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.credentials[record.UserID] = append(p.credentials[record.UserID], record)
	return nil
}

func (p *memoryIdentity) UpdateWebAuthnUsage(ctx context.Context, credentialID []byte, signCount uint32, counterExempt bool, usedAt time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for userID, records := range p.credentials {
		for i, record := range records {
			if bytes.Equal(record.CredentialID, credentialID) {
				record.SignCount = signCount
				record.CounterExempt = counterExempt
				record.LastUsedAt = usedAt
				record.UsageCount++
				p.credentials[userID][i] = record
				return nil
			}
		}
	}
	return ErrIdentityNotFound
}

func (p *memoryIdentity) DeleteWebAuthnCredential(ctx context.Context, userID string, credentialID []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	records := p.credentials[userID]
	for i, record := range records {
		if bytes.Equal(record.CredentialID, credentialID) {
			p.credentials[userID] = append(records[:i:i], records[i+1:]...)
			return nil
		}
	}
	return ErrIdentityNotFound
}

var _ IdentityProvider = (*memoryIdentity)(nil)
