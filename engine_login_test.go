package checkmate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLoginIssuesTokenPair(t *testing.T) {
	engine, provider, _, _ := newTestEngine(t)
	provider.seed(t, "u1", "alice@example.com", "hunter2!", "user", true)
	ctx := context.Background()

	result, err := engine.Login(ctx, "alice@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if result.AccessToken == "" || result.RefreshToken == "" {
		t.Fatal("expected a full token pair")
	}
	if result.Requires2FA {
		t.Fatal("expected no second factor for this account")
	}
	if result.Identity.UserID != "u1" || result.Identity.Role != "user" {
		t.Fatalf("unexpected identity summary: %+v", result.Identity)
	}

	auth, err := engine.Validate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("Validate failed on fresh token: %v", err)
	}
	if auth.UserID != "u1" || auth.Email != "alice@example.com" {
		t.Fatalf("unexpected auth result: %+v", auth)
	}
}

func TestLoginUnknownEmail(t *testing.T) {
	engine, _, _, _ := newTestEngine(t)

	_, err := engine.Login(context.Background(), "ghost@example.com", "whatever")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWrongPasswordCountsDown(t *testing.T) {
	engine, provider, _, _ := newTestEngine(t)
	provider.seed(t, "u1", "alice@example.com", "hunter2!", "user", true)
	ctx := context.Background()

	_, err := engine.Login(ctx, "alice@example.com", "wrong")
	var credErr *CredentialsError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialsError, got %v", err)
	}
	if credErr.RemainingAttempts != 4 {
		t.Fatalf("expected 4 attempts remaining, got %d", credErr.RemainingAttempts)
	}
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatal("expected CredentialsError to match ErrInvalidCredentials")
	}
}

func TestLoginLockoutAfterThreshold(t *testing.T) {
	engine, provider, _, _ := newTestEngine(t)
	provider.seed(t, "u1", "alice@example.com", "hunter2!", "user", true)
	ctx := context.Background()

	var lastErr error
	for i := 0; i < 5; i++ {
		_, lastErr = engine.Login(ctx, "alice@example.com", "wrong")
	}

	var locked *LockedError
	if !errors.As(lastErr, &locked) {
		t.Fatalf("expected LockedError on fifth failure, got %v", lastErr)
	}
	if locked.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %v", locked.RetryAfter)
	}

	// The correct password is rejected while the lock holds.
	_, err := engine.Login(ctx, "alice@example.com", "hunter2!")
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked with correct password, got %v", err)
	}
}

func TestLoginSuccessResetsFailureCounter(t *testing.T) {
	engine, provider, _, _ := newTestEngine(t)
	provider.seed(t, "u1", "alice@example.com", "hunter2!", "user", true)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, _ = engine.Login(ctx, "alice@example.com", "wrong")
	}
	if _, err := engine.Login(ctx, "alice@example.com", "hunter2!"); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	// The counter restarted: the next failure has the full budget again.
	_, err := engine.Login(ctx, "alice@example.com", "wrong")
	var credErr *CredentialsError
	if !errors.As(err, &credErr) {
		t.Fatalf("expected CredentialsError, got %v", err)
	}
	if credErr.RemainingAttempts != 4 {
		t.Fatalf("expected counter reset, got %d remaining", credErr.RemainingAttempts)
	}
}

func TestLoginExpiredLockIsLifted(t *testing.T) {
	engine, provider, _, _ := newTestEngine(t, func(cfg *Config) {
		cfg.Lockout.Duration = time.Minute
	})
	provider.seed(t, "u1", "alice@example.com", "hunter2!", "user", true)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = engine.Login(ctx, "alice@example.com", "wrong")
	}

	// Rewind the lock as if the window had elapsed.
	if err := provider.LockIdentity(ctx, "u1", time.Now().Add(-time.Second)); err != nil {
		t.Fatalf("LockIdentity failed: %v", err)
	}

	if _, err := engine.Login(ctx, "alice@example.com", "hunter2!"); err != nil {
		t.Fatalf("expected login after lock expiry, got %v", err)
	}
}

func TestLoginDisabledAccount(t *testing.T) {
	engine, provider, _, _ := newTestEngine(t)
	provider.seed(t, "u1", "alice@example.com", "hunter2!", "user", false)

	// Disabled accounts fail identically to unknown ones.
	_, err := engine.Login(context.Background(), "alice@example.com", "hunter2!")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestLoginWithTwoFactorDefersToSecondFactor(t *testing.T) {
	engine, provider, sender, _ := newTestEngine(t)
	provider.seed(t, "u1", "alice@example.com", "hunter2!", "user", true)
	ctx := context.Background()

	if _, err := engine.EnableTwoFactor(ctx, "u1"); err != nil {
		t.Fatalf("EnableTwoFactor failed: %v", err)
	}

	result, err := engine.Login(ctx, "alice@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.Requires2FA {
		t.Fatal("expected the two-factor handoff")
	}
	if result.AccessToken != "" || result.RefreshToken != "" {
		t.Fatal("expected no tokens before the second factor")
	}
	if !result.OTPDelivered {
		t.Fatal("expected the code delivered via the sender")
	}
	if code := sender.lastCode(t); len(code) != 6 {
		t.Fatalf("expected a 6-digit code, got %q", code)
	}

	// No session was opened by the first factor.
	sessions, err := engine.ListSessions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Fatalf("expected no sessions yet, got %d", len(sessions))
	}
}

func TestLoginSenderFailureIsNotFatal(t *testing.T) {
	engine, provider, sender, _ := newTestEngine(t)
	provider.seed(t, "u1", "alice@example.com", "hunter2!", "user", true)
	ctx := context.Background()

	if _, err := engine.EnableTwoFactor(ctx, "u1"); err != nil {
		t.Fatalf("EnableTwoFactor failed: %v", err)
	}
	sender.fail = errors.New("smtp down")

	result, err := engine.Login(ctx, "alice@example.com", "hunter2!")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !result.Requires2FA || result.OTPDelivered {
		t.Fatalf("expected handoff with OTPDelivered=false, got %+v", result)
	}
}
