package internal

import (
	"strings"
	"testing"
)

func TestNewOTPDigitsOnly(t *testing.T) {
	for _, digits := range []int{6, 8, 10} {
		code, err := NewOTP(digits)
		if err != nil {
			t.Fatalf("NewOTP(%d) failed: %v", digits, err)
		}
		if len(code) != digits {
			t.Fatalf("expected %d digits, got %q", digits, code)
		}
		for _, r := range code {
			if r < '0' || r > '9' {
				t.Fatalf("expected numeric code, got %q", code)
			}
		}
	}
}

func TestNewOTPRejectsBadLength(t *testing.T) {
	for _, digits := range []int{0, 5, 11} {
		if _, err := NewOTP(digits); err == nil {
			t.Fatalf("expected error for %d digits", digits)
		}
	}
}

func TestNewBackupCodeUsesSafeAlphabet(t *testing.T) {
	code, err := NewBackupCode(10)
	if err != nil {
		t.Fatalf("NewBackupCode failed: %v", err)
	}
	if len(code) != 10 {
		t.Fatalf("expected 10 characters, got %q", code)
	}
	for _, r := range code {
		if !strings.ContainsRune(backupCodeAlphabet, r) {
			t.Fatalf("character %q outside alphabet in %q", r, code)
		}
	}
}

func TestCanonicalizeCode(t *testing.T) {
	cases := map[string]string{
		"abcde-fghjk":   "ABCDEFGHJK",
		" ABCDE FGHJK ": "ABCDEFGHJK",
		"123456":        "123456",
		"ab-cd-ef":      "ABCDEF",
	}
	for in, want := range cases {
		if got := CanonicalizeCode(in); got != want {
			t.Fatalf("CanonicalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatBackupCodeGroups(t *testing.T) {
	if got := FormatBackupCode("ABCDEFGHJK"); got != "ABCDE-FGHJK" {
		t.Fatalf("expected dashed groups, got %q", got)
	}
	if got := FormatBackupCode("ABC"); got != "ABC" {
		t.Fatalf("expected short code unchanged, got %q", got)
	}
}

func TestFormatRoundTripsThroughCanonicalize(t *testing.T) {
	raw, err := NewBackupCode(10)
	if err != nil {
		t.Fatalf("NewBackupCode failed: %v", err)
	}
	formatted := FormatBackupCode(raw)
	if CanonicalizeCode(formatted) != raw {
		t.Fatalf("canonicalize(%q) != %q", formatted, raw)
	}
}

func TestHashCodeIsUserScoped(t *testing.T) {
	if HashCode("u1", "ABCDEFGHJK") == HashCode("u2", "ABCDEFGHJK") {
		t.Fatal("expected distinct hashes for distinct users")
	}
	if HashCode("u1", "ABCDEFGHJK") != HashCode("u1", "ABCDEFGHJK") {
		t.Fatal("expected deterministic hash")
	}
}

func TestHashTokenDiffers(t *testing.T) {
	if HashToken("a") == HashToken("b") {
		t.Fatal("expected distinct token hashes")
	}
}
