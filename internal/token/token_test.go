package token

import (
	"strings"
	"testing"
)

func TestGeneratePinCustomValid(t *testing.T) {
	pin, err := GeneratePin("482917", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pin != "482917" {
		t.Fatalf("GeneratePin returned %q, want the custom pin unchanged", pin)
	}
}

func TestGeneratePinCustomRejectsBadShape(t *testing.T) {
	cases := []string{"12345", "1234567", "12a456", "", " 12345"}
	for _, c := range cases {
		if c == "" {
			continue // empty string means "no custom pin requested", handled separately
		}
		if _, err := GeneratePin(c, nil); err != ErrInvalidCustomPin {
			t.Errorf("GeneratePin(%q) error = %v, want ErrInvalidCustomPin", c, err)
		}
	}
}

func TestGeneratePinCustomRejectsActivePin(t *testing.T) {
	active := func(pin string) bool { return pin == "482917" }
	if _, err := GeneratePin("482917", active); err != ErrPinTaken {
		t.Fatalf("GeneratePin on an active custom pin error = %v, want ErrPinTaken", err)
	}
}

func TestGeneratePinRandomIsSixDigits(t *testing.T) {
	pin, err := GeneratePin("", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pin) != 6 {
		t.Fatalf("GeneratePin returned %q, want 6 digits", pin)
	}
	if strings.ContainsAny(pin, "abcdefghijklmnopqrstuvwxyz") {
		t.Fatalf("GeneratePin returned non-numeric pin %q", pin)
	}
}

func TestGeneratePinResamplesOnCollision(t *testing.T) {
	seen := make(map[string]bool)
	active := func(pin string) bool {
		// Reject every pin until the third distinct draw to force a
		// couple of resamples, then accept.
		if seen[pin] {
			return false
		}
		seen[pin] = true
		return len(seen) < 3
	}

	pin, err := GeneratePin("", active)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seen) < 3 {
		t.Fatalf("expected at least 3 draws before accepting, got %d", len(seen))
	}
	if active(pin) {
		t.Fatalf("GeneratePin returned a pin still reported active: %q", pin)
	}
}

func TestGeneratePinExhaustionReturnsError(t *testing.T) {
	alwaysActive := func(string) bool { return true }
	if _, err := GeneratePin("", alwaysActive); err != ErrPinSpaceExhausted {
		t.Fatalf("error = %v, want ErrPinSpaceExhausted", err)
	}
}

func TestGenerateTokenIsHexAndLong(t *testing.T) {
	tok, err := GenerateToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tok) != tokenBytes*2 {
		t.Fatalf("token length = %d, want %d", len(tok), tokenBytes*2)
	}
	for _, r := range tok {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Fatalf("token %q contains non-hex character %q", tok, r)
		}
	}
}

func TestGenerateTokenIsNotConstant(t *testing.T) {
	a, err := GenerateToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := GenerateToken()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Fatal("two successive tokens should not collide")
	}
}
