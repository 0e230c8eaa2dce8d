// File: internal/token/token.go
// Quiz Engine - Token / PIN Service

package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
)

// pinPattern is the shape a custom PIN must match: exactly six digits.
var pinPattern = regexp.MustCompile(`^[0-9]{6}$`)

const (
	pinMin = 100000
	pinMax = 999999

	// tokenBytes is the amount of cryptographic randomness behind every
	// opaque token, hex-encoded to tokenBytes*2 characters (64 for 32).
	tokenBytes = 32

	maxPinAttempts = 100
)

// ErrInvalidCustomPin is returned when a caller-supplied PIN fails the
// six-digit shape check.
var ErrInvalidCustomPin = fmt.Errorf("custom pin must be exactly 6 digits")

// ErrPinTaken is returned when a caller-supplied PIN is already held by
// an active game.
var ErrPinTaken = fmt.Errorf("pin already in use")

// ErrPinSpaceExhausted is returned when no free PIN could be found
// after maxPinAttempts random draws. Practically unreachable at the
// 900,000-PIN space size, but handled rather than looping forever.
var ErrPinSpaceExhausted = fmt.Errorf("no free pin available")

// PinIsActive reports whether pin is already held by an active game.
// Implemented by the in-memory Game Instance registry; the Store's own
// unique constraint is the final authority.
type PinIsActive func(pin string) bool

// GeneratePin returns a usable 6-digit PIN. If customPin is non-empty,
// it is validated and returned as-is (subject to the Store's unique
// constraint at creation time); otherwise a PIN is uniformly sampled
// from [100000, 999999] and resampled on collision against active.
func GeneratePin(customPin string, active PinIsActive) (string, error) {
	if customPin != "" {
		if !pinPattern.MatchString(customPin) {
			return "", ErrInvalidCustomPin
		}
		if active != nil && active(customPin) {
			return "", ErrPinTaken
		}
		return customPin, nil
	}

	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(pinMax-pinMin+1))
		if err != nil {
			return "", fmt.Errorf("sample pin: %w", err)
		}
		pin := fmt.Sprintf("%06d", pinMin+n.Int64())
		if active == nil || !active(pin) {
			return pin, nil
		}
	}
	return "", ErrPinSpaceExhausted
}

// GenerateToken returns tokenBytes of cryptographic randomness,
// hex-encoded. Moderator and player tokens are opaque; the server
// never parses them back apart.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
