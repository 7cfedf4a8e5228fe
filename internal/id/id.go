// Package id generates the identifiers a topology document needs for a new
// user: a VLESS UUID and a REALITY short id.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
)

// MaxShortIDBytes is the longest short id REALITY accepts, in bytes.
const MaxShortIDBytes = 8

// UUID generates a random (v4) user UUID.
func UUID() string {
	return uuid.NewString()
}

// ShortID generates a hex short id of n bytes (2n hex digits).
func ShortID(n int) (string, error) {
	if n < 1 || n > MaxShortIDBytes {
		return "", fmt.Errorf("short id length must be 1..%d bytes, got %d", MaxShortIDBytes, n)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
