// Package token mints the capability tokens carried in newsletter
// confirmation and unsubscribe links.
package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Length is the number of hex characters in a token.
const Length = 64

// Generator produces a fresh token. Services take one so tests can
// substitute deterministic values.
type Generator func() (string, error)

// Generate returns 32 random bytes from crypto/rand as 64 lowercase hex
// characters.
func Generate() (string, error) {
	buf := make([]byte, Length/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Valid reports whether s has the shape of a generated token. Handlers use
// it to reject garbage before touching storage.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
