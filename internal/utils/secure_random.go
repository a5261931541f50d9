package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// SecureRandomSuffix returns an uppercase hex string of 2*n characters drawn
// from crypto/rand, used to disambiguate audit identifiers minted within the
// same clock second.
func SecureRandomSuffix(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("suffix byte length must be positive")
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
