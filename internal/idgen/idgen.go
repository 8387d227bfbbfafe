// Package idgen generates the random identifiers used across the
// platform ("ten_", "usr_", "chg_", "pay_" prefixes).
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

const idRandomBytes = 12

// WithPrefix returns prefix + 24 hex chars of cryptographic randomness.
func WithPrefix(prefix string) string {
	return prefix + Hex(idRandomBytes)
}

// Hex returns a random hex string covering numBytes bytes.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
