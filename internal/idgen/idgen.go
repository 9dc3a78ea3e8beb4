// Package idgen generates the random identifiers used across the API.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// randomBytes fills n bytes from crypto/rand. Failure here means the
// platform's entropy source is broken, which nothing downstream can
// recover from.
func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return b
}

// WithPrefix returns prefix + 24 hex chars, e.g. WithPrefix("dsp_")
// yields IDs like "dsp_1a2b3c...". The prefix makes IDs self-describing
// in logs and API payloads.
func WithPrefix(prefix string) string {
	return prefix + hex.EncodeToString(randomBytes(12))
}

// Hex returns a random hex string of numBytes random bytes.
func Hex(numBytes int) string {
	return hex.EncodeToString(randomBytes(numBytes))
}
