// Package pin generates and fingerprints channel pins.
package pin

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
)

// DefaultLength is the pin length minted when callers do not ask for a
// specific one.
const DefaultLength = 6

const hexDigits = "0123456789abcdef"

// Generate returns a uniformly random lowercase-hex pin of the requested
// length. Lengths outside the 4-16 protocol bounds are clamped.
func Generate(length int) string {
	if length < 4 {
		length = DefaultLength
	}
	if length > 16 {
		length = 16
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; treat it as a
		// broken environment.
		panic(err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = hexDigits[int(b)%len(hexDigits)]
	}
	return string(out)
}

// Hash returns the sha256 hex digest of a pin value. Logs and audit trails
// reference pins through this fingerprint, never the raw value.
func Hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
