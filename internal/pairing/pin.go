// Package pairing generates and checks the receiver-side pairing PIN used
// to authenticate the hello handshake (§3, §4.6).
package pairing

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Length is the fixed decimal digit count of a pairing PIN.
const Length = 6

// Generate mints a new 6-digit decimal PIN, valid for the lifetime of the
// receiver process that generated it.
func Generate() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("pairing: generate PIN: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Verify reports whether candidate matches pin. The PIN travels over an
// already-TLS-encrypted channel, so constant-time comparison is not
// required — see §4.6.
func Verify(pin, candidate string) bool {
	return pin == candidate
}
