// ABOUTME: Generation of per-identity signing secrets
// ABOUTME: Secrets are 32 random bytes, hex encoded, and never sent to clients

package token

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SecretBytes is the amount of randomness in a signing secret.
const SecretBytes = 32

// NewSecret returns a fresh hex-encoded signing secret.
func NewSecret() (string, error) {
	b := make([]byte, SecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
