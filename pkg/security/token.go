package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// ShareTokenBytes yields a 43 character base64url token.
const ShareTokenBytes = 32

// RandomToken returns n bytes from crypto/rand encoded as unpadded base64url.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("token size must be positive")
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewShareToken mints an unguessable token for public order links.
func NewShareToken() (string, error) {
	return RandomToken(ShareTokenBytes)
}
