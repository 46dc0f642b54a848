package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

const tokenBytes = 32

// GenerateSessionToken mints the opaque token handed to the browser along
// with the SHA-256 digest stored server-side. The raw token never touches
// the database.
func GenerateSessionToken() (string, []byte, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", nil, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)
	return token, HashSessionToken(token), nil
}

func HashSessionToken(token string) []byte {
	sum := sha256.Sum256([]byte(token))
	return sum[:]
}

// GenerateCSRFToken mints the value for the double-submit cookie.
func GenerateCSRFToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// CSRFTokenMatches compares the cookie value against the form or header echo
// in constant time.
func CSRFTokenMatches(cookie, submitted string) bool {
	if cookie == "" || submitted == "" {
		return false
	}
	return hmac.Equal([]byte(cookie), []byte(submitted))
}
