package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSharedSecretLength is the length below which a shared secret
	// (verify token, admin password) is reported as weak.
	MinSharedSecretLength = 16

	// MinEntropy is the Shannon entropy below which a secret is reported as weak.
	MinEntropy = 2.5
)

var placeholderSecrets = map[string]bool{
	"replace-with-secret": true,
	"topsecret":           true,
	"secret":              true,
	"password":            true,
	"changeme":            true,
	"admin":               true,
	"verify_token":        true,
}

// SecretEqual reports whether a supplied secret matches the configured one.
// An unset configured secret never matches, so an empty supplied value cannot
// unlock a surface that was never configured.
func SecretEqual(supplied, configured string) bool {
	if configured == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(configured)) == 1
}

// GenerateSecret creates a cryptographically secure random secret.
// Returns a 32-character URL-safe base64 string.
func GenerateSecret() (string, error) {
	// 24 bytes encode to 32 characters in base64
	bytes := make([]byte, 24)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}

	return base64.URLEncoding.EncodeToString(bytes), nil
}

// calculateEntropy computes the Shannon entropy of a string.
// Returns a value between 0 (completely predictable) and ~8 (maximum entropy for byte strings).
func calculateEntropy(s string) float64 {
	if len(s) == 0 {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	// H = -Σ(p(x) * log2(p(x)))
	var entropy float64
	length := float64(len(s))
	for _, count := range freq {
		p := float64(count) / length
		entropy -= p * math.Log2(p)
	}

	return entropy
}

// IsWeakSecret performs a quick check if a secret is obviously weak.
// This is used for startup warnings without failing configuration.
func IsWeakSecret(secret string) bool {
	if len(secret) < MinSharedSecretLength {
		return true
	}

	if placeholderSecrets[strings.ToLower(secret)] {
		return true
	}

	// All same character
	if len(strings.Trim(secret, string(secret[0]))) == 0 {
		return true
	}

	// Sequential characters (e.g., "12345678...")
	if isSequential(secret) {
		return true
	}

	if calculateEntropy(secret) < MinEntropy {
		return true
	}

	return false
}

// isSequential checks if a string consists of sequential characters.
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}

	// If more than 70% of characters are sequential, it's weak
	return float64(sequential) > float64(len(s))*0.7
}
