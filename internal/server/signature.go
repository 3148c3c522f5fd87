package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	SignatureHeader = "X-Hub-Signature-256"
	SignaturePrefix = "sha256="
)

// VerifySignature checks the X-Hub-Signature-256 value Meta sends with each
// delivery: "sha256=" followed by the hex HMAC-SHA256 of the raw body, keyed
// with the app secret.
func VerifySignature(payload []byte, signature, secret string) bool {
	digest, ok := strings.CutPrefix(signature, SignaturePrefix)
	if !ok || digest == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(strings.ToLower(digest)))
}
