package server

import (
	"strings"
	"testing"
)

const testAppSecret = "app-secret-Hj3$kL9#mN2@pQ5!"

func TestVerifySignature_Valid(t *testing.T) {
	payload := []byte(`{"object":"instagram","entry":[]}`)
	signature := MakeTestSignature(payload, testAppSecret)

	if !VerifySignature(payload, signature, testAppSecret) {
		t.Error("Expected valid signature to be accepted")
	}
}

func TestVerifySignature_UppercaseHex(t *testing.T) {
	payload := []byte(`{"object":"instagram","entry":[]}`)
	signature := MakeTestSignature(payload, testAppSecret)
	upper := SignaturePrefix + strings.ToUpper(strings.TrimPrefix(signature, SignaturePrefix))

	if !VerifySignature(payload, upper, testAppSecret) {
		t.Error("Expected uppercase hex digest to be accepted")
	}
}

func TestVerifySignature_Invalid(t *testing.T) {
	payload := []byte(`{"object":"instagram","entry":[]}`)
	signature := MakeTestSignature(payload, "some-other-app-secret")

	if VerifySignature(payload, signature, testAppSecret) {
		t.Error("Expected invalid signature to be rejected")
	}
}

func TestVerifySignature_TamperedPayload(t *testing.T) {
	signature := MakeTestSignature([]byte(`{"object":"instagram"}`), testAppSecret)

	if VerifySignature([]byte(`{"object":"instagram","x":1}`), signature, testAppSecret) {
		t.Error("Expected signature over a different payload to be rejected")
	}
}

func TestVerifySignature_MissingHeader(t *testing.T) {
	payload := []byte(`{"object":"instagram","entry":[]}`)

	if VerifySignature(payload, "", testAppSecret) {
		t.Error("Expected missing signature to be rejected")
	}
}

func TestVerifySignature_MalformedSignature(t *testing.T) {
	payload := []byte(`{"object":"instagram","entry":[]}`)

	testCases := []struct {
		name      string
		signature string
	}{
		{"no prefix", "abc123def456"},
		{"wrong prefix", "sha1=abc123def456"},
		{"no equals", "sha256abc123def456"},
		{"empty after prefix", "sha256="},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if VerifySignature(payload, tc.signature, testAppSecret) {
				t.Errorf("Expected malformed signature '%s' to be rejected", tc.signature)
			}
		})
	}
}
