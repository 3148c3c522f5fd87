package security

import "fmt"

// MaxPayloadIDLength bounds identifiers accepted from webhook payloads.
const MaxPayloadIDLength = 256

// ValidatePayloadID checks an identifier taken from a webhook payload. IDs
// are opaque: any non-empty value within the length bound is accepted.
func ValidatePayloadID(id string) error {
	if id == "" {
		return fmt.Errorf("id cannot be empty")
	}
	if len(id) > MaxPayloadIDLength {
		return fmt.Errorf("id too long (maximum %d characters)", MaxPayloadIDLength)
	}
	return nil
}
