package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// verifyHMACSignature verifies an HMAC-SHA256 signature against the request body.
//
// Supported formats:
//   - "sha256=<hex>" (GitHub style)
//   - "<hex>" (plain hex)
func verifyHMACSignature(body []byte, signature, secret string) Verification {
	if secret == "" {
		return Rejected(ReasonMissingSecret)
	}
	if signature == "" {
		return Rejected(ReasonMissingSignature)
	}

	actualMAC, err := parseSignature(signature)
	if err != nil || len(actualMAC) != sha256.Size {
		return Rejected(ReasonMalformedSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if subtle.ConstantTimeCompare(mac.Sum(nil), actualMAC) != 1 {
		return Rejected(ReasonSignatureMismatch)
	}
	return Verified()
}

// parseSignature decodes "sha256=<hex>" or plain hex into raw bytes.
func parseSignature(signature string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
}

// ComputeSignature returns the hex HMAC-SHA256 of body keyed by secret.
func ComputeSignature(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// EqualSignatures compares two hex signatures in constant time.
func EqualSignatures(expected, actual string) bool {
	return hmac.Equal([]byte(expected), []byte(actual))
}
