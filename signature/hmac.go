// Package signature implements the HMAC admission gate for inbound courier
// webhooks: raw-body MAC verification, timestamp skew checks, and the
// classified errors the transport layer maps onto HTTP responses.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

const (
	AlgorithmSHA256 = "hmac-sha256"
	AlgorithmSHA512 = "hmac-sha512"
)

// ParseAlgorithm normalizes a wire algorithm label. Unknown labels fail
// closed.
func ParseAlgorithm(value string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case AlgorithmSHA256, AlgorithmSHA512:
		return normalized, nil
	default:
		return "", fmt.Errorf("signature: unsupported algorithm %q", value)
	}
}

func hashConstructor(algorithm string) (func() hash.Hash, error) {
	switch algorithm {
	case AlgorithmSHA256:
		return sha256.New, nil
	case AlgorithmSHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("signature: unsupported algorithm %q", algorithm)
	}
}

// ComputeHMACHex returns the lowercase hex MAC of input under secret.
// Empty secrets and empty inputs fail closed rather than producing a MAC
// of nothing.
func ComputeHMACHex(input []byte, secret string, algorithm string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signature: secret is required")
	}
	if len(input) == 0 {
		return "", fmt.Errorf("signature: input is required")
	}
	normalized, err := ParseAlgorithm(algorithm)
	if err != nil {
		return "", err
	}
	constructor, err := hashConstructor(normalized)
	if err != nil {
		return "", err
	}
	mac := hmac.New(constructor, []byte(secret))
	mac.Write(input)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// VerifySignature recomputes the MAC and compares it against the provided
// hex signature in constant time. Any malformed input verifies false with
// an error rather than panicking or short-circuiting on length.
func VerifySignature(input []byte, secret string, providedHex string, algorithm string) (bool, error) {
	providedHex = strings.ToLower(strings.TrimSpace(providedHex))
	if providedHex == "" {
		return false, fmt.Errorf("signature: provided signature is required")
	}
	expectedHex, err := ComputeHMACHex(input, secret, algorithm)
	if err != nil {
		return false, err
	}
	provided, err := hex.DecodeString(providedHex)
	if err != nil {
		return false, fmt.Errorf("signature: provided signature is not valid hex")
	}
	expected, err := hex.DecodeString(expectedHex)
	if err != nil {
		return false, fmt.Errorf("signature: computed signature is not valid hex")
	}
	if len(provided) != len(expected) {
		// Still burn a comparison so mismatched lengths cost the same as
		// mismatched bytes.
		padded := make([]byte, len(expected))
		copy(padded, provided)
		subtle.ConstantTimeCompare(padded, expected)
		return false, nil
	}
	return subtle.ConstantTimeCompare(provided, expected) == 1, nil
}
