package signature

import (
	"strings"
	"testing"
)

const (
	testBody       = `{"eventId":"evt-100"}`
	testSecret     = "secret-key"
	testBodySHA256 = "13f47e95ec340f9d497dfdef23ce07c007fb83e6bb8fb7b646a8c80d0da9f966"
	testBodySHA512 = "ee7f540bc9f08572b89f8d0ef2d3262ad464beafc89bda0a48f3ef6fec97015aa9d50a9779fc2e493c8bfe82277b9bb5793dd3d87bad97efdd2bf324b2f494d5"
)

func TestComputeHMACHexKnownVectors(t *testing.T) {
	got, err := ComputeHMACHex([]byte(testBody), testSecret, AlgorithmSHA256)
	if err != nil {
		t.Fatalf("compute sha256: %v", err)
	}
	if got != testBodySHA256 {
		t.Fatalf("unexpected sha256 mac %q", got)
	}

	got, err = ComputeHMACHex([]byte(testBody), testSecret, AlgorithmSHA512)
	if err != nil {
		t.Fatalf("compute sha512: %v", err)
	}
	if got != testBodySHA512 {
		t.Fatalf("unexpected sha512 mac %q", got)
	}
}

func TestComputeHMACHexFailsClosed(t *testing.T) {
	if _, err := ComputeHMACHex(nil, testSecret, AlgorithmSHA256); err == nil {
		t.Fatalf("expected error for empty input")
	}
	if _, err := ComputeHMACHex([]byte(testBody), "", AlgorithmSHA256); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := ComputeHMACHex([]byte(testBody), testSecret, "hmac-md5"); err == nil {
		t.Fatalf("expected error for unsupported algorithm")
	}
}

func TestParseAlgorithm(t *testing.T) {
	got, err := ParseAlgorithm(" HMAC-SHA256 ")
	if err != nil || got != AlgorithmSHA256 {
		t.Fatalf("expected normalized sha256, got %q err=%v", got, err)
	}
	if _, err := ParseAlgorithm("sha256"); err == nil {
		t.Fatalf("expected bare sha256 label to be rejected")
	}
	if _, err := ParseAlgorithm(""); err == nil {
		t.Fatalf("expected empty algorithm to be rejected")
	}
}

func TestVerifySignature(t *testing.T) {
	ok, err := VerifySignature([]byte(testBody), testSecret, testBodySHA256, AlgorithmSHA256)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatalf("expected valid signature to verify")
	}

	tampered := "0" + testBodySHA256[1:]
	ok, err = VerifySignature([]byte(testBody), testSecret, tampered, AlgorithmSHA256)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if ok {
		t.Fatalf("expected tampered signature to fail")
	}

	// Uppercase hex is accepted; comparison happens on decoded bytes.
	ok, err = VerifySignature([]byte(testBody), testSecret, strings.ToUpper(testBodySHA256), AlgorithmSHA256)
	if err != nil || !ok {
		t.Fatalf("expected uppercase hex to verify, ok=%v err=%v", ok, err)
	}
}

func TestVerifySignatureLengthMismatchNeverVerifies(t *testing.T) {
	ok, err := VerifySignature([]byte(testBody), testSecret, testBodySHA256[:32], AlgorithmSHA256)
	if err != nil {
		t.Fatalf("verify short signature: %v", err)
	}
	if ok {
		t.Fatalf("expected truncated signature to fail")
	}

	// A sha512-length signature against a sha256 verifier is a mismatch,
	// not an error.
	ok, err = VerifySignature([]byte(testBody), testSecret, testBodySHA512, AlgorithmSHA256)
	if err != nil {
		t.Fatalf("verify oversized signature: %v", err)
	}
	if ok {
		t.Fatalf("expected oversized signature to fail")
	}
}

func TestVerifySignatureMalformedHex(t *testing.T) {
	if _, err := VerifySignature([]byte(testBody), testSecret, "not-hex!", AlgorithmSHA256); err == nil {
		t.Fatalf("expected non-hex signature to error")
	}
	if _, err := VerifySignature([]byte(testBody), testSecret, "", AlgorithmSHA256); err == nil {
		t.Fatalf("expected empty signature to error")
	}
}
