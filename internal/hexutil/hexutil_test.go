package hexutil

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	raw := []byte{0x00, 0x01, 0xab, 0xff}
	encoded := Encode(raw)
	if encoded != "0001abff" {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !bytes.Equal(decoded, raw) {
		t.Fatal("round trip mismatch")
	}
}

func TestDecodeRejectsNonCanonical(t *testing.T) {
	cases := []string{"AB", "0g", "abc", "zz", "0xab"}
	for _, c := range cases {
		if _, err := Decode(c); err == nil {
			t.Fatalf("expected error for %q", c)
		}
	}
}

func TestDecodeExact(t *testing.T) {
	if _, err := DecodeExact("abcd", 2); err != nil {
		t.Fatalf("decode exact failed: %v", err)
	}
	if _, err := DecodeExact("abcd", 3); err == nil {
		t.Fatal("expected length error")
	}
	if !IsExact("00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff", 32) {
		t.Fatal("64-char lowercase hex should satisfy 32-byte check")
	}
	if IsExact("00112233445566778899AABBCCDDEEFF00112233445566778899aabbccddeeff", 32) {
		t.Fatal("uppercase digits must be rejected")
	}
}
