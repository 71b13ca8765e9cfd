// Package hexutil holds the byte/hex helpers shared by the vault and the
// auth server. All external key material is exchanged as lowercase hex.
package hexutil

import (
	"encoding/hex"
	"errors"
	"fmt"
)

var ErrMalformed = errors.New("malformed hex value")

// Encode renders b as lowercase hex.
func Encode(b []byte) string {
	return hex.EncodeToString(b)
}

// Decode parses lowercase hex of any length. Uppercase digits are rejected so
// that encoded values are canonical.
func Decode(s string) ([]byte, error) {
	if !isLowerHex(s) {
		return nil, ErrMalformed
	}
	out, err := hex.DecodeString(s)
	if err != nil {
		return nil, ErrMalformed
	}
	return out, nil
}

// DecodeExact parses lowercase hex that must decode to exactly n bytes.
func DecodeExact(s string, n int) ([]byte, error) {
	if len(s) != 2*n {
		return nil, fmt.Errorf("%w: want %d hex chars, got %d", ErrMalformed, 2*n, len(s))
	}
	return Decode(s)
}

// IsExact reports whether s is lowercase hex encoding exactly n bytes.
func IsExact(s string, n int) bool {
	_, err := DecodeExact(s, n)
	return err == nil
}

func isLowerHex(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') {
			continue
		}
		return false
	}
	return true
}
