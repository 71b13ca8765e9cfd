// Package accountid derives the short display handle for a ledger account
// from its Ed25519 public key.
package accountid

import (
	"crypto/ed25519"
	"fmt"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
)

// Prefix marks nullspace account handles; the rest is base58 of the key hash.
const Prefix = "ns1"

func Build(publicKey []byte) (string, error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return "", fmt.Errorf("invalid public key size: %d", len(publicKey))
	}
	h := blake2b.Sum256(publicKey)
	return Prefix + base58.Encode(h[:]), nil
}

func Verify(accountID string, publicKey []byte) (bool, error) {
	expected, err := Build(publicKey)
	if err != nil {
		return false, err
	}
	return accountID == expected, nil
}
