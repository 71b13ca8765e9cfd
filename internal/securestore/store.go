// Package securestore provides the encrypted key-value backends that hold
// wrapped key material at rest. Three interchangeable backends satisfy the
// same BlobStore contract: an OS-keychain backed store, a password-derived
// store, and a device-bound store. None of them ever persists a secret
// unencrypted; a backend that cannot guarantee that refuses to construct.
package securestore

import "errors"

var (
	ErrStorageUnavailable = errors.New("securestore backend is unavailable")
	ErrAuthFailed         = errors.New("securestore authentication failed")
	ErrInvalidEnvelope    = errors.New("securestore envelope is invalid")
)

// BlobStore is the contract shared by all encrypted backends.
//
// Get returns (nil, false, nil) for a missing value. Backends that decrypt on
// read also report an undecryptable value as missing, so a wrong password
// looks like "no data" to callers instead of an error.
type BlobStore interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// KV is the plaintext persistence the encrypted backends write through. It
// only ever sees ciphertext (plus public metadata such as KDF salts).
type KV interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Delete(key string) error
}
