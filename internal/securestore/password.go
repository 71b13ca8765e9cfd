package securestore

import "strings"

const saltEntry = "kdf.salt"

// PasswordStore derives its symmetric key from a password with a persisted
// random salt. Every write seals with a fresh nonce; a value that fails to
// authenticate on read (wrong password, tampering) reads as missing.
type PasswordStore struct {
	inner  KV
	key    []byte
	params KDFParams
}

// NewPasswordStore loads or creates the salt in inner and derives the store
// key. The salt is public metadata and is reused for the life of the store.
func NewPasswordStore(inner KV, password string, params KDFParams) (*PasswordStore, error) {
	if inner == nil {
		return nil, ErrStorageUnavailable
	}
	if strings.TrimSpace(password) == "" {
		return nil, ErrStorageUnavailable
	}
	if !params.valid() {
		params = DefaultKDFParams()
	}
	salt, ok, err := inner.Get(saltEntry)
	if err != nil {
		return nil, err
	}
	if !ok || len(salt) != SaltSize {
		salt, err = NewSalt()
		if err != nil {
			return nil, err
		}
		if err := inner.Set(saltEntry, salt); err != nil {
			return nil, err
		}
	}
	return &PasswordStore{
		inner:  inner,
		key:    DeriveKey(password, salt, params),
		params: params,
	}, nil
}

func (s *PasswordStore) Get(key string) ([]byte, bool, error) {
	blob, ok, err := s.inner.Get(key)
	if err != nil || !ok {
		return nil, false, err
	}
	plaintext, err := Open(s.key, blob)
	if err != nil {
		// Wrong password and absent data are deliberately the same outcome.
		return nil, false, nil
	}
	return plaintext, true, nil
}

func (s *PasswordStore) Set(key string, value []byte) error {
	blob, err := Seal(s.key, value)
	if err != nil {
		return err
	}
	return s.inner.Set(key, blob)
}

func (s *PasswordStore) Delete(key string) error {
	return s.inner.Delete(key)
}

// Close wipes the derived key. The store is unusable afterwards.
func (s *PasswordStore) Close() {
	Zero(s.key)
}
