package securestore

import (
	"crypto/rand"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// SaltSize is the KDF salt length persisted alongside a vault.
	SaltSize = 16
	// NonceSize matches the IETF ChaCha20-Poly1305 nonce, giving the
	// persisted layout nonce(12B) || ciphertext+tag.
	NonceSize = chacha20poly1305.NonceSize
	// KeySize is the symmetric key length used by every backend.
	KeySize = chacha20poly1305.KeySize
)

// KDFParams records how a password was stretched. The argon2id defaults are
// the memory-hard equivalent of the half-million-iteration PBKDF2 floor.
type KDFParams struct {
	Time     uint32 `json:"time"`
	MemoryKB uint32 `json:"memory_kb"`
	Threads  uint8  `json:"threads"`
}

func DefaultKDFParams() KDFParams {
	return KDFParams{Time: 2, MemoryKB: 64 * 1024, Threads: 1}
}

func (p KDFParams) valid() bool {
	return p.Time > 0 && p.MemoryKB > 0 && p.Threads > 0
}

// NewSalt returns a fresh random KDF salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, ErrStorageUnavailable
	}
	return salt, nil
}

// DeriveKey stretches a password into a symmetric key.
func DeriveKey(password string, salt []byte, params KDFParams) []byte {
	if !params.valid() {
		params = DefaultKDFParams()
	}
	return argon2.IDKey([]byte(password), salt, params.Time, params.MemoryKB, params.Threads, KeySize)
}

// Seal encrypts plaintext under key with a fresh random nonce and returns
// nonce || ciphertext+tag.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrStorageUnavailable
	}
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, ErrStorageUnavailable
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open reverses Seal. A blob too short to carry a nonce is ErrInvalidEnvelope;
// a tag mismatch is ErrAuthFailed.
func Open(key, blob []byte) ([]byte, error) {
	if len(blob) < NonceSize {
		return nil, ErrInvalidEnvelope
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, ErrStorageUnavailable
	}
	plaintext, err := aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthFailed
	}
	return plaintext, nil
}

// Zero wipes key material that is done being used.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
