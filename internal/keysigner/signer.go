// Package keysigner owns exactly one Ed25519 keypair at a time. The private
// key never leaves the signer; callers get the public key and signatures.
package keysigner

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"sync"

	"nullspace/go-auth/internal/securestore"
)

var ErrKeyUnavailable = errors.New("signing key is unavailable")

const seedEntry = "signer.seed"

// Signer holds the active keypair. Store-backed signers load or generate the
// seed lazily on first use; seed-backed signers (used by an unlocked vault)
// hold the key only in memory and lose it on Forget.
type Signer struct {
	mu    sync.Mutex
	store securestore.BlobStore
	entry string
	priv  ed25519.PrivateKey
}

// New returns a signer persisting its seed through an encrypted store.
func New(store securestore.BlobStore) *Signer {
	return &Signer{store: store, entry: seedEntry}
}

// FromSeed returns a purely in-memory signer over a 32-byte Ed25519 seed.
func FromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, ErrKeyUnavailable
	}
	return &Signer{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the public key, generating and persisting the keypair on
// first call if none exists yet.
func (s *Signer) PublicKey(ctx context.Context) (ed25519.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureKeyLocked(ctx); err != nil {
		return nil, err
	}
	pub := s.priv.Public().(ed25519.PublicKey)
	return append(ed25519.PublicKey(nil), pub...), nil
}

// Sign produces a deterministic Ed25519 signature over exactly the given
// bytes. It fails with ErrKeyUnavailable when the key has been forgotten
// (locked vault) and no store can supply it.
func (s *Signer) Sign(ctx context.Context, message []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureKeyLocked(ctx); err != nil {
		return nil, err
	}
	return ed25519.Sign(s.priv, message), nil
}

// Forget drops the in-memory private key. For seed-backed signers this is a
// lock: subsequent Sign calls fail with ErrKeyUnavailable.
func (s *Signer) Forget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.priv {
		s.priv[i] = 0
	}
	s.priv = nil
}

// Verify reports whether sig is a valid signature of message under pub.
// Malformed inputs of the wrong length are simply "not verified".
func Verify(message, sig []byte, pub []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), message, sig)
}

func (s *Signer) ensureKeyLocked(ctx context.Context) error {
	if s.priv != nil {
		return nil
	}
	if s.store == nil {
		return ErrKeyUnavailable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	seed, ok, err := s.store.Get(s.entry)
	if err != nil {
		return err
	}
	if ok && len(seed) == ed25519.SeedSize {
		s.priv = ed25519.NewKeyFromSeed(seed)
		securestore.Zero(seed)
		return nil
	}

	fresh := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(fresh); err != nil {
		return err
	}
	// Re-check before writing: if another writer won the race between our
	// read and now, adopt its key instead of clobbering it.
	seed, ok, err = s.store.Get(s.entry)
	if err != nil {
		return err
	}
	if ok && len(seed) == ed25519.SeedSize {
		s.priv = ed25519.NewKeyFromSeed(seed)
		securestore.Zero(seed)
		securestore.Zero(fresh)
		return nil
	}
	if err := s.store.Set(s.entry, fresh); err != nil {
		return err
	}
	s.priv = ed25519.NewKeyFromSeed(fresh)
	securestore.Zero(fresh)
	return nil
}
