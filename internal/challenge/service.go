// Package challenge implements the single-use, time-boxed challenges a
// client signs to prove possession of its Ed25519 private key, and the
// verification of those signatures.
package challenge

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"time"

	"nullspace/go-auth/internal/hexutil"

	"github.com/google/uuid"
)

var (
	ErrInvalidPublicKey = errors.New("public key must be 64 lowercase hex characters")
	ErrInvalidTTL       = errors.New("challenge ttl must be a positive duration")
)

// DefaultTTL matches the upstream auth service's five minute window.
const DefaultTTL = 5 * time.Minute

// ChallengeSize is the random challenge length in bytes.
const ChallengeSize = 32

// Challenge is the stored triple binding a random nonce to the public key
// that requested it.
type Challenge struct {
	ID           string    `json:"id"`
	PublicKeyHex string    `json:"public_key_hex"`
	Challenge    []byte    `json:"challenge"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Store persists challenges between issue and consume.
//
// Take is the load-bearing operation: it must atomically fetch and delete by
// id so that two concurrent consumers of the same challenge cannot both
// succeed. Implementations must not split it into a read and a delete.
type Store interface {
	Put(ctx context.Context, ch Challenge) error
	Take(ctx context.Context, id string) (Challenge, bool, error)
}

// Issued is what the client receives. The challenge bytes travel as hex.
type Issued struct {
	ChallengeID  string `json:"challengeId"`
	ChallengeHex string `json:"challenge"`
	ExpiresAtMs  int64  `json:"expiresAtMs"`
}

type Service struct {
	store Store
	ttl   time.Duration
	now   func() time.Time
}

// NewService refuses a non-positive TTL rather than issuing challenges that
// never expire.
func NewService(store Store, ttl time.Duration) (*Service, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	return &Service{store: store, ttl: ttl, now: time.Now}, nil
}

// Issue creates and persists a fresh challenge for the claimed public key.
func (s *Service) Issue(ctx context.Context, publicKeyHex string) (Issued, error) {
	if !hexutil.IsExact(publicKeyHex, ed25519.PublicKeySize) {
		return Issued{}, ErrInvalidPublicKey
	}
	nonce := make([]byte, ChallengeSize)
	if _, err := rand.Read(nonce); err != nil {
		return Issued{}, err
	}
	ch := Challenge{
		ID:           uuid.NewString(),
		PublicKeyHex: publicKeyHex,
		Challenge:    nonce,
		ExpiresAt:    s.now().Add(s.ttl),
	}
	if err := s.store.Put(ctx, ch); err != nil {
		return Issued{}, err
	}
	return Issued{
		ChallengeID:  ch.ID,
		ChallengeHex: hexutil.Encode(nonce),
		ExpiresAtMs:  ch.ExpiresAt.UnixMilli(),
	}, nil
}

// Consume atomically invalidates the challenge and returns its bytes. Absent,
// expired, already-consumed and wrong-key challenges are all the same nil
// outcome; callers cannot tell them apart and neither can an attacker.
func (s *Service) Consume(ctx context.Context, id, publicKeyHex string) ([]byte, error) {
	if id == "" || !hexutil.IsExact(publicKeyHex, ed25519.PublicKeySize) {
		return nil, nil
	}
	ch, ok, err := s.store.Take(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if !s.now().Before(ch.ExpiresAt) {
		return nil, nil
	}
	if ch.PublicKeyHex != publicKeyHex {
		return nil, nil
	}
	return ch.Challenge, nil
}

// TTL reports the configured challenge lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
