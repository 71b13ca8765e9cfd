// Package session mints and verifies the bearer tokens issued after a
// successful challenge-response exchange. Tokens are JWTs signed EdDSA with
// the server's own signing key; the subject claim binds the session to the
// authenticated client public key.
package session

import (
	"context"
	"crypto/ed25519"
	"errors"
	"time"

	"nullspace/go-auth/internal/keysigner"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrInvalidTTL   = errors.New("session ttl must be a positive duration")
)

// DefaultTTL mirrors the upstream session lifetime.
const DefaultTTL = 30 * time.Minute

const issuerName = "nullspace-auth"

// Session is what the client receives after authenticating.
type Session struct {
	Token        string `json:"token"`
	PublicKeyHex string `json:"publicKey"`
	ExpiresAtMs  int64  `json:"expiresAtMs"`
}

// Issuer signs session tokens without ever seeing the private key: signing
// goes through the keysigner boundary.
type Issuer struct {
	signer *keysigner.Signer
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(signer *keysigner.Signer, ttl time.Duration) (*Issuer, error) {
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}
	return &Issuer{signer: signer, ttl: ttl, now: time.Now}, nil
}

// Mint issues a session bound to the authenticated public key.
func (i *Issuer) Mint(ctx context.Context, publicKeyHex string) (Session, error) {
	now := i.now()
	expires := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    issuerName,
		Subject:   publicKeyHex,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
	token := jwt.NewWithClaims(&signerMethod{ctx: ctx}, claims)
	signed, err := token.SignedString(i.signer)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:        signed,
		PublicKeyHex: publicKeyHex,
		ExpiresAtMs:  expires.UnixMilli(),
	}, nil
}

// VerifyKey returns the public key tokens should be checked against.
func (i *Issuer) VerifyKey(ctx context.Context) (ed25519.PublicKey, error) {
	return i.signer.PublicKey(ctx)
}

// Verify parses a token and returns the bound client public key hex.
func Verify(token string, issuerKey ed25519.PublicKey) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return issuerKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// signerMethod adapts the keysigner boundary to jwt's SigningMethod. Alg()
// reports standard EdDSA so verification uses the stock method.
type signerMethod struct {
	ctx context.Context
}

func (m *signerMethod) Alg() string { return jwt.SigningMethodEdDSA.Alg() }

func (m *signerMethod) Sign(signingString string, key any) ([]byte, error) {
	signer, ok := key.(*keysigner.Signer)
	if !ok {
		return nil, jwt.ErrInvalidKeyType
	}
	return signer.Sign(m.ctx, []byte(signingString))
}

func (m *signerMethod) Verify(signingString string, sig []byte, key any) error {
	pub, ok := key.(ed25519.PublicKey)
	if !ok {
		return jwt.ErrInvalidKeyType
	}
	if !keysigner.Verify([]byte(signingString), sig, pub) {
		return jwt.ErrSignatureInvalid
	}
	return nil
}
