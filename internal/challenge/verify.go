package challenge

import (
	"crypto/ed25519"

	"nullspace/go-auth/internal/hexutil"
	"nullspace/go-auth/internal/keysigner"
)

// MessagePrefix is the fixed domain separator prepended to the challenge
// bytes before signing. Clients must sign exactly prefix || challenge.
const MessagePrefix = "nullspace-auth:"

// CanonicalMessage builds the bytes a client signs for a given challenge.
func CanonicalMessage(challengeBytes []byte) []byte {
	msg := make([]byte, 0, len(MessagePrefix)+len(challengeBytes))
	msg = append(msg, MessagePrefix...)
	return append(msg, challengeBytes...)
}

// VerifySignature checks an Ed25519 signature over the canonical challenge
// message. Every parse failure is simply false; this boundary must never be
// a crash vector.
func VerifySignature(publicKeyHex, signatureHex, challengeHex string) bool {
	pub, err := hexutil.DecodeExact(publicKeyHex, ed25519.PublicKeySize)
	if err != nil {
		return false
	}
	sig, err := hexutil.DecodeExact(signatureHex, ed25519.SignatureSize)
	if err != nil {
		return false
	}
	raw, err := hexutil.DecodeExact(challengeHex, ChallengeSize)
	if err != nil {
		return false
	}
	return keysigner.Verify(CanonicalMessage(raw), sig, pub)
}
