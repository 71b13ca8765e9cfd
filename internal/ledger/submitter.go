package ledger

import (
	"context"
	"encoding/binary"

	"nullspace/go-auth/internal/hexutil"
	"nullspace/go-auth/internal/keysigner"
)

// Submitter is the privileged submission path: it reserves an admin nonce,
// signs nonce-bound payloads with the server key and posts them to the
// ledger. All submissions for one signer funnel through the coordinator's
// queue.
type Submitter struct {
	client      *Client
	coordinator *NonceCoordinator
	signer      *keysigner.Signer
}

// NewSubmitter builds the coordinator from the signer's own public key. The
// nonce account and the signing key are the same account on the ledger; a
// coordinator seeded from any other account would reserve nonces the ledger
// will never accept for this signer.
func NewSubmitter(ctx context.Context, client *Client, counter Counter, signer *keysigner.Signer) (*Submitter, error) {
	pub, err := signer.PublicKey(ctx)
	if err != nil {
		return nil, err
	}
	return &Submitter{
		client:      client,
		coordinator: NewNonceCoordinator(client, counter, hexutil.Encode(pub)),
		signer:      signer,
	}, nil
}

// SubmitSigned wraps the payload in the ledger's signed envelope and posts
// it: nonce (8 bytes big endian) then payload, signature over both appended.
func (s *Submitter) SubmitSigned(ctx context.Context, payload []byte) error {
	return s.coordinator.Do(ctx, func(ctx context.Context, nonce uint64) error {
		msg := make([]byte, 8, 8+len(payload))
		binary.BigEndian.PutUint64(msg, nonce)
		msg = append(msg, payload...)
		sig, err := s.signer.Sign(ctx, msg)
		if err != nil {
			return err
		}
		return s.client.Submit(ctx, append(msg, sig...))
	})
}
