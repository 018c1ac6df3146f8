// Package signature computes the canonical message of an entry and checks
// its Ed25519 signatures.
package signature

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"tokenmeta/internal/metadata/models"
)

// Verifier applies the any-of policy: an entry is authentic when at least one
// of its signatures verifies.
type Verifier struct{}

func NewVerifier() *Verifier {
	return &Verifier{}
}

// IsAuthentic checks entry's signatures in order. A pair that fails to decode
// or verify only disqualifies itself. The error is reserved for failures to
// build the canonical message.
func (v *Verifier) IsAuthentic(subject, property string, entry models.Entry) (bool, error) {
	if len(entry.Signatures) == 0 {
		return false, nil
	}
	message, err := CanonicalMessage(subject, property, entry)
	if err != nil {
		return false, err
	}
	digest, err := hex.DecodeString(message)
	if err != nil {
		return false, fmt.Errorf("decode canonical message: %w", err)
	}
	for _, sig := range entry.Signatures {
		if verifyPair(digest, sig) {
			return true, nil
		}
	}
	return false, nil
}

func verifyPair(digest []byte, sig models.Signature) bool {
	pub, err := hex.DecodeString(sig.PublicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	raw, err := hex.DecodeString(sig.Signature)
	if err != nil || len(raw) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), digest, raw)
}

// Sign produces the signature pair for entry under priv.
func Sign(priv ed25519.PrivateKey, subject, property string, entry models.Entry) (models.Signature, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return models.Signature{}, fmt.Errorf("private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	message, err := CanonicalMessage(subject, property, entry)
	if err != nil {
		return models.Signature{}, err
	}
	digest, err := hex.DecodeString(message)
	if err != nil {
		return models.Signature{}, fmt.Errorf("decode canonical message: %w", err)
	}
	pub := priv.Public().(ed25519.PublicKey)
	return models.Signature{
		PublicKey: hex.EncodeToString(pub),
		Signature: hex.EncodeToString(ed25519.Sign(priv, digest)),
	}, nil
}
