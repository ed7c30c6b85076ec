package httpsig

import (
	"crypto/ed25519"
	"fmt"
	"strings"
)

// Signer creates signatures over signature bases.
type Signer interface {
	// Sign produces a signature over the given message bytes.
	Sign(message []byte) ([]byte, error)

	// KeyID returns the key identifier included in signature parameters.
	KeyID() string
}

// Verifier validates signatures over signature bases.
type Verifier interface {
	// Verify checks that signature is valid for the given message bytes.
	Verify(message, signature []byte) error
}

type ed25519Signer struct {
	key   ed25519.PrivateKey
	keyID string
}

// NewEd25519Signer creates a Signer using Ed25519. The key is shared, not
// copied; it is never written to.
func NewEd25519Signer(keyID string, key ed25519.PrivateKey) (Signer, error) {
	if strings.TrimSpace(keyID) == "" {
		return nil, ErrEmptyKeyID
	}

	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key must be %d bytes", ErrInvalidKey, ed25519.PrivateKeySize)
	}

	return &ed25519Signer{key: key, keyID: keyID}, nil
}

func (s *ed25519Signer) Sign(message []byte) ([]byte, error) {
	return ed25519.Sign(s.key, message), nil
}

func (s *ed25519Signer) KeyID() string { return s.keyID }

type ed25519Verifier struct {
	key ed25519.PublicKey
}

// NewEd25519Verifier creates a Verifier using Ed25519.
func NewEd25519Verifier(key ed25519.PublicKey) (Verifier, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: ed25519 public key must be %d bytes", ErrInvalidKey, ed25519.PublicKeySize)
	}

	return &ed25519Verifier{key: key}, nil
}

func (v *ed25519Verifier) Verify(message, signature []byte) error {
	if len(signature) != ed25519.SignatureSize || !ed25519.Verify(v.key, message, signature) {
		return ErrValidation
	}

	return nil
}
