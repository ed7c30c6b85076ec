// Package jwks derives the public JWK of an Ed25519 signing key and renders,
// persists, parses and resolves JWKS documents.
package jwks

import (
	"crypto"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-jose/go-jose/v4"
)

// Fixed JWK members for Ed25519 signing keys.
const (
	KeyTypeOKP     = "OKP"
	CurveEd25519   = "Ed25519"
	AlgorithmEdDSA = "EdDSA"
	UseSignature   = "sig"
)

var (
	// ErrEmptyKeyID is returned when a key id is blank.
	ErrEmptyKeyID = errors.New("jwks: key id must not be empty")

	// ErrInvalidKeyType is returned for a JWK that is not an Ed25519 OKP
	// key with key material.
	ErrInvalidKeyType = errors.New("jwks: key is not EdDSA-Ed25519")

	// ErrKeyNotFound is returned when a set has no key with the requested id.
	ErrKeyNotFound = errors.New("jwks: key not found")

	// ErrIO is returned when a document cannot be written or fetched.
	ErrIO = errors.New("jwks: io failure")
)

// Key is the public JWK of an Ed25519 signing key. Field order matches the
// published document.
type Key struct {
	Kty string `json:"kty"`
	Crv string `json:"crv"`
	Alg string `json:"alg"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid"`
	X   string `json:"x"`
}

// New derives the public JWK for key under kid.
func New(key ed25519.PrivateKey, kid string) (Key, error) {
	if strings.TrimSpace(kid) == "" {
		return Key{}, ErrEmptyKeyID
	}

	if len(key) != ed25519.PrivateKeySize {
		return Key{}, fmt.Errorf("%w: ed25519 private key must be %d bytes", ErrInvalidKeyType, ed25519.PrivateKeySize)
	}

	return fromPublicKey(key.Public().(ed25519.PublicKey), kid), nil
}

func fromPublicKey(pub ed25519.PublicKey, kid string) Key {
	return Key{
		Kty: KeyTypeOKP,
		Crv: CurveEd25519,
		Alg: AlgorithmEdDSA,
		Use: UseSignature,
		Kid: kid,
		X:   base64.RawURLEncoding.EncodeToString(pub),
	}
}

// Validate checks that k describes an Ed25519 OKP key whose x decodes to
// 32 bytes.
func (k Key) Validate() error {
	if k.Crv != CurveEd25519 || k.Kty != KeyTypeOKP || k.X == "" {
		return ErrInvalidKeyType
	}

	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil || len(x) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: x must be %d base64url bytes", ErrInvalidKeyType, ed25519.PublicKeySize)
	}

	return nil
}

// PublicKey decodes the key material. The JWK is run through go-jose so
// malformed coordinates are rejected the same way any JOSE consumer would.
func (k Key) PublicKey() (ed25519.PublicKey, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(k)
	if err != nil {
		return nil, err
	}

	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidKeyType, err)
	}

	pub, ok := jwk.Key.(ed25519.PublicKey)
	if !ok {
		return nil, ErrInvalidKeyType
	}

	return pub, nil
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of k, base64url
// encoded without padding.
func (k Key) Thumbprint() (string, error) {
	pub, err := k.PublicKey()
	if err != nil {
		return "", err
	}

	return Thumbprint(pub)
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of an Ed25519 public
// key, base64url encoded without padding. It is suitable as a derived key
// id.
func Thumbprint(pub ed25519.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}

	sum, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(sum), nil
}
