package jwks

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/jwk"

	"github.com/vitalvas/paysig/internal/atomicfile"
)

// Set is a JWKS document.
type Set struct {
	Keys []Key `json:"keys"`
}

// NewSet returns a document holding exactly the public JWK of key.
func NewSet(key ed25519.PrivateKey, kid string) (Set, error) {
	k, err := New(key, kid)
	if err != nil {
		return Set{}, err
	}

	return Set{Keys: []Key{k}}, nil
}

// Marshal renders the document as compact JSON.
func (s Set) Marshal() ([]byte, error) {
	if s.Keys == nil {
		s.Keys = []Key{}
	}

	return json.Marshal(s)
}

// Lookup returns the public key published under kid.
func (s Set) Lookup(kid string) (ed25519.PublicKey, error) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k.PublicKey()
		}
	}

	return nil, fmt.Errorf("%w: %q", ErrKeyNotFound, kid)
}

// Persist writes the rendered document to path atomically.
func Persist(s Set, path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}

	if err := atomicfile.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, path, err)
	}

	return nil
}

// ParseSet parses a JWKS document published by a peer. Keys that are not
// Ed25519 are skipped; a document without any usable key is rejected with
// ErrInvalidKeyType.
func ParseSet(data []byte) (Set, error) {
	parsed, err := jwk.Parse(data)
	if err != nil {
		return Set{}, fmt.Errorf("%w: %w", ErrInvalidKeyType, err)
	}

	var s Set

	for i := range parsed.Len() {
		key, ok := parsed.Key(i)
		if !ok {
			continue
		}

		var raw any
		if err := jwk.Export(key, &raw); err != nil {
			continue
		}

		pub, ok := raw.(ed25519.PublicKey)
		if !ok {
			continue
		}

		kid, _ := key.KeyID()
		s.Keys = append(s.Keys, fromPublicKey(pub, kid))
	}

	if len(s.Keys) == 0 {
		return Set{}, ErrInvalidKeyType
	}

	return s, nil
}
