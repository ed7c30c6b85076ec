package httpsig

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEd25519Key(t *testing.T) ed25519.PrivateKey {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return priv
}

func TestNewEd25519Signer(t *testing.T) {
	t.Run("valid key", func(t *testing.T) {
		signer, err := NewEd25519Signer("key-1", testEd25519Key(t))
		require.NoError(t, err)
		assert.Equal(t, "key-1", signer.KeyID())
	})

	t.Run("blank key id", func(t *testing.T) {
		for _, kid := range []string{"", " \t"} {
			_, err := NewEd25519Signer(kid, testEd25519Key(t))
			assert.ErrorIs(t, err, ErrEmptyKeyID)
		}
	})

	t.Run("wrong key size", func(t *testing.T) {
		_, err := NewEd25519Signer("k", ed25519.PrivateKey(make([]byte, 31)))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})

	t.Run("signature is 64 bytes and deterministic", func(t *testing.T) {
		signer, err := NewEd25519Signer("k", testEd25519Key(t))
		require.NoError(t, err)

		a, err := signer.Sign([]byte("message"))
		require.NoError(t, err)
		b, err := signer.Sign([]byte("message"))
		require.NoError(t, err)

		assert.Len(t, a, ed25519.SignatureSize)
		assert.Equal(t, a, b)
	})
}

func TestNewEd25519Verifier(t *testing.T) {
	priv := testEd25519Key(t)
	pub := priv.Public().(ed25519.PublicKey)
	sig := ed25519.Sign(priv, []byte("message"))

	t.Run("valid signature", func(t *testing.T) {
		v, err := NewEd25519Verifier(pub)
		require.NoError(t, err)
		assert.NoError(t, v.Verify([]byte("message"), sig))
	})

	t.Run("other message", func(t *testing.T) {
		v, err := NewEd25519Verifier(pub)
		require.NoError(t, err)
		assert.ErrorIs(t, v.Verify([]byte("massage"), sig), ErrValidation)
	})

	t.Run("truncated signature", func(t *testing.T) {
		v, err := NewEd25519Verifier(pub)
		require.NoError(t, err)
		assert.ErrorIs(t, v.Verify([]byte("message"), sig[:63]), ErrValidation)
	})

	t.Run("other key", func(t *testing.T) {
		other := testEd25519Key(t).Public().(ed25519.PublicKey)

		v, err := NewEd25519Verifier(other)
		require.NoError(t, err)
		assert.ErrorIs(t, v.Verify([]byte("message"), sig), ErrValidation)
	})

	t.Run("wrong key size", func(t *testing.T) {
		_, err := NewEd25519Verifier(ed25519.PublicKey(make([]byte, 16)))
		assert.ErrorIs(t, err, ErrInvalidKey)
	})
}
