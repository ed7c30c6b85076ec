package httpsig

import "errors"

// Signing errors.
var (
	// ErrNoSigner is returned when SignConfig has no Signer configured.
	ErrNoSigner = errors.New("httpsig: signer must not be nil")

	// ErrEmptyKeyID is returned when a signer is created with a blank key id.
	ErrEmptyKeyID = errors.New("httpsig: key id must not be empty")

	// ErrInvalidHeaderValue is returned by Transport when a header value
	// cannot be sent on the wire (non-ASCII or control bytes).
	ErrInvalidHeaderValue = errors.New("httpsig: invalid header value")
)

// Verification errors.
var (
	// ErrNoResolver is returned when VerifyConfig has no KeyResolver configured.
	ErrNoResolver = errors.New("httpsig: key resolver must not be nil")

	// ErrValidation is returned for every signature verification failure:
	// missing or malformed headers, a bad signature input, a signature of the
	// wrong length, or a signature that does not verify. The cause is never
	// exposed to the caller.
	ErrValidation = errors.New("httpsig: signature validation failed")
)

// Key material errors.
var (
	// ErrInvalidKey is returned when key material has the wrong size.
	ErrInvalidKey = errors.New("httpsig: invalid key material")
)

// Digest errors.
var (
	// ErrDigestMismatch is returned when Content-Digest verification fails.
	ErrDigestMismatch = errors.New("httpsig: content digest mismatch")

	// ErrDigestNotFound is returned when Content-Digest header is required
	// but not present.
	ErrDigestNotFound = errors.New("httpsig: content digest not found")
)
