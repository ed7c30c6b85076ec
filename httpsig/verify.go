package httpsig

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"go.uber.org/zap"
)

// KeyResolver returns the public key for keyID. The request is provided
// for context (e.g., to select keys based on the request host or path).
type KeyResolver func(r *http.Request, keyID string) (ed25519.PublicKey, error)

// VerifyConfig configures server-side verification.
type VerifyConfig struct {
	// Resolver looks up the public key for the signature's keyid. Required.
	Resolver KeyResolver

	// Policy selects the components a signature on the request must cover.
	// It should match the signer's policy. Defaults to ConditionalPolicy.
	Policy ComponentPolicy

	// RequiredComponents must all be covered by the signature, on top of
	// what Policy selects.
	RequiredComponents []Component

	// RequireDigest requires a Content-Digest header matching the body.
	// The digest is always checked when content-digest is covered.
	RequireDigest bool

	// Logger receives the real failure cause at debug level. Defaults to a
	// no-op logger.
	Logger *zap.Logger

	// Metrics, when set, counts validation outcomes.
	Metrics *Metrics
}

// Validate checks the Signature and Signature-Input values in headers
// against r and pub. Both headers must be present, the base is rebuilt
// from the parsed parameters, the signature must decode to 64 bytes and
// verify. Every failure is reported as ErrValidation with no detail.
func Validate(r Request, headers Headers, pub ed25519.PublicKey) error {
	if err := validate(r, headers, pub); err != nil {
		return ErrValidation
	}

	return nil
}

// validate is Validate with the failure cause kept for logging.
func validate(r Request, headers Headers, pub ed25519.PublicKey) error {
	rawInput := headers.Get("Signature-Input")
	if rawInput == "" {
		return fmt.Errorf("%w: missing Signature-Input header", ErrValidation)
	}

	rawSig := headers.Get("Signature")
	if rawSig == "" {
		return fmt.Errorf("%w: missing Signature header", ErrValidation)
	}

	in, err := ParseSignatureInput(rawInput)
	if err != nil {
		return err
	}

	return checkSignature(r, in, rawSig, pub)
}

func checkSignature(r Request, in SignatureInput, rawSig string, pub ed25519.PublicKey) error {
	sig, err := decodeSignature(rawSig, in.Label)
	if err != nil {
		return err
	}

	if len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("%w: signature must be %d bytes", ErrValidation, ed25519.SignatureSize)
	}

	verifier, err := NewEd25519Verifier(pub)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return verifier.Verify([]byte(BuildSignatureBase(r, in)), sig)
}

// decodeSignature accepts the plain base64 form produced by this package
// and the RFC 9421 dictionary form "<label>=:<base64>:".
func decodeSignature(raw, label string) ([]byte, error) {
	raw = strings.TrimSpace(raw)

	if key, value, ok := strings.Cut(raw, "="); ok && len(value) >= 2 && value[0] == ':' && value[len(value)-1] == ':' {
		if strings.TrimSpace(key) != label {
			return nil, fmt.Errorf("%w: signature label %q not found", ErrValidation, label)
		}

		raw = value[1 : len(value)-1]
	}

	sig, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 in signature", ErrValidation)
	}

	return sig, nil
}

// CheckCoverage reports ErrValidation when in does not cover every
// component policy selects for r. Extra components are allowed. A nil
// policy means ConditionalPolicy.
func CheckCoverage(r Request, in SignatureInput, policy ComponentPolicy) error {
	if policy == nil {
		policy = ConditionalPolicy
	}

	for _, c := range policy.Components(r) {
		if !slices.Contains(in.Components, c) {
			return fmt.Errorf("%w: component %s not covered", ErrValidation, c)
		}
	}

	return nil
}

// VerifyRequest verifies the signature on an incoming request, resolving
// the public key from the signature's keyid. Failures are logged with
// their cause and returned as ErrValidation.
func VerifyRequest(r *http.Request, cfg VerifyConfig) error {
	_, err := verifyAndRecord(r, cfg)
	return err
}

// verifyAndRecord is VerifyRequest returning the verified parameters.
func verifyAndRecord(r *http.Request, cfg VerifyConfig) (SignatureInput, error) {
	if cfg.Resolver == nil {
		return SignatureInput{}, ErrNoResolver
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	in, err := verifyRequest(r, cfg)
	cfg.Metrics.validated(err)

	if err != nil {
		log.Debug("signature validation failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)

		return SignatureInput{}, ErrValidation
	}

	return in, nil
}

func verifyRequest(r *http.Request, cfg VerifyConfig) (SignatureInput, error) {
	req, err := FromHTTP(r)
	if err != nil {
		return SignatureInput{}, fmt.Errorf("%w: read body: %w", ErrValidation, err)
	}

	in, err := ParseSignatureInput(r.Header.Get("Signature-Input"))
	if err != nil {
		return SignatureInput{}, err
	}

	if err := CheckCoverage(req, in, cfg.Policy); err != nil {
		return SignatureInput{}, err
	}

	for _, c := range cfg.RequiredComponents {
		if !slices.Contains(in.Components, c) {
			return SignatureInput{}, fmt.Errorf("%w: required component %s not covered", ErrValidation, c)
		}
	}

	if cfg.RequireDigest || slices.Contains(in.Components, ComponentContentDigest) {
		if err := VerifyContentDigest(req); err != nil {
			return SignatureInput{}, fmt.Errorf("%w: %w", ErrValidation, err)
		}
	}

	pub, err := cfg.Resolver(r, in.KeyID)
	if err != nil {
		return SignatureInput{}, fmt.Errorf("%w: resolve key %q: %w", ErrValidation, in.KeyID, err)
	}

	if err := validate(req, r.Header, pub); err != nil {
		return SignatureInput{}, err
	}

	return in, nil
}
