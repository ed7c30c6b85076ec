package httpsig

import (
	"bytes"
	"encoding/base64"
	"io"
	"net/http"
	"time"
)

// SignatureHeaders are the header values produced by signing.
type SignatureHeaders struct {
	Signature      string `json:"signature"`
	SignatureInput string `json:"signature_input"`
}

// Apply sets Signature and Signature-Input on h.
func (s SignatureHeaders) Apply(h Headers) {
	h.Set("Signature", s.Signature)
	h.Set("Signature-Input", s.SignatureInput)
}

// SignConfig configures request signing.
type SignConfig struct {
	// Signer produces signatures. Required.
	Signer Signer

	// Policy selects the covered components. Defaults to ConditionalPolicy.
	Policy ComponentPolicy

	// Label identifies the signature in Signature-Input. Defaults to "sig1".
	Label string

	// Now returns the signing time. Defaults to time.Now.
	Now func() time.Time

	// Metrics, when set, counts produced signatures.
	Metrics *Metrics
}

// Sign signs the UTF-8 bytes of base. Ed25519 signing is deterministic:
// the same base and key always give the same signature.
func Sign(base string, s Signer) ([]byte, error) {
	if s == nil {
		return nil, ErrNoSigner
	}

	return s.Sign([]byte(base))
}

// CreateHeaders computes Content-Digest and Content-Length when r has a
// body, selects the covered components, stamps created with the current
// unix time and returns the Signature and Signature-Input values. The
// content headers are set on r; the signature headers are not.
func CreateHeaders(r Request, cfg SignConfig) (SignatureHeaders, error) {
	if cfg.Signer == nil {
		return SignatureHeaders{}, ErrNoSigner
	}

	policy := cfg.Policy
	if policy == nil {
		policy = ConditionalPolicy
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	SetContentHeaders(r)

	in := SignatureInput{
		Label:      cfg.Label,
		Components: policy.Components(r),
		Created:    now().Unix(),
		KeyID:      cfg.Signer.KeyID(),
	}

	sig, err := Sign(BuildSignatureBase(r, in), cfg.Signer)
	if err != nil {
		return SignatureHeaders{}, err
	}

	cfg.Metrics.signed()

	return SignatureHeaders{
		Signature:      base64.StdEncoding.EncodeToString(sig),
		SignatureInput: in.String(),
	}, nil
}

// SignRequest signs r in place: content headers when r has a body, then
// Signature and Signature-Input.
//
// net/http writes Content-Length from r.ContentLength and ignores the
// header map, so the buffered body length is set on r as well. Otherwise a
// streamed body goes out chunked and the covered content-length is lost.
func SignRequest(r *http.Request, cfg SignConfig) error {
	req, err := FromHTTP(r)
	if err != nil {
		return err
	}

	headers, err := CreateHeaders(req, cfg)
	if err != nil {
		return err
	}

	if body, ok := req.Body(); ok {
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}

	headers.Apply(r.Header)

	return nil
}

// SetGNAPAuthorization sets the Authorization header to a GNAP access
// token. It must be called before signing so the header is covered.
func SetGNAPAuthorization(h Headers, token string) {
	h.Set("Authorization", "GNAP "+token)
}
