package httpsig

import (
	"fmt"
	"net/http"

	"golang.org/x/net/http/httpguts"
)

// Transport is an http.RoundTripper that signs outgoing requests.
//
// Use NewTransport to create a Transport with a configured *http.Transport
// for proxy, TLS, and timeout settings.
type Transport struct {
	base   http.RoundTripper
	config SignConfig
}

// NewTransport creates a signing Transport that delegates to base after
// signing each request. When base is nil, a clone of http.DefaultTransport
// is used, giving an independent connection pool with default proxy, TLS,
// and timeout settings.
func NewTransport(base *http.Transport, cfg SignConfig) *Transport {
	var rt http.RoundTripper
	if base != nil {
		rt = base
	} else {
		rt = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Transport{
		base:   rt,
		config: cfg,
	}
}

// RoundTrip signs the request and then delegates to the base transport.
// The original request is cloned before signing to avoid mutation.
// When GetBody is available, the clone receives its own body copy so
// that digest computation does not consume the caller's body.
//
// Header values that cannot be sent as ASCII are rejected here, before
// anything is written to the wire.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())

	if clone.Body != nil && req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}

		clone.Body = body
	}

	if err := SignRequest(clone, t.config); err != nil {
		return nil, err
	}

	if err := checkHeaders(clone.Header); err != nil {
		return nil, err
	}

	return t.base.RoundTrip(clone)
}

// checkHeaders rejects header names and values that are not valid on the
// wire or contain bytes outside printable ASCII.
func checkHeaders(h http.Header) error {
	for name, values := range h {
		if !httpguts.ValidHeaderFieldName(name) {
			return fmt.Errorf("%w: header name %q", ErrInvalidHeaderValue, name)
		}

		for _, v := range values {
			if !httpguts.ValidHeaderFieldValue(v) || !isPrintableASCII(v) {
				return fmt.Errorf("%w: header %s", ErrInvalidHeaderValue, name)
			}
		}
	}

	return nil
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c != '\t' && (c < 0x20 || c > 0x7e) {
			return false
		}
	}

	return true
}
