package httpsig

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Component is a covered component identifier. The set is closed: derived
// components start with "@", the rest are lowercased header names.
type Component string

const (
	ComponentMethod        Component = "@method"
	ComponentTargetURI     Component = "@target-uri"
	ComponentAuthorization Component = "authorization"
	ComponentContentDigest Component = "content-digest"
	ComponentContentLength Component = "content-length"
	ComponentContentType   Component = "content-type"
)

// String returns the identifier as it appears in the signature base.
func (c Component) String() string {
	return string(c)
}

// Headers is a case-insensitive header map. http.Header satisfies it.
type Headers interface {
	Get(name string) string
	Set(name, value string)
}

// Request is the view of an HTTP request the canonicalizer works on.
type Request interface {
	// Method returns the request method.
	Method() string

	// TargetURI returns the absolute request URI.
	TargetURI() string

	// Header returns the mutable request headers.
	Header() Headers

	// Body returns the request body and whether one is present. An empty
	// but present body is reported as ([]byte{}, true).
	Body() ([]byte, bool)
}

// Message is a self-contained Request value, used by callers that do not
// hold a net/http request (CLIs, tests, other transports).
type Message struct {
	method    string
	targetURI string
	header    http.Header
	body      []byte
	hasBody   bool
}

// NewMessage returns a bodyless Message. An absolute targetURI with an
// empty path is normalized to "/".
func NewMessage(method, targetURI string) *Message {
	if u, err := url.Parse(targetURI); err == nil && u.IsAbs() {
		targetURI = normalizeURL(u)
	}

	return &Message{
		method:    method,
		targetURI: targetURI,
		header:    make(http.Header),
	}
}

// WithBody attaches body to the message and returns it.
func (m *Message) WithBody(body []byte) *Message {
	m.body = body
	m.hasBody = true

	return m
}

func (m *Message) Method() string       { return m.method }
func (m *Message) TargetURI() string    { return m.targetURI }
func (m *Message) Header() Headers      { return m.header }
func (m *Message) Body() ([]byte, bool) { return m.body, m.hasBody }

// HTTPHeader exposes the underlying header map.
func (m *Message) HTTPHeader() http.Header {
	return m.header
}

// httpRequest adapts *http.Request. The body is buffered once and restored
// on the wrapped request so it can still be sent or handled.
type httpRequest struct {
	r       *http.Request
	body    []byte
	hasBody bool
}

// FromHTTP wraps r as a Request. The body, if any, is read fully and put
// back on r.
func FromHTTP(r *http.Request) (Request, error) {
	body, ok, err := readAndRestoreBody(r)
	if err != nil {
		return nil, err
	}

	return &httpRequest{r: r, body: body, hasBody: ok}, nil
}

func (h *httpRequest) Method() string       { return h.r.Method }
func (h *httpRequest) TargetURI() string    { return targetURI(h.r) }
func (h *httpRequest) Header() Headers      { return h.r.Header }
func (h *httpRequest) Body() ([]byte, bool) { return h.body, h.hasBody }

// componentValue extracts the value of a covered component. Header-sourced
// components that are absent yield an empty string so canonicalization is
// total.
func componentValue(c Component, r Request) string {
	switch c {
	case ComponentMethod:
		return strings.ToUpper(r.Method())

	case ComponentTargetURI:
		return r.TargetURI()

	default:
		return r.Header().Get(string(c))
	}
}

// targetURI reconstructs the full target URI. Outbound requests carry an
// absolute URL; server-side requests only carry the path, so scheme and
// authority are rebuilt from the connection and Host. A scheme without a
// host, as set by a proxy header middleware, only selects the scheme.
func targetURI(r *http.Request) string {
	if r.URL != nil && r.URL.IsAbs() && r.URL.Host != "" {
		return normalizeURL(r.URL)
	}

	u := url.URL{
		Scheme: scheme(r),
		Host:   authority(r),
	}

	if r.URL != nil {
		u.Path = r.URL.Path
		u.RawPath = r.URL.RawPath
		u.RawQuery = r.URL.RawQuery
	}

	return normalizeURL(&u)
}

func normalizeURL(u *url.URL) string {
	if u.Path != "" || u.Opaque != "" {
		return u.String()
	}

	c := *u
	c.Path = "/"
	c.RawPath = ""

	return c.String()
}

// authority returns host[:port] for the request.
func authority(r *http.Request) string {
	if r.Host != "" {
		return strings.ToLower(r.Host)
	}

	if r.URL != nil && r.URL.Host != "" {
		return strings.ToLower(r.URL.Host)
	}

	return ""
}

// scheme returns the request scheme (http or https).
func scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}

	if r.URL != nil && r.URL.Scheme != "" {
		return strings.ToLower(r.URL.Scheme)
	}

	return "http"
}

// readAndRestoreBody reads the entire request body and replaces it with a
// new reader so the body can be consumed again. A nil body or http.NoBody
// is reported as absent.
func readAndRestoreBody(r *http.Request) ([]byte, bool, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, false, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, false, err
	}

	r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(body))

	return body, true, nil
}
