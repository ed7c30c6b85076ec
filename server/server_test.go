package server

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vitalvas/paysig/httpsig"
	"github.com/vitalvas/paysig/jwks"
)

type fixture struct {
	server  *httptest.Server
	signer  httpsig.Signer
	set     jwks.Set
	metrics *httpsig.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	set, err := jwks.NewSet(priv, "server-key")
	require.NoError(t, err)

	signer, err := httpsig.NewEd25519Signer("server-key", priv)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics, err := httpsig.NewMetrics(reg)
	require.NoError(t, err)

	resolver := func(_ *http.Request, keyID string) (ed25519.PublicKey, error) {
		return set.Lookup(keyID)
	}

	srv, err := New(Config{
		JWKS:     set,
		Verify:   httpsig.VerifyConfig{Resolver: resolver, Metrics: metrics},
		Gatherer: reg,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &fixture{server: ts, signer: signer, set: set, metrics: metrics}
}

func (f *fixture) signingClient() *http.Client {
	return &http.Client{Transport: httpsig.NewTransport(nil, httpsig.SignConfig{Signer: f.signer, Metrics: f.metrics})}
}

func TestNew(t *testing.T) {
	t.Run("requires a resolver", func(t *testing.T) {
		_, err := New(Config{})
		assert.ErrorIs(t, err, httpsig.ErrNoResolver)
	})
}

func TestJWKSEndpoint(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/jwks.json", "/.well-known/jwks.json"} {
		t.Run(path, func(t *testing.T) {
			resp, err := http.Get(f.server.URL + path)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			assert.Equal(t, "public, max-age=300", resp.Header.Get("Cache-Control"))

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			want, err := f.set.Marshal()
			require.NoError(t, err)
			assert.Equal(t, string(want), string(body))
		})
	}

	t.Run("resolver reads the published document", func(t *testing.T) {
		r := jwks.NewResolver(f.server.URL + "/jwks.json")

		pub, err := r.Resolve(nil, "server-key")
		require.NoError(t, err)

		want, err := f.set.Lookup("server-key")
		require.NoError(t, err)
		assert.Equal(t, want, pub)
	})
}

func TestVerifyEndpoint(t *testing.T) {
	f := newFixture(t)

	t.Run("signed request", func(t *testing.T) {
		resp, err := f.signingClient().Post(f.server.URL+"/verify", "application/json", strings.NewReader(`{"amount":10}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var got VerifyResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))

		assert.True(t, got.Valid)
		assert.Equal(t, "server-key", got.KeyID)
		assert.Equal(t, 13, got.BodyLength)
		assert.Equal(t, []string{"@method", "@target-uri", "content-type", "content-digest", "content-length"}, got.Components)
		assert.InDelta(t, time.Now().Unix(), got.Created, 5)
	})

	t.Run("unsigned request", func(t *testing.T) {
		resp, err := http.Post(f.server.URL+"/verify", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		var got map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "invalid signature", got["error"])
	})

	t.Run("unknown key", func(t *testing.T) {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		require.NoError(t, err)

		other, err := httpsig.NewEd25519Signer("other-key", priv)
		require.NoError(t, err)

		client := &http.Client{Transport: httpsig.NewTransport(nil, httpsig.SignConfig{Signer: other})}

		resp, err := client.Post(f.server.URL+"/verify", "application/json", strings.NewReader(`{}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("metrics reflect outcomes", func(t *testing.T) {
		resp, err := http.Get(f.server.URL + "/metrics")
		require.NoError(t, err)
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		assert.Contains(t, string(body), `httpsig_validations_total{result="valid"} 1`)
		assert.Contains(t, string(body), `httpsig_validations_total{result="invalid"} 2`)
		assert.Contains(t, string(body), "httpsig_signatures_created_total 1")
	})
}

func TestVerifyBehindProxy(t *testing.T) {
	f := newFixture(t)

	srv, err := New(Config{
		JWKS: f.set,
		Verify: httpsig.VerifyConfig{Resolver: func(_ *http.Request, keyID string) (ed25519.PublicKey, error) {
			return f.set.Lookup(keyID)
		}},
		Gatherer:       prometheus.NewRegistry(),
		TrustedProxies: []string{"192.0.2.0/24"},
	})
	require.NoError(t, err)

	signed := httptest.NewRequest(http.MethodPost, "https://wallet.example/verify", strings.NewReader(`{"amount":10}`))
	signed.Header.Set("Content-Type", "application/json")
	require.NoError(t, httpsig.SignRequest(signed, httpsig.SignConfig{Signer: f.signer}))

	forward := func(headers map[string]string) int {
		req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"amount":10}`))
		req.Host = "paysig.internal:8080"
		req.RemoteAddr = "192.0.2.10:5000"
		req.Header = signed.Header.Clone()
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)

		return w.Code
	}

	t.Run("forwarded scheme and host", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, forward(map[string]string{
			"X-Forwarded-Proto": "https",
			"X-Forwarded-Host":  "wallet.example",
		}))
	})

	t.Run("without forwarding headers", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, forward(nil))
	})

	t.Run("invalid trusted proxy", func(t *testing.T) {
		_, err := New(Config{
			Verify:         httpsig.VerifyConfig{Resolver: func(*http.Request, string) (ed25519.PublicKey, error) { return nil, nil }},
			TrustedProxies: []string{"not-an-ip"},
		})
		assert.ErrorIs(t, err, ErrInvalidProxy)
	})
}

func TestVerifyBodyLimit(t *testing.T) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	set, err := jwks.NewSet(priv, "server-key")
	require.NoError(t, err)

	signer, err := httpsig.NewEd25519Signer("server-key", priv)
	require.NoError(t, err)

	srv, err := New(Config{
		JWKS: set,
		Verify: httpsig.VerifyConfig{Resolver: func(_ *http.Request, keyID string) (ed25519.PublicKey, error) {
			return set.Lookup(keyID)
		}},
		Gatherer:     prometheus.NewRegistry(),
		MaxBodyBytes: 16,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{Transport: httpsig.NewTransport(nil, httpsig.SignConfig{Signer: signer})}

	t.Run("within limit", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/verify", "application/json", strings.NewReader(`{"amount":10}`))
		require.NoError(t, err)
		resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("oversize signed body", func(t *testing.T) {
		resp, err := client.Post(ts.URL+"/verify", "application/json", strings.NewReader(`{"amount":1000000000000}`))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

		var got map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
		assert.Equal(t, "request body too large", got["error"])
	})
}

func TestBodyLimit(t *testing.T) {
	t.Run("rejects non positive limits", func(t *testing.T) {
		for _, n := range []int64{0, -1} {
			_, err := BodyLimit(n)
			assert.ErrorIs(t, err, ErrInvalidMaxBodySize)
		}
	})

	mw, err := BodyLimit(5)
	require.NoError(t, err)

	var got string
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name     string
		body     io.Reader
		length   int64
		wantCode int
		wantBody string
	}{
		{"exactly at limit", strings.NewReader("hello"), 5, http.StatusOK, "hello"},
		{"declared too large", strings.NewReader("hello world"), 11, http.StatusRequestEntityTooLarge, ""},
		{"streamed too large", io.MultiReader(strings.NewReader("hello world")), -1, http.StatusRequestEntityTooLarge, ""},
		{"no body", nil, 0, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = ""

			req := httptest.NewRequest(http.MethodPost, "/verify", tt.body)
			req.ContentLength = tt.length

			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, got)
		})
	}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)

	resp, err := http.Get(f.server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(zap.NewNop())(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	t.Run("generated when absent", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		id := w.Header().Get(RequestIDHeader)
		_, err := uuid.Parse(id)
		require.NoError(t, err)
		assert.Equal(t, id, seen)
	})

	t.Run("valid incoming id is kept", func(t *testing.T) {
		incoming := uuid.NewString()

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, incoming)

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.Equal(t, incoming, w.Header().Get(RequestIDHeader))
		assert.Equal(t, incoming, seen)
	})

	t.Run("malformed incoming id is replaced", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, "<script>")

		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)

		assert.NotEqual(t, "<script>", w.Header().Get(RequestIDHeader))
	})

	t.Run("empty context", func(t *testing.T) {
		assert.Empty(t, RequestIDFromContext(context.Background()))
	})
}

func TestRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	h := RequestID(zap.New(core))(Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/explode", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)

	entries := logs.FilterMessage("handler panic").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/explode", entries[0].ContextMap()["path"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	h := RequestID(zap.New(core))(AccessLog(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tea", nil))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	assert.Equal(t, int64(http.StatusTeapot), entries[0].ContextMap()["status"])
}

func TestServe(t *testing.T) {
	f := newFixture(t)

	srv, err := New(Config{
		JWKS: f.set,
		Verify: httpsig.VerifyConfig{Resolver: func(*http.Request, string) (ed25519.PublicKey, error) {
			return nil, jwks.ErrKeyNotFound
		}},
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()

		return resp.StatusCode == http.StatusNoContent
	}, 2*time.Second, 20*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
