// Package server publishes the signing key as a JWKS document and exposes
// a signature verified echo endpoint for peers testing their integration.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vitalvas/paysig/httpsig"
	"github.com/vitalvas/paysig/internal/logger"
	"github.com/vitalvas/paysig/jwks"
)

const (
	// DefaultMaxBodyBytes caps /verify bodies when Config.MaxBodyBytes is
	// zero.
	DefaultMaxBodyBytes = 1 << 20

	jwksCacheMaxAge   = 300
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Config holds the server dependencies.
type Config struct {
	// Addr is the listen address used by Run.
	Addr string

	// JWKS is the document served on /jwks.json.
	JWKS jwks.Set

	// Verify configures signature verification on /verify. Resolver is
	// required.
	Verify httpsig.VerifyConfig

	// Gatherer backs /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// MaxBodyBytes caps /verify bodies. Defaults to DefaultMaxBodyBytes.
	MaxBodyBytes int64

	// TrustedProxies may set the scheme, host and client address through
	// X-Forwarded-* headers. Defaults to DefaultTrustedProxies.
	TrustedProxies []string

	Logger *zap.Logger
}

// Server is the HTTP front of a signing identity.
type Server struct {
	addr    string
	handler http.Handler
	logger  *zap.Logger
}

// VerifyResponse is returned by POST /verify for a valid signature.
type VerifyResponse struct {
	Valid      bool     `json:"valid"`
	KeyID      string   `json:"keyid"`
	Created    int64    `json:"created"`
	Components []string `json:"components"`
	BodyLength int      `json:"body_length"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New builds the router.
func New(cfg Config) (*Server, error) {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	jwksDoc, err := cfg.JWKS.Marshal()
	if err != nil {
		return nil, fmt.Errorf("server: render jwks: %w", err)
	}

	verifyCfg := cfg.Verify
	if verifyCfg.Logger == nil {
		verifyCfg.Logger = log
	}

	verified, err := httpsig.Middleware(httpsig.MiddlewareConfig{Verify: verifyCfg})
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody == 0 {
		maxBody = DefaultMaxBodyBytes
	}

	limited, err := BodyLimit(maxBody)
	if err != nil {
		return nil, err
	}

	proxied, err := ProxyHeaders(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(proxied, RequestID(log), Recovery, AccessLog)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	r.Get("/jwks.json", jwksHandler(jwksDoc))
	r.Get("/.well-known/jwks.json", jwksHandler(jwksDoc))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(limited, verified)
		r.Post("/verify", verifyHandler)
	})

	return &Server{addr: cfg.Addr, handler: r, logger: log}, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.addr, err)
	}

	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("server listening", zap.String("addr", ln.Addr().String()))

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}

		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	s.logger.Info("server stopped")

	return nil
}

func jwksHandler(doc []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", jwksCacheMaxAge))
		w.Header().Set("X-Content-Type-Options", "nosniff")
		_, _ = w.Write(doc)
	}
}

// verifyHandler runs behind the verifying middleware.
func verifyHandler(w http.ResponseWriter, r *http.Request) {
	in, ok := httpsig.SignatureInputFromContext(r.Context())
	if !ok {
		httpsig.WriteInvalidSignature(w, r, httpsig.ErrValidation)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "unreadable body"})
		return
	}

	components := make([]string, 0, len(in.Components))
	for _, c := range in.Components {
		components = append(components, c.String())
	}

	logger.From(r.Context()).Debug("signature verified", zap.String("kid", in.KeyID))

	writeJSON(w, http.StatusOK, VerifyResponse{
		Valid:      true,
		KeyID:      in.KeyID,
		Created:    in.Created,
		Components: components,
		BodyLength: len(body),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
