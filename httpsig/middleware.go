package httpsig

import (
	"context"
	"net/http"
)

// MiddlewareConfig configures the verifying middleware.
type MiddlewareConfig struct {
	Verify VerifyConfig

	// OnError writes the rejection. The error is always ErrValidation.
	// Defaults to a 401 with {"error":"invalid signature"}.
	OnError func(w http.ResponseWriter, r *http.Request, err error)
}

type signatureInputKey struct{}

// SignatureInputFromContext returns the parameters of the signature the
// middleware verified for this request.
func SignatureInputFromContext(ctx context.Context) (SignatureInput, bool) {
	in, ok := ctx.Value(signatureInputKey{}).(SignatureInput)
	return in, ok
}

// Middleware rejects requests whose signature does not verify under cfg.
// Accepted requests reach next with the body intact and the verified
// SignatureInput in the context.
func Middleware(cfg MiddlewareConfig) (func(http.Handler) http.Handler, error) {
	if cfg.Verify.Resolver == nil {
		return nil, ErrNoResolver
	}

	onError := cfg.OnError
	if onError == nil {
		onError = WriteInvalidSignature
	}

	verifyCfg := cfg.Verify

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			in, err := verifyAndRecord(r, verifyCfg)
			if err != nil {
				onError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), signatureInputKey{}, in)))
		})
	}, nil
}

// WriteInvalidSignature writes the uniform rejection: 401 with
// {"error":"invalid signature"}.
func WriteInvalidSignature(w http.ResponseWriter, _ *http.Request, _ error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"invalid signature"}` + "\n"))
}
