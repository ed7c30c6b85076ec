// Package httpsig signs and verifies HTTP requests with Ed25519 over a
// deterministic signature base, with Content-Digest support per RFC 9530.
//
// The signature base covers an ordered set of components chosen by a
// ComponentPolicy. Signer and verifier must produce byte-identical bases,
// so header values are looked up case-insensitively and missing headers
// contribute an empty value rather than an error.
//
// # Headers
//
//	Signature-Input: sig1=(@method @target-uri content-type);created=1700000000;keyid="my-key"
//	Signature:       <base64 of the 64-byte Ed25519 signature>
//	Content-Digest:  sha-512=:<base64 SHA-512 of the body>:
//	Content-Length:  <body length>
//
// Content-Digest and Content-Length are only produced for requests with a
// body.
//
// # Signing Requests
//
// CreateHeaders works on any Request; SignRequest signs a *http.Request in
// place:
//
//	signer, err := httpsig.NewEd25519Signer("my-key", privateKey)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	err = httpsig.SignRequest(req, httpsig.SignConfig{
//	    Signer: signer,
//	    Policy: httpsig.ConditionalPolicy,
//	})
//
// # Verifying Requests
//
// Validate checks headers against a known public key. VerifyRequest and
// Middleware resolve the key from the signature's keyid:
//
//	mw, err := httpsig.Middleware(httpsig.MiddlewareConfig{
//	    Verify: httpsig.VerifyConfig{
//	        Resolver: func(r *http.Request, keyID string) (ed25519.PublicKey, error) {
//	            return publicKey, nil
//	        },
//	        Policy: httpsig.ConditionalPolicy,
//	    },
//	})
//
// The verifier requires the signature to cover every component its Policy
// selects for the received request, so a signature over fewer components
// than the signer's policy produces is rejected.
//
// All verification failures are reported as ErrValidation, whatever the
// underlying cause.
//
// # Client Transport
//
// NewTransport creates an http.RoundTripper that signs every outgoing
// request. Pass nil for a clone of http.DefaultTransport:
//
//	client := &http.Client{
//	    Transport: httpsig.NewTransport(nil, httpsig.SignConfig{
//	        Signer: signer,
//	    }),
//	}
package httpsig
