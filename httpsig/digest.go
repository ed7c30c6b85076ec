package httpsig

import (
	"bytes"
	"crypto/sha512"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// DigestAlgorithm is the Content-Digest algorithm key (RFC 9530). Only
// SHA-512 is produced.
const DigestAlgorithm = "sha-512"

// ContentDigest is the computed Content-Digest and Content-Length pair for
// a request body.
type ContentDigest struct {
	// Value is the structured field value, "sha-512=:<base64>:".
	Value string

	// Length is the body length in bytes.
	Length int
}

// ComputeContentDigest hashes body with SHA-512. It returns false when
// there is no body, in which case content-digest and content-length must
// not be covered.
func ComputeContentDigest(body []byte, present bool) (ContentDigest, bool) {
	if !present {
		return ContentDigest{}, false
	}

	sum := sha512.Sum512(body)

	return ContentDigest{
		Value:  fmt.Sprintf("%s=:%s:", DigestAlgorithm, base64.StdEncoding.EncodeToString(sum[:])),
		Length: len(body),
	}, true
}

// SetContentHeaders sets Content-Digest and Content-Length on r when it has
// a body. It reports whether the headers were set.
func SetContentHeaders(r Request) bool {
	digest, ok := ComputeContentDigest(r.Body())
	if !ok {
		return false
	}

	r.Header().Set("Content-Digest", digest.Value)
	r.Header().Set("Content-Length", strconv.Itoa(digest.Length))

	return true
}

// VerifyContentDigest checks the Content-Digest header against the body of
// r. Only the sha-512 member is checked; other members are ignored.
func VerifyContentDigest(r Request) error {
	header := r.Header().Get("Content-Digest")
	if header == "" {
		return ErrDigestNotFound
	}

	body, _ := r.Body()
	expected := sha512.Sum512(body)

	for _, entry := range splitQuoteAware(header, ',') {
		alg, encoded, ok := parseDigestEntry(entry)
		if !ok || alg != DigestAlgorithm {
			continue
		}

		actual, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("%w: invalid base64 in digest", ErrDigestMismatch)
		}

		if !bytes.Equal(expected[:], actual) {
			return ErrDigestMismatch
		}

		return nil
	}

	return ErrDigestNotFound
}

// parseDigestEntry parses a single "alg=:base64:" member.
func parseDigestEntry(entry string) (string, string, bool) {
	alg, value, ok := strings.Cut(entry, "=")
	if !ok {
		return "", "", false
	}

	value = strings.TrimSpace(value)
	if len(value) < 2 || value[0] != ':' || value[len(value)-1] != ':' {
		return "", "", false
	}

	return strings.TrimSpace(alg), value[1 : len(value)-1], true
}
