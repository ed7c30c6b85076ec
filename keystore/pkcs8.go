package keystore

import (
	"crypto/ed25519"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// pemLabel is the only PEM block type accepted and produced.
const pemLabel = "PRIVATE KEY"

// pkcs8Prefix is the fixed DER header of a PKCS8 PrivateKeyInfo wrapping a
// 32-byte Ed25519 seed (RFC 8410 Section 7).
var pkcs8Prefix = []byte{
	0x30, 0x2e, // SEQUENCE, 46 bytes
	0x02, 0x01, 0x00, // INTEGER 0
	0x30, 0x05, // SEQUENCE, 5 bytes
	0x06, 0x03, 0x2b, 0x65, 0x70, // OID 1.3.101.112
	0x04, 0x22, // OCTET STRING, 34 bytes
	0x04, 0x20, // OCTET STRING, 32 bytes
}

var oidEd25519 = asn1.ObjectIdentifier{1, 3, 101, 112}

// ParsePrivateKey decodes Ed25519 key material. data is PEM text, or PEM
// text wrapped in standard base64; the form is detected from the trimmed
// content.
func ParsePrivateKey(data []byte) (ed25519.PrivateKey, error) {
	text := strings.TrimSpace(string(data))

	if decoded, err := base64.StdEncoding.DecodeString(text); err == nil {
		if !utf8.Valid(decoded) {
			return nil, fmt.Errorf("%w: base64 key text is not UTF-8", ErrEncoding)
		}

		text = string(decoded)
	}

	block, _ := pem.Decode([]byte(text))
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrKeyFormat)
	}

	if block.Type != pemLabel {
		return nil, fmt.Errorf("%w: PEM label %q, want %q", ErrKeyFormat, block.Type, pemLabel)
	}

	seed, err := parsePKCS8Seed(block.Bytes)
	if err != nil {
		return nil, err
	}

	return ed25519.NewKeyFromSeed(seed), nil
}

// parsePKCS8Seed reads a PKCS8 PrivateKeyInfo and returns the Ed25519
// seed. The private key field is itself an OCTET STRING (CurvePrivateKey);
// its 2-byte tag and length are skipped and the trailing 32 bytes are the
// seed. Optional attributes and public key fields are ignored.
func parsePKCS8Seed(der []byte) ([]byte, error) {
	var (
		input   = cryptobyte.String(der)
		info    cryptobyte.String
		algo    cryptobyte.String
		version int64
		oid     asn1.ObjectIdentifier
		private cryptobyte.String
	)

	if !input.ReadASN1(&info, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, fmt.Errorf("%w: malformed PKCS8 structure", ErrKeyFormat)
	}

	if !info.ReadASN1Integer(&version) ||
		!info.ReadASN1(&algo, cbasn1.SEQUENCE) ||
		!algo.ReadASN1ObjectIdentifier(&oid) ||
		!info.ReadASN1(&private, cbasn1.OCTET_STRING) {
		return nil, fmt.Errorf("%w: malformed PKCS8 structure", ErrKeyFormat)
	}

	if !oid.Equal(oidEd25519) {
		return nil, fmt.Errorf("%w: algorithm %s is not Ed25519", ErrKeyFormat, oid)
	}

	if len(private) < 2 {
		return nil, ErrInvalidPrivateKeyLength
	}

	raw := private[2:]
	if len(raw) < ed25519.SeedSize {
		return nil, ErrInvalidPrivateKeyLength
	}

	return []byte(raw[len(raw)-ed25519.SeedSize:]), nil
}

// MarshalPrivateKey encodes key as a PEM "PRIVATE KEY" block holding the
// fixed PKCS8 wrapper and the 32-byte seed.
func MarshalPrivateKey(key ed25519.PrivateKey) ([]byte, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: ed25519 private key must be %d bytes", ErrKeyFormat, ed25519.PrivateKeySize)
	}

	der := make([]byte, 0, len(pkcs8Prefix)+ed25519.SeedSize)
	der = append(der, pkcs8Prefix...)
	der = append(der, key.Seed()...)

	return pem.EncodeToMemory(&pem.Block{Type: pemLabel, Bytes: der}), nil
}
