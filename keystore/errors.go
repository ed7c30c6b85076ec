package keystore

import (
	"errors"
	"fmt"
)

var (
	// ErrIO is returned when the key file or its lock cannot be read or
	// written.
	ErrIO = errors.New("keystore: io failure")

	// ErrEncoding is returned when base64-wrapped key text does not decode
	// to UTF-8.
	ErrEncoding = errors.New("keystore: invalid encoding")

	// ErrKeyFormat is returned for a missing or mislabeled PEM block or a
	// malformed PKCS8 structure.
	ErrKeyFormat = errors.New("keystore: invalid key format")

	// ErrInvalidPrivateKeyLength is returned when the PKCS8 private key
	// field holds fewer than 32 seed bytes.
	ErrInvalidPrivateKeyLength = fmt.Errorf("%w: invalid private key length", ErrKeyFormat)
)
