// Package keystore loads the Ed25519 signing key from disk, generating and
// persisting a new one on first run.
//
// The key file is a PEM "PRIVATE KEY" block holding a PKCS8 wrapped
// Ed25519 seed. It may also be stored as that PEM text encoded in standard
// base64, which is how it usually travels through environment variables and
// secret stores; both forms are detected on load.
//
// Generation is serialized across processes with a lock file next to the
// key, so processes racing on a missing path all end up with the same key.
package keystore

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/vitalvas/paysig/internal/atomicfile"
)

const (
	// keyFileMode restricts a generated key file to its owner.
	keyFileMode fs.FileMode = 0o600

	defaultLockTimeout = 5 * time.Second
	lockRetryDelay     = 50 * time.Millisecond
)

type options struct {
	logger      *zap.Logger
	random      io.Reader
	lockTimeout time.Duration
}

// Option configures LoadOrGenerate.
type Option func(*options)

// WithLogger sets the logger used to report key loading and generation.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRandom overrides the entropy source used to generate a new seed.
// Defaults to crypto/rand.Reader.
func WithRandom(r io.Reader) Option {
	return func(o *options) {
		if r != nil {
			o.random = r
		}
	}
}

// WithLockTimeout bounds the wait for the generation lock. Defaults to 5s.
func WithLockTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.lockTimeout = d
		}
	}
}

// LoadOrGenerate returns the Ed25519 key stored at path. When path does
// not exist a new key is generated from a cryptographically secure source,
// written atomically with mode 0600, and returned.
//
// The returned key is never mutated and may be shared across goroutines.
func LoadOrGenerate(ctx context.Context, path string, opts ...Option) (ed25519.PrivateKey, error) {
	o := options{
		logger:      zap.NewNop(),
		random:      rand.Reader,
		lockTimeout: defaultLockTimeout,
	}
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger.With(zap.String("path", path))

	key, err := load(path)
	if err == nil {
		log.Debug("signing key loaded")
		return key, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	return generate(ctx, path, o, log)
}

// Load reads and parses an existing key file without generating one. A
// missing file is reported with an error matching fs.ErrNotExist.
func Load(path string) (ed25519.PrivateKey, error) {
	return load(path)
}

func load(path string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from operator configuration
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}

		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, path, err)
	}

	return ParsePrivateKey(data)
}

func generate(ctx context.Context, path string, o options, log *zap.Logger) (ed25519.PrivateKey, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create key directory: %w", ErrIO, err)
	}

	lock := flock.New(path + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, o.lockTimeout)
	defer cancel()

	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("%w: acquire key lock: %w", ErrIO, err)
	}

	if !locked {
		return nil, fmt.Errorf("%w: key lock is held by another process", ErrIO)
	}

	defer func() {
		if err := lock.Unlock(); err != nil {
			log.Warn("failed to release key lock", zap.Error(err))
		}
	}()

	// Another process may have generated the key while we waited.
	key, err := load(path)
	if err == nil {
		log.Debug("signing key loaded after waiting for lock")
		return key, nil
	}

	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(o.random, seed); err != nil {
		return nil, fmt.Errorf("%w: read random seed: %w", ErrIO, err)
	}

	key = ed25519.NewKeyFromSeed(seed)

	data, err := MarshalPrivateKey(key)
	if err != nil {
		return nil, err
	}

	if err := atomicfile.WriteFile(path, data, keyFileMode); err != nil {
		return nil, fmt.Errorf("%w: write key: %w", ErrIO, err)
	}

	log.Info("generated new signing key")

	return key, nil
}
