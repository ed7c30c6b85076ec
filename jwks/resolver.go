package jwks

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

const (
	// DefaultCacheTTL is how long a fetched document is trusted.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultRefreshInterval is the minimum time between refetches forced
	// by unknown key ids.
	DefaultRefreshInterval = 30 * time.Second

	maxDocumentSize = 1 << 20
)

// Resolver maps key ids to public keys using a peer's JWKS document served
// over HTTP. Documents are cached; an unknown key id forces one refetch so
// rotated keys are picked up before the cache expires. Forced refetches
// are limited to one per refresh interval.
type Resolver struct {
	url             string
	client          *http.Client
	cache           *gocache.Cache
	refreshInterval time.Duration
	logger          *zap.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithHTTPClient sets the client used to fetch documents.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) {
		if c != nil {
			r.client = c
		}
	}
}

// WithCacheTTL sets how long a fetched document is reused.
func WithCacheTTL(ttl time.Duration) ResolverOption {
	return func(r *Resolver) {
		if ttl > 0 {
			r.cache = gocache.New(ttl, time.Minute)
		}
	}
}

// WithRefreshInterval sets the minimum time between refetches forced by
// unknown key ids. Zero removes the limit.
func WithRefreshInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d >= 0 {
			r.refreshInterval = d
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(l *zap.Logger) ResolverOption {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver returns a Resolver for the document at url.
func NewResolver(url string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		url:             url,
		client:          &http.Client{Timeout: 10 * time.Second},
		cache:           gocache.New(DefaultCacheTTL, time.Minute),
		refreshInterval: DefaultRefreshInterval,
		logger:          zap.NewNop(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Resolve returns the public key published under keyID. Its signature
// matches httpsig.KeyResolver.
func (r *Resolver) Resolve(req *http.Request, keyID string) (ed25519.PublicKey, error) {
	ctx := context.Background()
	if req != nil {
		ctx = req.Context()
	}

	set, cached, err := r.document(ctx, false)
	if err != nil {
		return nil, err
	}

	pub, err := set.Lookup(keyID)
	if err == nil || !cached || !errors.Is(err, ErrKeyNotFound) {
		return pub, err
	}

	if !r.allowRefresh() {
		r.logger.Debug("key id not in cached jwks, refetch suppressed", zap.String("kid", keyID))
		return nil, err
	}

	r.logger.Debug("key id not in cached jwks, refetching", zap.String("kid", keyID))

	set, _, err = r.document(ctx, true)
	if err != nil {
		return nil, err
	}

	return set.Lookup(keyID)
}

// Set returns the current document, fetching it if the cache is cold.
func (r *Resolver) Set(ctx context.Context) (Set, error) {
	set, _, err := r.document(ctx, false)
	return set, err
}

// allowRefresh claims the forced refetch slot for the current interval.
// gocache.Add fails while the previous claim is unexpired.
func (r *Resolver) allowRefresh() bool {
	if r.refreshInterval <= 0 {
		return true
	}

	return r.cache.Add(r.url+"#refresh", struct{}{}, r.refreshInterval) == nil
}

func (r *Resolver) document(ctx context.Context, refresh bool) (Set, bool, error) {
	if !refresh {
		if v, ok := r.cache.Get(r.url); ok {
			if set, ok := v.(Set); ok {
				return set, true, nil
			}
		}
	}

	set, err := r.fetch(ctx)
	if err != nil {
		return Set{}, false, err
	}

	r.cache.Set(r.url, set, gocache.DefaultExpiration)

	return set, false, nil
}

func (r *Resolver) fetch(ctx context.Context) (Set, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return Set{}, fmt.Errorf("%w: %w", ErrIO, err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Set{}, fmt.Errorf("%w: fetch %s: %w", ErrIO, r.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Set{}, fmt.Errorf("%w: fetch %s: status %d", ErrIO, r.url, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize))
	if err != nil {
		return Set{}, fmt.Errorf("%w: read %s: %w", ErrIO, r.url, err)
	}

	set, err := ParseSet(data)
	if err != nil {
		return Set{}, err
	}

	r.logger.Debug("fetched jwks", zap.String("url", r.url), zap.Int("keys", len(set.Keys)))

	return set, nil
}
