package server

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ErrInvalidProxy is returned for a trusted proxy entry that is neither an
// IP address nor a CIDR prefix.
var ErrInvalidProxy = errors.New("server: invalid trusted proxy")

// DefaultTrustedProxies are loopback and private ranges.
var DefaultTrustedProxies = []string{
	"127.0.0.0/8",
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"100.64.0.0/10",
	"::1/128",
	"fc00::/7",
}

// ProxyHeaders rebuilds the client view of a request forwarded by a trusted
// reverse proxy, so @target-uri matches what the client signed. When the
// peer is trusted, X-Forwarded-Proto (or X-Forwarded-Scheme) sets the URL
// scheme, X-Forwarded-Host sets Host and the leftmost valid X-Forwarded-For
// address (or X-Real-IP) becomes RemoteAddr. Other peers pass through
// untouched. An empty list means DefaultTrustedProxies.
func ProxyHeaders(trusted []string) (func(http.Handler) http.Handler, error) {
	if len(trusted) == 0 {
		trusted = DefaultTrustedProxies
	}

	prefixes, err := parsePrefixes(trusted)
	if err != nil {
		return nil, err
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !peerTrusted(r.RemoteAddr, prefixes) {
				next.ServeHTTP(w, r)
				return
			}

			if ip := forwardedFor(r.Header); ip != "" {
				r.RemoteAddr = ip
			}

			if scheme := forwardedScheme(r.Header); scheme != "" {
				u := *r.URL
				u.Scheme = scheme
				r.URL = &u
			}

			if host := strings.TrimSpace(r.Header.Get("X-Forwarded-Host")); host != "" {
				r.Host = host
			}

			next.ServeHTTP(w, r)
		})
	}, nil
}

func parsePrefixes(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)

		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
			}

			prefixes = append(prefixes, p.Masked())

			continue
		}

		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidProxy, entry)
		}

		prefixes = append(prefixes, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}

	return prefixes, nil
}

func peerTrusted(remoteAddr string, prefixes []netip.Prefix) bool {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}

	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}

	addr = addr.Unmap()

	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}

	return false
}

// forwardedScheme returns http or https from the first forwarding scheme
// header present, or "" when absent or not one of the two.
func forwardedScheme(h http.Header) string {
	for _, name := range []string{"X-Forwarded-Proto", "X-Forwarded-Scheme"} {
		v := h.Get(name)
		if v == "" {
			continue
		}

		switch v = strings.ToLower(strings.TrimSpace(v)); v {
		case "http", "https":
			return v
		default:
			return ""
		}
	}

	return ""
}

func forwardedFor(h http.Header) string {
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		for part := range strings.SplitSeq(xff, ",") {
			if addr, err := netip.ParseAddr(strings.TrimSpace(part)); err == nil {
				return addr.String()
			}
		}

		return ""
	}

	if addr, err := netip.ParseAddr(strings.TrimSpace(h.Get("X-Real-IP"))); err == nil {
		return addr.String()
	}

	return ""
}
