// Package config loads signing client and server settings from a YAML file
// with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalvas/paysig/httpsig"
	"github.com/vitalvas/paysig/internal/logger"
)

// ErrInvalid is returned when a loaded configuration is unusable.
var ErrInvalid = errors.New("config: invalid configuration")

// Environment variables that override file values.
const (
	EnvKeyID          = "PAYSIG_KEY_ID"
	EnvPrivateKeyPath = "PAYSIG_PRIVATE_KEY_PATH"
	EnvJWKSPath       = "PAYSIG_JWKS_PATH"
	EnvPolicy         = "PAYSIG_POLICY"
	EnvLogLevel       = "PAYSIG_LOG_LEVEL"
	EnvLogEnv         = "PAYSIG_LOG_ENV"
	EnvListenAddr     = "PAYSIG_LISTEN_ADDR"
	EnvPeerJWKSURL    = "PAYSIG_PEER_JWKS_URL"
)

// Config holds the signing identity and runtime settings.
type Config struct {
	KeyID          string `yaml:"key_id"`
	PrivateKeyPath string `yaml:"private_key_path"`
	JWKSPath       string `yaml:"jwks_path"`

	// Policy is the covered component policy: "conditional" or "fixed".
	Policy string `yaml:"policy"`

	Log    LogConfig    `yaml:"log"`
	Server ServerConfig `yaml:"server"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level string `yaml:"level"`
	Env   string `yaml:"env"`
}

// ServerConfig configures `paysig serve`.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// PeerJWKSURL is where verification keys are fetched from. When empty
	// the server verifies against its own key only.
	PeerJWKSURL  string        `yaml:"peer_jwks_url"`
	JWKSCacheTTL time.Duration `yaml:"jwks_cache_ttl"`

	// MaxBodyBytes caps signed request bodies on /verify.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`

	// TrustedProxies are the IPs and CIDRs whose X-Forwarded-* headers are
	// used to rebuild @target-uri. Empty means private and loopback ranges.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		PrivateKeyPath: "private.key",
		JWKSPath:       "jwks.json",
		Policy:         "conditional",
		Log: LogConfig{
			Level: "info",
			Env:   "dev",
		},
		Server: ServerConfig{
			ListenAddr:   ":8080",
			JWKSCacheTTL: 5 * time.Minute,
			MaxBodyBytes: 1 << 20,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path comes from the command line
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %w", ErrInvalid, path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)

	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	overrides := []struct {
		env string
		dst *string
	}{
		{EnvKeyID, &c.KeyID},
		{EnvPrivateKeyPath, &c.PrivateKeyPath},
		{EnvJWKSPath, &c.JWKSPath},
		{EnvPolicy, &c.Policy},
		{EnvLogLevel, &c.Log.Level},
		{EnvLogEnv, &c.Log.Env},
		{EnvListenAddr, &c.Server.ListenAddr},
		{EnvPeerJWKSURL, &c.Server.PeerJWKSURL},
	}

	for _, o := range overrides {
		if v, ok := lookup(o.env); ok {
			*o.dst = strings.TrimSpace(v)
		}
	}
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if strings.TrimSpace(c.KeyID) == "" {
		return fmt.Errorf("%w: key_id must not be empty", ErrInvalid)
	}

	if strings.TrimSpace(c.PrivateKeyPath) == "" {
		return fmt.Errorf("%w: private_key_path must not be empty", ErrInvalid)
	}

	if _, err := httpsig.PolicyByName(c.Policy); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	if _, ok := logger.ParseLevel(c.Log.Level); !ok {
		return fmt.Errorf("%w: unknown log level %q", ErrInvalid, c.Log.Level)
	}

	if c.Server.JWKSCacheTTL < 0 {
		return fmt.Errorf("%w: jwks_cache_ttl must not be negative", ErrInvalid)
	}

	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalid)
	}

	return nil
}

// ComponentPolicy returns the configured covered component policy.
func (c Config) ComponentPolicy() (httpsig.ComponentPolicy, error) {
	p, err := httpsig.PolicyByName(c.Policy)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	return p, nil
}

// Logger returns the logger configuration.
func (c Config) Logger() logger.Config {
	return logger.Config{
		Env:     c.Log.Env,
		Level:   c.Log.Level,
		Service: "paysig",
	}
}
