// Package app provides the commands of the paysig command-line application.
package app

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalvas/paysig/config"
	"github.com/vitalvas/paysig/internal/logger"
	"github.com/vitalvas/paysig/keystore"
)

// runtime is the state shared by subcommands once flags are parsed.
type runtime struct {
	configPath string
	keyID      string
	keyPath    string
	jwksPath   string
	policy     string
	logLevel   string

	cfg config.Config
	log *zap.Logger
}

// NewRootCmd returns the paysig command tree.
func NewRootCmd() *cobra.Command {
	rt := &runtime{}

	root := &cobra.Command{
		Use:               "paysig",
		Short:             "Sign and verify HTTP requests with Ed25519 message signatures",
		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return rt.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if rt.log != nil {
				_ = rt.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&rt.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&rt.keyID, "key-id", "", "key id (overrides "+config.EnvKeyID+")")
	flags.StringVar(&rt.keyPath, "private-key", "", "private key path (overrides "+config.EnvPrivateKeyPath+")")
	flags.StringVar(&rt.jwksPath, "jwks", "", "JWKS path (overrides "+config.EnvJWKSPath+")")
	flags.StringVar(&rt.policy, "policy", "", "covered component policy: conditional or fixed")
	flags.StringVar(&rt.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newKeygenCmd(rt),
		newJWKSCmd(rt),
		newSignCmd(rt),
		newVerifyCmd(rt),
		newServeCmd(rt),
	)

	return root
}

func (rt *runtime) load() error {
	cfg, err := config.Load(rt.configPath)
	if err != nil {
		return err
	}

	overrides := []struct {
		flag string
		dst  *string
	}{
		{rt.keyID, &cfg.KeyID},
		{rt.keyPath, &cfg.PrivateKeyPath},
		{rt.jwksPath, &cfg.JWKSPath},
		{rt.policy, &cfg.Policy},
		{rt.logLevel, &cfg.Log.Level},
	}

	for _, o := range overrides {
		if v := strings.TrimSpace(o.flag); v != "" {
			*o.dst = v
		}
	}

	rt.cfg = cfg
	rt.log = logger.New(cfg.Logger())

	return nil
}

// signingKey validates the configuration and loads or creates the key.
func (rt *runtime) signingKey(ctx context.Context) (ed25519.PrivateKey, error) {
	if err := rt.cfg.Validate(); err != nil {
		return nil, err
	}

	key, err := keystore.LoadOrGenerate(ctx, rt.cfg.PrivateKeyPath, keystore.WithLogger(rt.log))
	if err != nil {
		return nil, fmt.Errorf("load signing key: %w", err)
	}

	return key, nil
}
