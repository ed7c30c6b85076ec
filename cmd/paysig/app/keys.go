package app

import (
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalvas/paysig/jwks"
	"github.com/vitalvas/paysig/keystore"
)

type keygenOutput struct {
	KeyID          string `json:"key_id"`
	PrivateKeyPath string `json:"private_key_path"`
	JWKSPath       string `json:"jwks_path,omitempty"`
	Thumbprint     string `json:"thumbprint"`
}

func newKeygenCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Load or generate the signing key and write its JWKS",
		Long: `keygen loads the private key at the configured path, generating a new
one when the file does not exist, and writes the public JWKS.

Without a configured key id the RFC 7638 thumbprint of the key is used, so
repeated runs publish the same kid.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfg.PrivateKeyPath == "" {
				return errors.New("private key path must not be empty")
			}

			key, err := keystore.LoadOrGenerate(cmd.Context(), rt.cfg.PrivateKeyPath, keystore.WithLogger(rt.log))
			if err != nil {
				return fmt.Errorf("load signing key: %w", err)
			}

			tp, err := jwks.Thumbprint(key.Public().(ed25519.PublicKey))
			if err != nil {
				return err
			}

			kid := rt.cfg.KeyID
			if kid == "" {
				kid = tp
			}

			set, err := jwks.NewSet(key, kid)
			if err != nil {
				return err
			}

			if rt.cfg.JWKSPath != "" {
				if err := jwks.Persist(set, rt.cfg.JWKSPath); err != nil {
					return err
				}

				rt.log.Info("wrote jwks", zap.String("path", rt.cfg.JWKSPath), zap.String("kid", kid))
			}

			return writeJSON(cmd, keygenOutput{
				KeyID:          kid,
				PrivateKeyPath: rt.cfg.PrivateKeyPath,
				JWKSPath:       rt.cfg.JWKSPath,
				Thumbprint:     tp,
			})
		},
	}
}

func newJWKSCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "jwks",
		Short: "Print the JWKS of the existing signing key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := rt.cfg.Validate(); err != nil {
				return err
			}

			key, err := keystore.Load(rt.cfg.PrivateKeyPath)
			if err != nil {
				return fmt.Errorf("load signing key: %w", err)
			}

			set, err := jwks.NewSet(key, rt.cfg.KeyID)
			if err != nil {
				return err
			}

			data, err := set.Marshal()
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))

			return err
		},
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
