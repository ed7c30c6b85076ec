package app

import (
	"crypto/ed25519"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalvas/paysig/config"
	"github.com/vitalvas/paysig/httpsig"
	"github.com/vitalvas/paysig/jwks"
	"github.com/vitalvas/paysig/server"
)

func newServeCmd(rt *runtime) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Publish the JWKS and serve a signature verifying echo endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if listen != "" {
				rt.cfg.Server.ListenAddr = listen
			}

			key, err := rt.signingKey(cmd.Context())
			if err != nil {
				return err
			}

			set, err := jwks.NewSet(key, rt.cfg.KeyID)
			if err != nil {
				return err
			}

			policy, err := rt.cfg.ComponentPolicy()
			if err != nil {
				return err
			}

			metrics, err := httpsig.NewMetrics(prometheus.DefaultRegisterer)
			if err != nil {
				return err
			}

			resolver := func(_ *http.Request, kid string) (ed25519.PublicKey, error) {
				return set.Lookup(kid)
			}

			if url := rt.cfg.Server.PeerJWKSURL; url != "" {
				remote := jwks.NewResolver(url,
					jwks.WithCacheTTL(rt.cfg.Server.JWKSCacheTTL),
					jwks.WithResolverLogger(rt.log),
				)
				resolver = remote.Resolve

				rt.log.Info("verifying against peer jwks", zap.String("url", url))
			}

			srv, err := server.New(server.Config{
				Addr: rt.cfg.Server.ListenAddr,
				JWKS: set,
				Verify: httpsig.VerifyConfig{
					Resolver: resolver,
					Policy:   policy,
					Logger:   rt.log,
					Metrics:  metrics,
				},
				MaxBodyBytes:   rt.cfg.Server.MaxBodyBytes,
				TrustedProxies: rt.cfg.Server.TrustedProxies,
				Logger:         rt.log,
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides "+config.EnvListenAddr+")")

	return cmd
}
