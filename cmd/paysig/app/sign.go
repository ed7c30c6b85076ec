package app

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vitalvas/paysig/httpsig"
)

// requestFlags describe the request being signed or verified.
type requestFlags struct {
	method      string
	url         string
	body        string
	bodyFile    string
	contentType string
	headers     []string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&f.method, "method", "X", "POST", "request method")
	flags.StringVar(&f.url, "url", "", "absolute target URI")
	flags.StringVarP(&f.body, "body", "d", "", "request body")
	flags.StringVar(&f.bodyFile, "body-file", "", "read the request body from a file")
	flags.StringVar(&f.contentType, "content-type", "application/json", "Content-Type header")
	flags.StringArrayVarP(&f.headers, "header", "H", nil, `extra header, "Name: value" (repeatable)`)

	_ = cmd.MarkFlagRequired("url")
	cmd.MarkFlagsMutuallyExclusive("body", "body-file")
}

// message builds the request. A body is present when --body or
// --body-file was given, even if empty.
func (f *requestFlags) message(cmd *cobra.Command) (*httpsig.Message, error) {
	msg := httpsig.NewMessage(strings.ToUpper(f.method), f.url)

	switch {
	case cmd.Flags().Changed("body-file"):
		data, err := os.ReadFile(f.bodyFile) // #nosec G304 - path comes from the command line
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}

		msg.WithBody(data)

	case cmd.Flags().Changed("body"):
		msg.WithBody([]byte(f.body))
	}

	if f.contentType != "" {
		msg.Header().Set("Content-Type", f.contentType)
	}

	for _, h := range f.headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, want \"Name: value\"", h)
		}

		msg.Header().Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	return msg, nil
}

type signOutput struct {
	Signature      string `json:"signature"`
	SignatureInput string `json:"signature_input"`
	ContentDigest  string `json:"content_digest,omitempty"`
	ContentLength  string `json:"content_length,omitempty"`
	Authorization  string `json:"authorization,omitempty"`
	PublicKey      string `json:"public_key"`
}

func newSignCmd(rt *runtime) *cobra.Command {
	var (
		req   requestFlags
		token string
	)

	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the signature headers for a request as JSON",
		Example: `  paysig sign --key-id client-1 --url https://wallet.example/incoming-payments -d '{"amount":"10"}'
  paysig sign -X GET --url https://wallet.example/alice --token ACCESS_TOKEN`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := rt.signingKey(cmd.Context())
			if err != nil {
				return err
			}

			policy, err := rt.cfg.ComponentPolicy()
			if err != nil {
				return err
			}

			msg, err := req.message(cmd)
			if err != nil {
				return err
			}

			if token != "" {
				httpsig.SetGNAPAuthorization(msg.Header(), token)
			}

			signer, err := httpsig.NewEd25519Signer(rt.cfg.KeyID, key)
			if err != nil {
				return err
			}

			headers, err := httpsig.CreateHeaders(msg, httpsig.SignConfig{Signer: signer, Policy: policy})
			if err != nil {
				return err
			}

			rt.log.Debug("signed request",
				zap.String("method", msg.Method()),
				zap.String("url", msg.TargetURI()),
				zap.String("signature_input", headers.SignatureInput),
			)

			return writeJSON(cmd, signOutput{
				Signature:      headers.Signature,
				SignatureInput: headers.SignatureInput,
				ContentDigest:  msg.Header().Get("Content-Digest"),
				ContentLength:  msg.Header().Get("Content-Length"),
				Authorization:  msg.Header().Get("Authorization"),
				PublicKey:      base64.StdEncoding.EncodeToString(key.Public().(ed25519.PublicKey)),
			})
		},
	}

	req.register(cmd)
	cmd.Flags().StringVar(&token, "token", "", "GNAP access token for the Authorization header")

	return cmd
}
