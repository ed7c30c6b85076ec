// Command paysig signs and verifies HTTP requests with Ed25519 message
// signatures and publishes the signing key as a JWKS document.
package main

import (
	"os"

	"github.com/vitalvas/paysig/cmd/paysig/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
