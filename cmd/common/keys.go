package common

import (
	"fmt"
	"log/slog"

	"github.com/flashbots/lay/crypto"
)

// LoadOrGenerateSigningKey reads the PEM key at path, creating a fresh key
// there if the file does not exist. An empty path yields an ephemeral key.
func LoadOrGenerateSigningKey(path string, log *slog.Logger) (crypto.PrivateKey, error) {
	sk, created, err := crypto.LoadOrGeneratePrivateKey(path)
	if err != nil {
		return nil, fmt.Errorf("loading signing key: %w", err)
	}
	if created && path != "" {
		pk, _ := sk.PublicKey()
		log.Info("generated new identity", "path", path, "key", pk.String())
	}
	return sk, nil
}
