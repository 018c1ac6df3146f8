package cli

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

type keyPair struct {
	PublicKey  string `json:"publicKey"`
	PrivateKey string `json:"privateKey"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var seedHex string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 key pair (hex encoded)",
		Long: `Generate an Ed25519 key pair. The private key is printed as its 32 byte
seed. Pass --seed to derive the pair deterministically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var priv ed25519.PrivateKey
			if seedHex != "" {
				key, err := parsePrivateKey(seedHex)
				if err != nil {
					return err
				}
				priv = key
			} else {
				_, key, err := ed25519.GenerateKey(nil)
				if err != nil {
					return fmt.Errorf("generate key: %w", err)
				}
				priv = key
			}
			pair := keyPair{
				PublicKey:  hex.EncodeToString(priv.Public().(ed25519.PublicKey)),
				PrivateKey: hex.EncodeToString(priv.Seed()),
			}
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(out).Encode(pair)
			}
			_, err := fmt.Fprintf(out, "public key:  %s\nprivate key: %s\n", pair.PublicKey, pair.PrivateKey)
			return err
		},
	}
	cmd.Flags().StringVar(&seedHex, "seed", "", "hex encoded 32 byte seed")
	return cmd
}

// parsePrivateKey accepts a hex seed (32 bytes) or a full private key (64 bytes).
func parsePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("private key is not hex: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	default:
		return nil, fmt.Errorf("private key must be %d or %d bytes, got %d", ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
	}
}
