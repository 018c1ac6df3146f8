package cli

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"tokenmeta/internal/metadata/signature"
)

// NewSignCommand creates the sign command. It prints a complete entry ready
// to be placed under the property name in a create or update request.
func NewSignCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &entryFlags{}
	var keys []string
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Sign an entry with one or more private keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(keys) == 0 {
				return errors.New("at least one --key is required")
			}
			entry, err := flags.entry()
			if err != nil {
				return err
			}
			for _, k := range keys {
				priv, err := parsePrivateKey(k)
				if err != nil {
					return err
				}
				sig, err := signature.Sign(priv, flags.subject, flags.property, entry)
				if err != nil {
					return err
				}
				entry.Signatures = append(entry.Signatures, sig)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			if rootOpts.Format == "text" {
				enc.SetIndent("", "  ")
			}
			return enc.Encode(entry)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringArrayVar(&keys, "key", nil, "hex private key or seed (repeatable)")
	return cmd
}
