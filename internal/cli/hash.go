package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"tokenmeta/internal/metadata/signature"
)

// NewHashCommand creates the hash command.
func NewHashCommand(rootOpts *RootOptions) *cobra.Command {
	flags := &entryFlags{}
	cmd := &cobra.Command{
		Use:   "hash",
		Short: "Print the canonical message an entry signature covers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := flags.entry()
			if err != nil {
				return err
			}
			message, err := signature.CanonicalMessage(flags.subject, flags.property, entry)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rootOpts.Format == "json" {
				return json.NewEncoder(out).Encode(map[string]string{"message": message})
			}
			_, err = fmt.Fprintln(out, message)
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}
