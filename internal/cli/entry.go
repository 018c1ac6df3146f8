package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"tokenmeta/internal/metadata/models"
)

// entryFlags are shared by hash and sign.
type entryFlags struct {
	subject  string
	property string
	value    string
	sequence int64
}

func (f *entryFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.subject, "subject", "", "subject the entry belongs to")
	cmd.Flags().StringVar(&f.property, "property", "", "property name")
	cmd.Flags().StringVar(&f.value, "value", "", "entry value as JSON")
	cmd.Flags().Int64Var(&f.sequence, "seq", 0, "sequence number")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("property")
	_ = cmd.MarkFlagRequired("value")
}

func (f *entryFlags) entry() (models.Entry, error) {
	if models.IsWellKnown(f.property) {
		return models.Entry{}, fmt.Errorf("property %s is a well-known scalar and is not signed", f.property)
	}
	if f.sequence < 0 {
		return models.Entry{}, fmt.Errorf("sequence number must be >= 0, got %d", f.sequence)
	}
	value, err := models.Parse([]byte(f.value))
	if err != nil {
		return models.Entry{}, fmt.Errorf("value is not valid JSON: %w", err)
	}
	return models.Entry{Value: value, SequenceNumber: f.sequence, Signatures: []models.Signature{}}, nil
}
