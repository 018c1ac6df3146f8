// Package sequence enforces strictly increasing sequence numbers on versioned
// properties.
package sequence

import (
	"fmt"

	"tokenmeta/internal/metadata/models"
)

// Violation names a property whose incoming entry does not directly follow
// the stored history.
type Violation struct {
	Property string `json:"property"`
	Expected int64  `json:"expected"`
	Actual   int64  `json:"actual"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: expected sequence number %d, got %d", v.Property, v.Expected, v.Actual)
}

// Check returns a violation for every incoming entry whose property already
// has history in existing and whose sequence number is not max+1. Properties
// new to the object may start anywhere. Results follow the incoming order.
func Check(existing *models.Object, incoming []models.NamedEntry) []Violation {
	if existing == nil {
		return nil
	}
	var out []Violation
	for _, in := range incoming {
		history, ok := existing.Entries[in.Property]
		if !ok || len(history) == 0 {
			continue
		}
		expected := models.MaxSequence(history) + 1
		if in.Entry.SequenceNumber != expected {
			out = append(out, Violation{
				Property: in.Property,
				Expected: expected,
				Actual:   in.Entry.SequenceNumber,
			})
		}
	}
	return out
}
