package sentinel

import "errors"

// Sentinel errors for storage facts. Stores return these (optionally wrapped)
// and the metadata service translates them into domain errors:
//   - ErrNotFound: no document for the subject
//   - ErrConflict: a conditional write lost (subject taken, sequence moved on)
//   - ErrUnavailable: backend temporarily unreachable
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)
