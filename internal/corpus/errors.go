package corpus

import "errors"

// Error kinds shared across backends and the registry. Callers classify
// failures with errors.Is; the web layer maps kinds to HTTP status codes.
var (
	// ErrNotFound indicates an absent group, person, face or metadata record.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument indicates a malformed identifier, an empty source
	// set or a self-merge.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrConflict indicates an identifier collision. Minting retries
	// internally on this kind; it never reaches API callers.
	ErrConflict = errors.New("identifier conflict")

	// ErrConsistency indicates a violated storage invariant, such as a merge
	// source still owning faces after its faces were moved. Operations fail
	// loudly on this kind instead of masking it.
	ErrConsistency = errors.New("internal consistency violation")
)
