package ir

import "errors"

// Sentinel errors for catalog construction and planning. Callers wrap them
// with context and test with errors.Is.
var (
	// ErrDuplicateCollection: a schema with the same name is already registered.
	ErrDuplicateCollection = errors.New("duplicate collection")

	// ErrUnknownCollection: an index, rule, seed, or reference names a
	// collection that is not registered.
	ErrUnknownCollection = errors.New("unknown collection")

	// ErrUnsupportedPredicate: the policy compiler cannot render a predicate.
	ErrUnsupportedPredicate = errors.New("unsupported predicate")

	ErrInvalidSchema  = errors.New("invalid schema")
	ErrInvalidPattern = errors.New("invalid query pattern")
	ErrDuplicateSeed  = errors.New("duplicate seed")
	ErrReservedKey    = errors.New("reserved key")

	// ErrDuplicateKey: two object keys are equal after NFC normalization.
	ErrDuplicateKey = errors.New("duplicate object key")
)
