package cache

import "errors"

// Error kinds surfaced at the cache boundary. Construction failures wrap
// ErrBadArgument; Set failures are returned as-is or wrapped. Lookup
// misses are never errors: Get and Delete report absence via their
// boolean results.
var (
	// ErrBadArgument is wrapped by construction errors (unknown eviction
	// name, negative limits or scan interval).
	ErrBadArgument = errors.New("cache: bad argument")

	// ErrEmptyKey is returned by Set variants for an empty key.
	ErrEmptyKey = errors.New("cache: empty key")

	// ErrDuplicateKey is returned by Set variants when the key is already
	// present. Delete the key first to replace its value.
	ErrDuplicateKey = errors.New("cache: key already exists")

	// ErrValueSize is returned by Set variants when the value's size
	// capability fails or reports a negative weight. The insertion is
	// aborted before any state changes.
	ErrValueSize = errors.New("cache: value size")

	// ErrNoLoader is returned by GetOrLoad when no Loader was configured
	// in Options.
	ErrNoLoader = errors.New("cache: no Loader provided")
)
