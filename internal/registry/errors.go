package registry

import "errors"

// Sentinel errors returned by registry operations. Callers branch on these
// with errors.Is; the wrapped chain keeps the transport detail.
var (
	// ErrNotFound means the requested record, alias or lease does not
	// exist.
	ErrNotFound = errors.New("service not found")

	// ErrConflict means a concurrent writer changed the record between
	// read and commit. The operation had no effect and may be retried.
	ErrConflict = errors.New("concurrent modification detected")

	// ErrInvalidArgument means the caller supplied input the registry
	// cannot act on, such as an unknown status name in a filter.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrStoreUnavailable means the backing store could not be reached
	// or answered with a transport-level failure.
	ErrStoreUnavailable = errors.New("store unavailable")
)
