package diskarc

import "errors"

// Sentinel errors.
var (
	// ErrNotFound is returned when a file is absent from the catalog.
	ErrNotFound = errors.New("diskarc: not found")

	// ErrNoFork is returned when a requested fork does not exist on an
	// entry. It is distinct from driver I/O failures so callers can tell
	// "never had one" apart from "could not read it".
	ErrNoFork = errors.New("diskarc: fork does not exist")

	// ErrUnsupported is returned when an operation is invalid for the
	// target filesystem format.
	ErrUnsupported = errors.New("diskarc: operation not supported")

	// ErrExists is returned when creation collides with an existing
	// catalog entry and name uniquification is disabled.
	ErrExists = errors.New("diskarc: already exists")

	// ErrCancelled is returned when a progress callback requests
	// cancellation. Callers typically suppress error reporting for it.
	ErrCancelled = errors.New("diskarc: cancelled")

	// ErrDamaged is returned when an entry or volume failed integrity
	// checks and must not be read or written.
	ErrDamaged = errors.New("diskarc: damaged")

	// ErrShortBuffer is returned when a caller-supplied extraction buffer
	// is smaller than the fork being extracted.
	ErrShortBuffer = errors.New("diskarc: buffer too small")

	// ErrInternal indicates an invariant violation in the bridge itself.
	ErrInternal = errors.New("diskarc: internal inconsistency")
)
