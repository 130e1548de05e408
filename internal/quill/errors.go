package quill

import "errors"

var (
	// ErrDuplicateName is returned when a material name is already used in
	// the same scope.
	ErrDuplicateName = errors.New("duplicate material name")

	// ErrNotFound is returned by operations that require an existing row.
	ErrNotFound = errors.New("not found")
)

// ErrBusy is returned when a backup or restore is already in flight.
var ErrBusy = errors.New("a backup or restore is already running")
