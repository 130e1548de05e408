package app

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Operation identifies one CLI invocation or daemon run in the logs.
// IDs are ULIDs, so they sort by start time.
type Operation struct {
	ID      string
	Name    string
	Started time.Time
}

// NewOperation starts a new operation named name.
func NewOperation(name string) *Operation {
	id := ulid.Make()
	return &Operation{
		ID:      id.String(),
		Name:    name,
		Started: ulid.Time(id.Time()),
	}
}

// Elapsed returns the time since the operation started.
func (op *Operation) Elapsed() time.Duration {
	return time.Since(op.Started)
}
