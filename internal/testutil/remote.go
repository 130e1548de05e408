package testutil

import (
	"quill/internal/quill"
	"quill/internal/remote"
)

// NewTestRemote returns an in-memory remote store whose modification times
// come from clock.
func NewTestRemote(clock quill.Clock) *remote.MemoryStore {
	return remote.NewMemoryStore(clock)
}
