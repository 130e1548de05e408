package testutil

import (
	"quill/internal/encryption"
	"quill/internal/quill"
)

// NewTestEncryptor returns an encryptor that only frames data, for tests
// that exercise remote encryption without keys.
func NewTestEncryptor() quill.Encryptor {
	return encryption.NewTestEncryptor()
}
