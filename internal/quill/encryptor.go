package quill

import "io"

// Encryptor protects backup artifacts before they leave the machine.
// Encrypting needs only the public key; decrypting requires Unlock with the
// passphrase that guards the private key.
type Encryptor interface {
	// Setup generates the key pair. The private key is stored encrypted
	// with passphrase.
	Setup(passphrase string) error

	// Encrypt writes the ciphertext of r to w.
	Encrypt(r io.Reader, w io.Writer) error

	// Unlock opens the private key for the rest of the session.
	Unlock(passphrase string) (DecryptionContext, error)

	// IsConfigured reports whether both key files exist.
	IsConfigured() bool
}

// DecryptionContext holds an unlocked private key in memory only.
type DecryptionContext interface {
	Decrypt(r io.Reader, w io.Writer) error
}
