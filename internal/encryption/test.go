package encryption

import (
	"bytes"
	"fmt"
	"io"

	"quill/internal/quill"
)

// testHeader marks TestEncryptor output.
var testHeader = []byte("QLENC\x00\x00\x01")

// TestEncryptor is a deterministic stand-in for tests: it prefixes a fixed
// header on encrypt and checks and strips it on decrypt. No cryptography.
type TestEncryptor struct {
	setupCalled bool
}

var _ quill.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(string) error {
	e.setupCalled = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	_, err := io.Copy(w, r)
	return err
}

func (e *TestEncryptor) Unlock(string) (quill.DecryptionContext, error) {
	return testDecryptor{}, nil
}

func (e *TestEncryptor) IsConfigured() bool { return true }

type testDecryptor struct{}

func (testDecryptor) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("not encrypted by TestEncryptor")
	}
	_, err := io.Copy(w, r)
	return err
}
