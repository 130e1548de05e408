package remote

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"quill/internal/quill"
)

// encryptedExt marks ciphertext objects on the remote.
const encryptedExt = ".age"

// ErrLocked is returned by Download when no decryption context was given.
var ErrLocked = errors.New("encrypted remote is locked: unlock with the passphrase to download")

// EncryptedStore encrypts artifacts before they reach next and decrypts
// them on the way back. Callers see plain artifact names; next holds them
// with the encryptedExt suffix.
type EncryptedStore struct {
	next quill.RemoteStore
	enc  quill.Encryptor
	dec  quill.DecryptionContext // nil until unlocked
}

var _ quill.RemoteStore = (*EncryptedStore)(nil)

// NewEncryptedStore wraps next. dec may be nil, in which case downloads
// fail with ErrLocked.
func NewEncryptedStore(next quill.RemoteStore, enc quill.Encryptor, dec quill.DecryptionContext) *EncryptedStore {
	return &EncryptedStore{next: next, enc: enc, dec: dec}
}

func (s *EncryptedStore) Upload(localPath, remoteName string) error {
	if err := validateName(remoteName); err != nil {
		return err
	}
	in, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer in.Close()

	tmpDir, err := os.MkdirTemp("", "quill-encrypt-*")
	if err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	sealed := filepath.Join(tmpDir, remoteName+encryptedExt)
	out, err := os.OpenFile(sealed, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to create ciphertext file: %w", err)
	}
	if err := s.enc.Encrypt(in, out); err != nil {
		out.Close()
		return fmt.Errorf("encrypting %s: %w", remoteName, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close ciphertext file: %w", err)
	}

	return s.next.Upload(sealed, remoteName+encryptedExt)
}

func (s *EncryptedStore) Download(remoteName, localDir string) (string, error) {
	if err := validateName(remoteName); err != nil {
		return "", err
	}
	if s.dec == nil {
		return "", ErrLocked
	}

	tmpDir, err := os.MkdirTemp("", "quill-decrypt-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	sealed, err := s.next.Download(remoteName+encryptedExt, tmpDir)
	if err != nil {
		return "", err
	}
	in, err := os.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("failed to open ciphertext: %w", err)
	}
	defer in.Close()

	plain := filepath.Join(tmpDir, remoteName)
	out, err := os.OpenFile(plain, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create plaintext file: %w", err)
	}
	if err := s.dec.Decrypt(in, out); err != nil {
		out.Close()
		return "", fmt.Errorf("decrypting %s: %w", remoteName, err)
	}
	if _, err := out.Seek(0, io.SeekStart); err != nil {
		out.Close()
		return "", err
	}
	defer out.Close()

	dest := filepath.Join(localDir, remoteName)
	if err := writeFile(dest, out); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *EncryptedStore) List() ([]quill.RemoteFile, error) {
	files, err := s.next.List()
	if err != nil {
		return nil, err
	}
	out := files[:0]
	for _, f := range files {
		name, ok := strings.CutSuffix(f.Name, encryptedExt)
		if !ok {
			continue
		}
		f.Name = name
		out = append(out, f)
	}
	return out, nil
}

func (s *EncryptedStore) Delete(remoteName string) error {
	if err := validateName(remoteName); err != nil {
		return err
	}
	return s.next.Delete(remoteName + encryptedExt)
}
