package remote

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"quill/internal/quill"
)

// FileSystemStore keeps artifacts as plain files in one directory, e.g. a
// mounted network share or a synced folder.
type FileSystemStore struct {
	root string
}

var _ quill.RemoteStore = (*FileSystemStore)(nil)

// NewFileSystemStore creates the store, making root if needed.
func NewFileSystemStore(root string) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create remote directory: %w", err)
	}
	return &FileSystemStore{root: root}, nil
}

func (s *FileSystemStore) Upload(localPath, remoteName string) error {
	if err := validateName(remoteName); err != nil {
		return err
	}
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()
	return writeFile(filepath.Join(s.root, remoteName), f)
}

func (s *FileSystemStore) Download(remoteName, localDir string) (string, error) {
	if err := validateName(remoteName); err != nil {
		return "", err
	}
	f, err := os.Open(filepath.Join(s.root, remoteName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", ErrObjectNotFound, remoteName)
		}
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	dest := filepath.Join(localDir, remoteName)
	if err := writeFile(dest, f); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *FileSystemStore) List() ([]quill.RemoteFile, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("reading remote directory: %w", err)
	}

	var files []quill.RemoteFile
	for _, entry := range entries {
		if !entry.Type().IsRegular() || strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, quill.RemoteFile{Name: entry.Name(), Modified: info.ModTime(), Size: info.Size()})
	}
	return files, nil
}

func (s *FileSystemStore) Delete(remoteName string) error {
	if err := validateName(remoteName); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, remoteName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", remoteName, err)
	}
	return nil
}
