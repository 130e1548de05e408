package quill

import "time"

// FileInfo describes one regular file.
type FileInfo struct {
	Name     string
	Path     string
	Size     int64
	Modified time.Time
}

// FilesystemManager provides the file operations backup and restore need.
// It abstracts file access so tests can inject failures.
type FilesystemManager interface {
	// List returns the regular files directly inside dir. A missing dir
	// yields an empty list.
	List(dir string) ([]FileInfo, error)

	// Stat returns nil, nil if path does not exist.
	Stat(path string) (*FileInfo, error)

	MkdirAll(dir string) error
	MkdirTemp(dir, pattern string) (string, error)
	RemoveAll(path string) error

	// WriteFile writes data to path, creating parent directories. The file
	// is replaced atomically.
	WriteFile(path string, data []byte) error

	ReadFile(path string) ([]byte, error)

	// Remove deletes a file. A file that is already gone is not an error.
	Remove(path string) error

	// CopyFile copies src over dst in place, creating dst if needed.
	CopyFile(src, dst string) error

	// Zip compresses the tree under srcDir into dest. dest must not exist
	// and only appears once the archive is complete.
	Zip(srcDir, dest string) error

	// Unzip extracts src into destDir. Entries that would land outside
	// destDir are rejected.
	Unzip(src, destDir string) error
}
