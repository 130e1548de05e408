package testutil

import (
	"errors"
	"strings"
	"sync"

	"quill/internal/fs"
	"quill/internal/quill"
)

// ErrInjected is returned by FaultyFilesystem for injected failures.
var ErrInjected = errors.New("injected failure")

// FaultyFilesystem wraps the real filesystem and fails selected copies.
type FaultyFilesystem struct {
	quill.FilesystemManager

	mu sync.Mutex
	// FailCopyTo fails CopyFile when dst ends with any of these suffixes.
	failCopyTo []string
	// FailZip fails every Zip call.
	failZip bool
}

// NewFaultyFilesystem returns a FaultyFilesystem that behaves like the OS
// filesystem until told otherwise.
func NewFaultyFilesystem() *FaultyFilesystem {
	return &FaultyFilesystem{FilesystemManager: fs.NewOSFilesystemManager()}
}

// FailCopiesTo makes CopyFile fail for destinations ending in suffix.
func (f *FaultyFilesystem) FailCopiesTo(suffix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failCopyTo = append(f.failCopyTo, suffix)
}

// FailZips makes Zip fail.
func (f *FaultyFilesystem) FailZips() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failZip = true
}

func (f *FaultyFilesystem) CopyFile(src, dst string) error {
	f.mu.Lock()
	for _, s := range f.failCopyTo {
		if strings.HasSuffix(dst, s) {
			f.mu.Unlock()
			return ErrInjected
		}
	}
	f.mu.Unlock()
	return f.FilesystemManager.CopyFile(src, dst)
}

func (f *FaultyFilesystem) Zip(srcDir, dest string) error {
	f.mu.Lock()
	fail := f.failZip
	f.mu.Unlock()
	if fail {
		return ErrInjected
	}
	return f.FilesystemManager.Zip(srcDir, dest)
}
