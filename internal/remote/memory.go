package remote

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"quill/internal/quill"
)

type memoryObject struct {
	data     []byte
	modified time.Time
}

// MemoryStore keeps artifacts in memory. Useful for tests and dry runs.
// Safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	clock   quill.Clock
}

var _ quill.RemoteStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store. Modification times come from
// clock; nil means the real clock.
func NewMemoryStore(clock quill.Clock) *MemoryStore {
	if clock == nil {
		clock = quill.RealClock{}
	}
	return &MemoryStore{objects: make(map[string]memoryObject), clock: clock}
}

func (m *MemoryStore) Upload(localPath, remoteName string) error {
	if err := validateName(remoteName); err != nil {
		return err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", localPath, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[remoteName] = memoryObject{data: data, modified: m.clock.Now()}
	return nil
}

func (m *MemoryStore) Download(remoteName, localDir string) (string, error) {
	if err := validateName(remoteName); err != nil {
		return "", err
	}
	data, ok := m.Get(remoteName)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, remoteName)
	}
	dest := filepath.Join(localDir, remoteName)
	if err := writeFile(dest, bytes.NewReader(data)); err != nil {
		return "", err
	}
	return dest, nil
}

func (m *MemoryStore) List() ([]quill.RemoteFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]quill.RemoteFile, 0, len(m.objects))
	for name, obj := range m.objects {
		files = append(files, quill.RemoteFile{Name: name, Modified: obj.modified, Size: int64(len(obj.data))})
	}
	return files, nil
}

func (m *MemoryStore) Delete(remoteName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, remoteName)
	return nil
}

// Get returns a copy of the stored bytes of name.
func (m *MemoryStore) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[name]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}
