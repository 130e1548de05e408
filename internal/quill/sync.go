package quill

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNoRemote is returned by remote operations when no remote is configured.
var ErrNoRemote = errors.New("no remote store configured")

// SetRemote replaces the remote store; nil turns remote sync off. Used to
// swap in a store that can decrypt once the key is unlocked.
func (m *Manager) SetRemote(r RemoteStore) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.remote = r
}

func (m *Manager) remoteStore() RemoteStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.remote
}

func (m *Manager) pushAndPrune(kind Kind, filename string) error {
	if err := m.PushBackup(filename); err != nil {
		return err
	}
	return m.pruneRemote(kind)
}

// PushBackup uploads a local artifact to the remote under the same name.
func (m *Manager) PushBackup(filename string) error {
	remote := m.remoteStore()
	if remote == nil {
		return ErrNoRemote
	}
	path, err := m.BackupPath(filename)
	if err != nil {
		return err
	}
	if err := remote.Upload(path, filename); err != nil {
		return fmt.Errorf("uploading %s: %w", filename, err)
	}
	m.logger.Info("backup uploaded", "file", filename)
	return nil
}

// PullBackup downloads a remote artifact into the backup directory and
// returns its local path. An existing local file is left untouched.
func (m *Manager) PullBackup(filename string) (string, error) {
	remote := m.remoteStore()
	if remote == nil {
		return "", ErrNoRemote
	}
	path, err := m.BackupPath(filename)
	if err != nil {
		return "", err
	}
	info, err := m.fsmgr.Stat(path)
	if err != nil {
		return "", err
	}
	if info != nil {
		return "", fmt.Errorf("%s already exists locally", filename)
	}
	if err := m.fsmgr.MkdirAll(m.backupDir); err != nil {
		return "", fmt.Errorf("creating backup directory: %w", err)
	}
	local, err := remote.Download(filename, m.backupDir)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", filename, err)
	}
	m.logger.Info("backup downloaded", "file", filename)
	return local, nil
}

// ListRemote returns the remote artifacts, newest name first.
func (m *Manager) ListRemote() ([]RemoteFile, error) {
	remote := m.remoteStore()
	if remote == nil {
		return nil, ErrNoRemote
	}
	files, err := remote.List()
	if err != nil {
		return nil, fmt.Errorf("listing remote: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name > files[j].Name })
	return files, nil
}

// DeleteRemote removes one remote artifact.
func (m *Manager) DeleteRemote(filename string) error {
	remote := m.remoteStore()
	if remote == nil {
		return ErrNoRemote
	}
	if err := validateFilename(filename); err != nil {
		return err
	}
	if err := remote.Delete(filename); err != nil {
		return fmt.Errorf("deleting remote %s: %w", filename, err)
	}
	return nil
}
