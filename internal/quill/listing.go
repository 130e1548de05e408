package quill

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// ListBackups returns every artifact in the backup directory, newest name
// first.
func (m *Manager) ListBackups() ([]BackupEntry, error) {
	files, err := m.fsmgr.List(m.backupDir)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	var entries []BackupEntry
	for _, f := range files {
		typ, ok := ClassifyArtifact(f.Name)
		if !ok {
			continue
		}
		entries = append(entries, BackupEntry{
			Filename: f.Name,
			Dir:      m.backupDir,
			Type:     typ,
			Size:     f.Size,
			Modified: f.Modified,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Filename > entries[j].Filename
	})
	return entries, nil
}

// BackupPath resolves filename inside the backup directory. Only plain
// file names are accepted.
func (m *Manager) BackupPath(filename string) (string, error) {
	if err := validateFilename(filename); err != nil {
		return "", err
	}
	return filepath.Join(m.backupDir, filename), nil
}

func validateFilename(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || filepath.Base(name) != name {
		return fmt.Errorf("invalid backup file name %q", name)
	}
	return nil
}

// DeleteBackup removes one artifact. It fails when the file does not exist;
// a file removed concurrently after the check still counts as deleted.
func (m *Manager) DeleteBackup(filename string) error {
	path, err := m.BackupPath(filename)
	if err != nil {
		return err
	}
	info, err := m.fsmgr.Stat(path)
	if err != nil {
		return fmt.Errorf("checking %s: %w", filename, err)
	}
	if info == nil {
		return fmt.Errorf("backup %s: %w", filename, ErrNotFound)
	}
	if err := m.fsmgr.Remove(path); err != nil {
		return fmt.Errorf("deleting %s: %w", filename, err)
	}
	m.logger.Info("backup deleted", "file", filename)
	return nil
}
