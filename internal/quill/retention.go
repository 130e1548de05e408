package quill

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
)

// Cleanup deletes the oldest artifacts of kind beyond its retention count,
// judged by modification time. It returns the names removed. Files that
// vanish in the meantime count as removed.
func (m *Manager) Cleanup(kind Kind) ([]string, error) {
	files, err := m.fsmgr.List(m.backupDir)
	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	var matching []FileInfo
	for _, f := range files {
		if isKind(f.Name, kind) {
			matching = append(matching, f)
		}
	}
	keep := m.retention.Keep(kind)
	if len(matching) <= keep {
		return nil, nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		if !matching[i].Modified.Equal(matching[j].Modified) {
			return matching[i].Modified.After(matching[j].Modified)
		}
		return matching[i].Name > matching[j].Name
	})

	var (
		removed []string
		errs    []error
	)
	for _, f := range matching[keep:] {
		if err := m.fsmgr.Remove(filepath.Join(m.backupDir, f.Name)); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", f.Name, err))
			continue
		}
		removed = append(removed, f.Name)
	}
	if len(removed) > 0 {
		m.logger.Info("old backups removed", "kind", kind, "count", len(removed), "kept", keep)
	}
	return removed, errors.Join(errs...)
}

// pruneRemote applies the local retention count to the remote copies of
// kind.
func (m *Manager) pruneRemote(kind Kind) error {
	remote := m.remoteStore()
	if remote == nil {
		return ErrNoRemote
	}
	files, err := remote.List()
	if err != nil {
		return fmt.Errorf("listing remote: %w", err)
	}

	var matching []RemoteFile
	for _, f := range files {
		if isKind(f.Name, kind) {
			matching = append(matching, f)
		}
	}
	keep := m.retention.Keep(kind)
	if len(matching) <= keep {
		return nil
	}

	sort.SliceStable(matching, func(i, j int) bool {
		if !matching[i].Modified.Equal(matching[j].Modified) {
			return matching[i].Modified.After(matching[j].Modified)
		}
		return matching[i].Name > matching[j].Name
	})

	var errs []error
	for _, f := range matching[keep:] {
		if err := remote.Delete(f.Name); err != nil {
			errs = append(errs, fmt.Errorf("deleting remote %s: %w", f.Name, err))
			continue
		}
		m.logger.Debug("remote backup removed", "file", f.Name)
	}
	return errors.Join(errs...)
}
