package quill

import "time"

// RemoteFile describes one artifact held by a remote store.
type RemoteFile struct {
	Name     string
	Modified time.Time
	Size     int64
}

// RemoteStore is the optional off-site sink for backup artifacts. Names are
// plain file names; implementations decide where they live.
type RemoteStore interface {
	// Upload copies the local file to the remote under remoteName,
	// replacing any existing object.
	Upload(localPath, remoteName string) error

	// Download fetches remoteName into localDir and returns the local path.
	Download(remoteName, localDir string) (string, error)

	// List returns every artifact on the remote.
	List() ([]RemoteFile, error)

	// Delete removes remoteName. Deleting a missing object succeeds.
	Delete(remoteName string) error
}
