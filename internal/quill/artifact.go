package quill

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the kind of backup a worker produces.
type Kind string

const (
	KindSnapshot Kind = "snapshot"
	KindStage    Kind = "stage"
	KindArchive  Kind = "archive"
)

// Kinds lists every backup kind.
var Kinds = []Kind{KindSnapshot, KindStage, KindArchive}

func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == strings.ToLower(s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown backup kind %q (want snapshot, stage or archive)", s)
}

func (k Kind) String() string { return string(k) }

// Prefix is the file name prefix shared by all artifacts of kind k.
func (k Kind) Prefix() string { return "backup_" + string(k) + "_" }

func (k Kind) ext() string {
	if k == KindSnapshot {
		return ".json"
	}
	return ".zip"
}

const (
	fileTimeLayout = "2006-01-02_15-04-05"
	dayLayout      = "2006-01-02"
	legacyExt      = ".bcb"
)

// ArtifactName returns the file name of a kind k artifact created at t.
// Names embed local time so they sort chronologically.
func ArtifactName(k Kind, t time.Time) string {
	return k.Prefix() + t.Local().Format(fileTimeLayout) + k.ext()
}

// archiveDayPrefix matches every archive written on t's local day.
func archiveDayPrefix(t time.Time) string {
	return KindArchive.Prefix() + t.Local().Format(dayLayout)
}

// ArtifactType classifies a file found in the backup directory.
type ArtifactType string

const (
	ArtifactSnapshot ArtifactType = "Snapshot"
	ArtifactStage    ArtifactType = "Stage"
	ArtifactArchive  ArtifactType = "Archive"
	ArtifactBCB      ArtifactType = "BCB"
)

// ClassifyArtifact reports the type of a backup file name, or false when
// the name is not a backup artifact.
func ClassifyArtifact(name string) (ArtifactType, bool) {
	switch {
	case isKind(name, KindSnapshot):
		return ArtifactSnapshot, true
	case isKind(name, KindStage):
		return ArtifactStage, true
	case isKind(name, KindArchive):
		return ArtifactArchive, true
	case strings.HasSuffix(strings.ToLower(name), legacyExt):
		return ArtifactBCB, true
	}
	return "", false
}

func isKind(name string, k Kind) bool {
	return strings.HasPrefix(name, k.Prefix()) && strings.HasSuffix(name, k.ext())
}

// BackupEntry is one artifact in the local backup directory.
type BackupEntry struct {
	Filename string
	Dir      string
	Type     ArtifactType
	Size     int64
	Modified time.Time
}

// Retention is the number of artifacts of each kind kept after a run.
type Retention struct {
	Snapshot int
	Stage    int
	Archive  int
}

// DefaultRetention keeps 15 snapshots, 5 stage points and 15 archives.
var DefaultRetention = Retention{Snapshot: 15, Stage: 5, Archive: 15}

// Keep returns the count kept for kind k. Non-positive counts fall back to
// the defaults.
func (r Retention) Keep(k Kind) int {
	var n, def int
	switch k {
	case KindSnapshot:
		n, def = r.Snapshot, DefaultRetention.Snapshot
	case KindStage:
		n, def = r.Stage, DefaultRetention.Stage
	case KindArchive:
		n, def = r.Archive, DefaultRetention.Archive
	}
	if n <= 0 {
		return def
	}
	return n
}
