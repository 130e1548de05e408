package quill

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"quill/internal/model"
)

// backupTimeLayout is local ISO-8601 with microseconds and no zone.
const backupTimeLayout = "2006-01-02T15:04:05.000000"

type snapshotChapter struct {
	ID           int64  `json:"id"`
	Title        string `json:"title"`
	BookID       int64  `json:"book_id"`
	Content      string `json:"content"`
	ModifiedTime int64  `json:"modified_time"`
}

type snapshotDocument struct {
	BackupTime string            `json:"backup_time"`
	Chapters   []snapshotChapter `json:"chapters"`
}

func newSnapshotDocument(at time.Time, chapters []*model.ModifiedChapter) snapshotDocument {
	doc := snapshotDocument{
		BackupTime: at.Local().Format(backupTimeLayout),
		Chapters:   make([]snapshotChapter, 0, len(chapters)),
	}
	for _, ch := range chapters {
		doc.Chapters = append(doc.Chapters, snapshotChapter{
			ID:           ch.ID,
			Title:        ch.Title,
			BookID:       ch.BookID,
			Content:      ch.Content,
			ModifiedTime: ch.LastEditedAt,
		})
	}
	return doc
}

func parseSnapshot(data []byte) (*snapshotDocument, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return &doc, nil
}

// encodeJSON renders v indented, leaving non-ASCII text and markup
// characters unescaped.
func encodeJSON(v any, indent string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
