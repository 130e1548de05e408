package database

import (
	"database/sql"
	"fmt"

	"github.com/goccy/go-json"

	"quill/internal/model"
)

func (c *Conn) AddTimeline(bookID int64, name string) (int64, error) {
	id, err := lastInsertID(c.exec(`INSERT INTO timelines (book_id, name, created_at) VALUES (?, ?, ?)`,
		bookID, name, c.now()))
	if err != nil {
		return 0, fmt.Errorf("adding timeline %q: %w", name, err)
	}
	return id, nil
}

func (c *Conn) GetTimelines(bookID int64) ([]*model.Timeline, error) {
	var out []*model.Timeline
	err := c.queryEach(`SELECT id, book_id, name, COALESCE(created_at, 0) FROM timelines WHERE book_id = ? ORDER BY id`,
		[]any{bookID}, func(rows *sql.Rows) error {
			var t model.Timeline
			if err := rows.Scan(&t.ID, &t.BookID, &t.Name, &t.CreatedAt); err != nil {
				return err
			}
			out = append(out, &t)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing timelines of book %d: %w", bookID, err)
	}
	return out, nil
}

func (c *Conn) DeleteTimeline(id int64) error {
	if _, err := c.exec(`DELETE FROM timelines WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting timeline %d: %w", id, err)
	}
	return nil
}

func (c *Conn) GetTimelineEvents(timelineID int64) ([]*model.TimelineEvent, error) {
	var out []*model.TimelineEvent
	err := c.queryEach(
		`SELECT id, timeline_id, parent_id, title, COALESCE(content, ''), COALESCE(event_time, ''),
		        COALESCE(status, ''), COALESCE(order_index, 0), COALESCE(referenced_materials, '[]')
		 FROM timeline_events WHERE timeline_id = ?
		 ORDER BY COALESCE(parent_id, 0), order_index, id`,
		[]any{timelineID}, func(rows *sql.Rows) error {
			var (
				e      model.TimelineEvent
				parent sql.NullInt64
				status string
				refs   string
			)
			if err := rows.Scan(&e.ID, &e.TimelineID, &parent, &e.Title, &e.Content, &e.EventTime,
				&status, &e.OrderIndex, &refs); err != nil {
				return err
			}
			e.ParentID = idPtr(parent)
			e.Status = model.EventStatus(status)
			if refs != "" {
				if err := json.Unmarshal([]byte(refs), &e.ReferencedMaterials); err != nil {
					return fmt.Errorf("decoding references of event %d: %w", e.ID, err)
				}
			}
			out = append(out, &e)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("listing events of timeline %d: %w", timelineID, err)
	}
	return out, nil
}

func (c *Conn) ReplaceTimelineEvents(timelineID int64, events []*model.TimelineEvent) error {
	err := c.withTx(func(tx *Conn) error {
		// Parents may be listed after their children.
		if _, err := tx.exec(`PRAGMA defer_foreign_keys = ON`); err != nil {
			return err
		}
		if _, err := tx.exec(`DELETE FROM timeline_events WHERE timeline_id = ?`, timelineID); err != nil {
			return err
		}

		for _, e := range events {
			status, err := model.ParseEventStatus(string(e.Status))
			if err != nil {
				return err
			}
			refs := e.ReferencedMaterials
			if refs == nil {
				refs = []model.MaterialRef{}
			}
			refsJSON, err := json.Marshal(refs)
			if err != nil {
				return fmt.Errorf("encoding references of %q: %w", e.Title, err)
			}

			var id any
			if e.ID != 0 {
				id = e.ID
			}
			newID, err := lastInsertID(tx.exec(
				`INSERT INTO timeline_events (id, timeline_id, parent_id, title, content, event_time, status, order_index, referenced_materials)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				id, timelineID, nullableID(e.ParentID), e.Title, e.Content, e.EventTime,
				string(status), e.OrderIndex, string(refsJSON)))
			if err != nil {
				return fmt.Errorf("inserting event %q: %w", e.Title, err)
			}
			e.ID = newID
			e.TimelineID = timelineID
			e.Status = status
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replacing events of timeline %d: %w", timelineID, err)
	}
	return nil
}
