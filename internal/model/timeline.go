package model

import "fmt"

// Timeline groups the events of one book.
type Timeline struct {
	ID        int64
	BookID    int64
	Name      string
	CreatedAt int64
}

// EventStatus is the progress marker of a timeline event.
type EventStatus string

const (
	StatusNotStarted EventStatus = "Not Started"
	StatusInProgress EventStatus = "In Progress"
	StatusCompleted  EventStatus = "Completed"
	StatusMilestone  EventStatus = "Milestone"
)

// ParseEventStatus validates a status string. Empty means not started.
func ParseEventStatus(s string) (EventStatus, error) {
	switch st := EventStatus(s); st {
	case "":
		return StatusNotStarted, nil
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusMilestone:
		return st, nil
	default:
		return "", fmt.Errorf("unknown event status: %q", s)
	}
}

// MaterialRef is a lightweight pointer from an event to a material.
type MaterialRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TimelineEvent is a node in a timeline's event forest. Siblings are ordered
// by OrderIndex.
type TimelineEvent struct {
	ID                  int64
	TimelineID          int64
	ParentID            *int64
	Title               string
	Content             string
	EventTime           string
	Status              EventStatus
	OrderIndex          int
	ReferencedMaterials []MaterialRef
}

// EventNode is a TimelineEvent with its children attached.
type EventNode struct {
	Event    *TimelineEvent
	Children []*EventNode
}

// BuildEventForest arranges events into trees. Events whose parent is not in
// the slice become roots. Input order among siblings is preserved, so callers
// should pass events sorted by OrderIndex.
func BuildEventForest(events []*TimelineEvent) []*EventNode {
	nodes := make(map[int64]*EventNode, len(events))
	for _, e := range events {
		nodes[e.ID] = &EventNode{Event: e}
	}

	var roots []*EventNode
	for _, e := range events {
		n := nodes[e.ID]
		if e.ParentID != nil {
			if parent, ok := nodes[*e.ParentID]; ok && parent != n {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}
