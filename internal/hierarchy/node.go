// Package hierarchy resolves flat tracker search results into an
// issue → epic → feature forest and classifies the roots for reporting.
package hierarchy

import (
	"fmt"
	"strings"
	"time"
)

const (
	TypeStory   = "Story"
	TypeEpic    = "Epic"
	TypeFeature = "Feature"

	StatusCategoryToDo       = "To Do"
	StatusCategoryInProgress = "In Progress"
	StatusCategoryDone       = "Done"

	startStatus = "In Progress"
)

// Node is one issue, epic or feature. Exactly one Node exists per key within
// a Session. Parent links are set while the Session builds the node; only the
// feature inherited through an epic can change later, while that epic is
// still being built.
type Node struct {
	Key            string
	URL            string
	Summary        string
	Rank           string
	Type           string
	Status         string
	StatusCategory string
	Assignee       *Assignee
	StartDate      *time.Time

	Epic     *Node
	Feature  *Node
	Children []*Node
}

func newNode(raw RawIssue) *Node {
	return &Node{
		Key:            raw.Key,
		URL:            raw.URL,
		Summary:        raw.Summary,
		Rank:           raw.Rank,
		Type:           raw.Type,
		Status:         raw.Status,
		StatusCategory: raw.StatusCategory,
		Assignee:       raw.Assignee,
		StartDate:      startDate(raw.History),
	}
}

// startDate returns the day of the first transition into "In Progress".
func startDate(history []Change) *time.Time {
	for _, change := range history {
		if change.Field == "status" && change.To == startStatus {
			y, m, d := change.At.Date()
			day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}

// addChild appends child unless it is already present.
func (n *Node) addChild(child *Node) {
	for _, c := range n.Children {
		if c == child {
			return
		}
	}
	n.Children = append(n.Children, child)
}

// inheritFeature copies n's feature down to every child that reached it
// through its epic link, including children linked while n was being built.
func (n *Node) inheritFeature() {
	for _, c := range n.Children {
		if c.Epic == n && c.Feature != n.Feature {
			c.Feature = n.Feature
			c.inheritFeature()
		}
	}
}

// Root returns the highest resolved ancestor, or n itself when it has none.
func (n *Node) Root() *Node {
	switch {
	case n.Feature != nil:
		return n.Feature
	case n.Epic != nil:
		return n.Epic
	default:
		return n
	}
}

// IsDone reports whether the node's status category is Done.
func (n *Node) IsDone() bool {
	return strings.EqualFold(n.StatusCategory, StatusCategoryDone)
}

// HasWorkInStatus reports whether n or any of its descendants is in the
// given status category.
func (n *Node) HasWorkInStatus(status string) bool {
	return n.hasWorkInStatus(status, make(map[*Node]struct{}))
}

func (n *Node) hasWorkInStatus(status string, seen map[*Node]struct{}) bool {
	if _, ok := seen[n]; ok {
		return false
	}
	seen[n] = struct{}{}
	if n.StatusCategory == status {
		return true
	}
	for _, child := range n.Children {
		if child.hasWorkInStatus(status, seen) {
			return true
		}
	}
	return false
}

func (n *Node) String() string {
	return fmt.Sprintf("<%s (%s, %s): %s>", n.Key, n.Type, n.StatusCategory, n.Summary)
}
