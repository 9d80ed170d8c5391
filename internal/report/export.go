package report

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

// Entry is the structured form of a Node used by the json and yaml formats.
type Entry struct {
	Key            string  `json:"key" yaml:"key"`
	Summary        string  `json:"summary" yaml:"summary"`
	Type           string  `json:"type" yaml:"type"`
	Status         string  `json:"status" yaml:"status"`
	StatusCategory string  `json:"status_category" yaml:"status_category"`
	Rank           string  `json:"rank,omitempty" yaml:"rank,omitempty"`
	Assignee       string  `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	StartDate      string  `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	URL            string  `json:"url,omitempty" yaml:"url,omitempty"`
	Children       []Entry `json:"children,omitempty" yaml:"children,omitempty"`
}

// Export is the document written for the json and yaml formats.
type Export struct {
	Title     string  `json:"title,omitempty" yaml:"title,omitempty"`
	Start     string  `json:"sprint_start" yaml:"sprint_start"`
	Generated string  `json:"generated" yaml:"generated"`
	Features  []Entry `json:"features" yaml:"features"`
	Epics     []Entry `json:"epics" yaml:"epics"`
	Issues    []Entry `json:"issues" yaml:"issues"`
	Incoming  []Entry `json:"incoming" yaml:"incoming"`
	Outgoing  []Entry `json:"outgoing" yaml:"outgoing"`
}

// NewExport flattens data into plain values. Hierarchy buckets keep their
// subtrees; dependency lists are flat.
func NewExport(data Data) Export {
	return Export{
		Title:     data.Title,
		Start:     data.Start,
		Generated: formatDate(data.End),
		Features:  entries(data.Features, true),
		Epics:     entries(data.Epics, true),
		Issues:    entries(data.Issues, true),
		Incoming:  entries(data.Incoming, false),
		Outgoing:  entries(data.Outgoing, false),
	}
}

func entries(nodes []*hierarchy.Node, withChildren bool) []Entry {
	out := make([]Entry, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, entryFor(n, withChildren, map[*hierarchy.Node]bool{}))
	}
	return out
}

func entryFor(n *hierarchy.Node, withChildren bool, seen map[*hierarchy.Node]bool) Entry {
	seen[n] = true
	e := Entry{
		Key:            n.Key,
		Summary:        n.Summary,
		Type:           n.Type,
		Status:         n.Status,
		StatusCategory: n.StatusCategory,
		Rank:           n.Rank,
		StartDate:      formatDate(n.StartDate),
		URL:            n.URL,
	}
	if n.Assignee != nil {
		e.Assignee = assigneeName(n)
	}
	if !withChildren {
		return e
	}
	for _, c := range n.Children {
		if seen[c] {
			continue
		}
		e.Children = append(e.Children, entryFor(c, true, seen))
	}
	return e
}

func writeJSON(w io.Writer, doc Export) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode json report: %w", err)
	}
	return nil
}

func writeYAML(w io.Writer, doc Export) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode yaml report: %w", err)
	}
	return nil
}
