package hierarchy

import (
	"context"
	"time"
)

// Assignee identifies the person an issue is assigned to.
type Assignee struct {
	Name        string `json:"name" yaml:"name"`
	DisplayName string `json:"display_name" yaml:"display_name"`
	Email       string `json:"email,omitempty" yaml:"email,omitempty"`
}

// Change is a single field transition from an issue's history.
type Change struct {
	At    time.Time
	Field string
	To    string
}

// RawIssue is the tracker-neutral shape of one search result. Sources map
// their own schema (custom field ids and the like) onto it.
type RawIssue struct {
	Key            string
	URL            string
	Summary        string
	Rank           string
	Type           string
	Status         string
	StatusCategory string
	Assignee       *Assignee
	EpicKey        string
	FeatureKey     string
	History        []Change
}

// Source runs tracker queries. Ordering of the returned records is not
// relied upon; callers sort by rank.
type Source interface {
	Search(ctx context.Context, query string) ([]RawIssue, error)
}

// Queries builds the tracker queries a Session needs.
type Queries interface {
	// ByKey selects exactly the issue with the given key.
	ByKey(key string) string
	// OpenOrResolvedSince narrows query to leaf issues that are not done or
	// were resolved after since.
	OpenOrResolvedSince(query, since string) string
	// LinkedTo selects open issues linked to the open subset of query by relation.
	LinkedTo(query, relation string) string
}
