package hierarchy

import (
	"context"
	"fmt"
	"sort"
)

// Relations used for dependency queries.
const (
	RelationIsBlockedBy = "is blocked by"
	RelationBlocks      = "blocks"
)

// Classification splits report roots into orphan issues, orphan epics and
// features. Each list is sorted by rank and holds a node at most once.
type Classification struct {
	Issues   []*Node
	Epics    []*Node
	Features []*Node
}

// Len returns the total number of roots.
func (c *Classification) Len() int {
	return len(c.Issues) + len(c.Epics) + len(c.Features)
}

// Dependencies holds open issues linked to a query's open results.
type Dependencies struct {
	// Incoming are issues with an "is blocked by" link to the query's issues.
	Incoming []*Node
	// Outgoing are issues with a "blocks" link to the query's issues.
	Outgoing []*Node
}

// GatherIssues resolves every result of query and classifies the roots.
func (s *Session) GatherIssues(ctx context.Context, query string) (*Classification, error) {
	if err := s.failed(); err != nil {
		return nil, err
	}
	records, err := s.source.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	leaves := make([]*Node, 0, len(records))
	for _, raw := range records {
		if s.leafFilter != nil {
			keep, err := s.leafFilter(raw)
			if err != nil {
				return nil, fmt.Errorf("filtering %s: %w", raw.Key, err)
			}
			if !keep {
				s.logger.Debug("leaf issue filtered out", "key", raw.Key)
				continue
			}
		}
		n, err := s.Resolve(ctx, raw)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, n)
	}

	cls := Classify(leaves)
	s.logger.Debug("issues classified",
		"leaves", len(leaves),
		"orphan_issues", len(cls.Issues),
		"orphan_epics", len(cls.Epics),
		"features", len(cls.Features),
		"cached", s.Len())
	return cls, nil
}

// GatherIssuesClosedSince is GatherIssues restricted to leaf issues that are
// still open or were resolved after since.
func (s *Session) GatherIssuesClosedSince(ctx context.Context, query, since string) (*Classification, error) {
	return s.GatherIssues(ctx, s.queries.OpenOrResolvedSince(query, since))
}

// GatherDependencies finds open issues blocking, or blocked by, the open
// issues of query. Results share the session cache but are not classified.
func (s *Session) GatherDependencies(ctx context.Context, query string) (*Dependencies, error) {
	incoming, err := s.Search(ctx, s.queries.LinkedTo(query, RelationIsBlockedBy))
	if err != nil {
		return nil, fmt.Errorf("gathering incoming dependencies: %w", err)
	}
	outgoing, err := s.Search(ctx, s.queries.LinkedTo(query, RelationBlocks))
	if err != nil {
		return nil, fmt.Errorf("gathering outgoing dependencies: %w", err)
	}
	return &Dependencies{
		Incoming: SortByRank(incoming),
		Outgoing: SortByRank(outgoing),
	}, nil
}

// Classify buckets the root of every leaf: a leaf with a feature contributes
// the feature, one with only an epic contributes the epic, and a parentless
// leaf contributes itself.
func Classify(leaves []*Node) *Classification {
	var issues, epics, features nodeSet
	for _, leaf := range leaves {
		switch {
		case leaf.Feature != nil:
			features.add(leaf.Feature)
		case leaf.Epic != nil:
			epics.add(leaf.Epic)
		default:
			issues.add(leaf)
		}
	}
	return &Classification{
		Issues:   SortByRank(issues.nodes),
		Epics:    SortByRank(epics.nodes),
		Features: SortByRank(features.nodes),
	}
}

// SortByRank sorts nodes in place by ascending rank and returns them. Equal
// ranks keep their input order.
func SortByRank(nodes []*Node) []*Node {
	sort.SliceStable(nodes, func(i, j int) bool {
		return nodes[i].Rank < nodes[j].Rank
	})
	return nodes
}

// nodeSet is an insertion-ordered set of nodes keyed by issue key.
type nodeSet struct {
	keys  map[string]struct{}
	nodes []*Node
}

func (s *nodeSet) add(n *Node) {
	if s.keys == nil {
		s.keys = make(map[string]struct{})
	}
	if _, ok := s.keys[n.Key]; ok {
		return
	}
	s.keys[n.Key] = struct{}{}
	s.nodes = append(s.nodes, n)
}
