package hierarchy

import (
	"context"
	"fmt"
	"log/slog"
)

// LeafFilter decides whether a leaf search result takes part in a report.
type LeafFilter func(RawIssue) (bool, error)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used for resolution diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLeafFilter drops leaf issues for which f returns false before they are
// resolved, so their ancestors are not fetched on their behalf.
func WithLeafFilter(f LeafFilter) Option {
	return func(s *Session) { s.leafFilter = f }
}

// Session owns the node cache for one report run. It guarantees a single
// Node per key and is not safe for concurrent use. Once resolving a node
// fails the cache may hold partially linked nodes, so every later call
// returns ErrSessionFailed wrapping the original error.
type Session struct {
	source     Source
	queries    Queries
	logger     *slog.Logger
	leafFilter LeafFilter

	nodes map[string]*Node
	err   error
}

// NewSession creates an empty session backed by src.
func NewSession(src Source, queries Queries, opts ...Option) *Session {
	s := &Session{
		source:  src,
		queries: queries,
		logger:  slog.Default(),
		nodes:   make(map[string]*Node),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Len returns the number of cached nodes.
func (s *Session) Len() int { return len(s.nodes) }

// Err returns the error that failed the session, if any.
func (s *Session) Err() error { return s.err }

func (s *Session) failed() error {
	if s.err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrSessionFailed, s.err)
}

// Lookup returns the cached node for key without fetching. A failed session
// has no usable nodes.
func (s *Session) Lookup(key string) (*Node, bool) {
	if s.err != nil {
		return nil, false
	}
	n, ok := s.nodes[key]
	return n, ok
}

// Get returns the node for key, fetching and resolving it on a cache miss.
func (s *Session) Get(ctx context.Context, key string) (*Node, error) {
	if err := s.failed(); err != nil {
		return nil, err
	}
	if n, ok := s.nodes[key]; ok {
		return n, nil
	}

	s.logger.Debug("fetching issue", "key", key)
	records, err := s.source.Search(ctx, s.queries.ByKey(key))
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	switch len(records) {
	case 0:
		return nil, &LookupError{Key: key, Err: ErrNotFound}
	case 1:
		return s.Resolve(ctx, records[0])
	default:
		return nil, &LookupError{Key: key, Matches: len(records), Err: ErrAmbiguousKey}
	}
}

// Resolve returns the node for raw, building it and its ancestor chain if the
// key has not been seen in this session. A cached node is returned unchanged
// and raw is ignored.
func (s *Session) Resolve(ctx context.Context, raw RawIssue) (*Node, error) {
	if err := s.failed(); err != nil {
		return nil, err
	}
	if raw.Key == "" {
		return nil, fmt.Errorf("issue record has no key")
	}
	if n, ok := s.nodes[raw.Key]; ok {
		return n, nil
	}

	// Register before linking: a parent chain that leads back here must find
	// this node instead of building it again.
	n := newNode(raw)
	s.nodes[raw.Key] = n

	if err := s.link(ctx, n, raw); err != nil {
		err = fmt.Errorf("resolving %s: %w", raw.Key, err)
		if s.err == nil {
			s.err = err
		}
		return nil, err
	}
	return n, nil
}

// link wires n to its epic and feature parents.
func (s *Session) link(ctx context.Context, n *Node, raw RawIssue) error {
	switch {
	case raw.EpicKey != "":
		epic, err := s.Get(ctx, raw.EpicKey)
		if err != nil {
			return err
		}
		if s.cyclic(n, epic) {
			return nil
		}
		n.Epic = epic
		epic.addChild(n)
		n.Feature = epic.Feature
		n.inheritFeature()

	case raw.FeatureKey != "":
		feature, err := s.Get(ctx, raw.FeatureKey)
		if err != nil {
			return err
		}
		if feature.Type != TypeFeature {
			s.logger.Warn("ignoring feature link to non-feature issue",
				"key", n.Key, "parent", feature.Key, "parent_type", feature.Type)
			return nil
		}
		if s.cyclic(n, feature) {
			return nil
		}
		n.Feature = feature
		feature.addChild(n)
		n.inheritFeature()
	}
	return nil
}

// cyclic reports whether making parent an ancestor of n would close a loop.
func (s *Session) cyclic(n, parent *Node) bool {
	seen := make(map[*Node]struct{})
	for p := parent; p != nil; {
		if p == n {
			s.logger.Warn("ignoring cyclic parent reference", "key", n.Key, "parent", parent.Key)
			return true
		}
		if _, ok := seen[p]; ok {
			return false
		}
		seen[p] = struct{}{}
		if p.Epic != nil {
			p = p.Epic
		} else {
			p = p.Feature
		}
	}
	return false
}

// Search runs query and resolves every result, preserving source order.
func (s *Session) Search(ctx context.Context, query string) ([]*Node, error) {
	if err := s.failed(); err != nil {
		return nil, err
	}
	records, err := s.source.Search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}
	nodes := make([]*Node, 0, len(records))
	for _, raw := range records {
		n, err := s.Resolve(ctx, raw)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}
