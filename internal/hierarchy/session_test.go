package hierarchy

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const leafQuery = "x and open-or-resolved-since x"

type testQueries struct{}

func (testQueries) ByKey(key string) string { return "key=" + key }

func (testQueries) OpenOrResolvedSince(query, since string) string {
	return fmt.Sprintf("%s and open-or-resolved-since %s", query, since)
}

func (testQueries) LinkedTo(query, relation string) string {
	return fmt.Sprintf("linked(%s, %s)", query, relation)
}

// fakeSource answers queries from a fixed table and counts calls per query.
type fakeSource struct {
	results map[string][]RawIssue
	calls   map[string]int
	err     error
}

func newFakeSource(results map[string][]RawIssue) *fakeSource {
	return &fakeSource{results: results, calls: make(map[string]int)}
}

func (f *fakeSource) Search(_ context.Context, query string) ([]RawIssue, error) {
	f.calls[query]++
	if f.err != nil {
		return nil, f.err
	}
	res, ok := f.results[query]
	if !ok {
		return nil, nil
	}
	return res, nil
}

func raw(key, summary, rank string) RawIssue {
	return RawIssue{Key: key, Summary: summary, Rank: rank, Type: TypeStory, StatusCategory: StatusCategoryToDo}
}

func withEpic(r RawIssue, epic string) RawIssue {
	r.EpicKey = epic
	return r
}

func withFeature(r RawIssue, feature string) RawIssue {
	r.FeatureKey = feature
	return r
}

func ofType(r RawIssue, typ string) RawIssue {
	r.Type = typ
	return r
}

func TestGet_CachesIdentity(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"key=FOO-1": {raw("FOO-1", "Simple issue", "a")},
	})
	s := NewSession(src, testQueries{})

	first, err := s.Get(context.Background(), "FOO-1")
	require.NoError(t, err)
	second, err := s.Get(context.Background(), "FOO-1")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, src.calls["key=FOO-1"])
	assert.Equal(t, 1, s.Len())
}

func TestResolve_CachedNodeIgnoresRaw(t *testing.T) {
	s := NewSession(newFakeSource(nil), testQueries{})

	first, err := s.Resolve(context.Background(), raw("FOO-1", "Original", "a"))
	require.NoError(t, err)
	second, err := s.Resolve(context.Background(), raw("FOO-1", "Changed", "z"))
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "Original", second.Summary)
	assert.Equal(t, "a", second.Rank)
}

func TestResolve_EmptyKey(t *testing.T) {
	s := NewSession(newFakeSource(nil), testQueries{})
	_, err := s.Resolve(context.Background(), RawIssue{Summary: "no key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no key")
}

func TestGet_NotFound(t *testing.T) {
	s := NewSession(newFakeSource(nil), testQueries{})

	_, err := s.Get(context.Background(), "FOO-404")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)

	var lookupErr *LookupError
	require.True(t, errors.As(err, &lookupErr))
	assert.Equal(t, "FOO-404", lookupErr.Key)
	assert.Contains(t, err.Error(), "FOO-404")
}

func TestGet_Ambiguous(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"key=FOO-1": {raw("FOO-1", "one", "a"), raw("FOO-1", "two", "b")},
	})
	s := NewSession(src, testQueries{})

	_, err := s.Get(context.Background(), "FOO-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguousKey)
	assert.Contains(t, err.Error(), "2 matches")
	assert.Equal(t, 0, s.Len())
}

func TestGet_SourceError(t *testing.T) {
	src := newFakeSource(nil)
	src.err = errors.New("connection refused")
	s := NewSession(src, testQueries{})

	_, err := s.Get(context.Background(), "FOO-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "FOO-1")
}

func TestResolve_MissingAncestorAborts(t *testing.T) {
	s := NewSession(newFakeSource(nil), testQueries{})

	_, err := s.Resolve(context.Background(), withEpic(raw("FOO-1", "leaf", "a"), "FOO-500"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "FOO-500")
}

func TestResolve_FailureIsSticky(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"key=E-1": {withFeature(ofType(raw("E-1", "epic", "b"), TypeEpic), "F-404")},
	})
	s := NewSession(src, testQueries{})

	_, err := s.Resolve(context.Background(), withEpic(raw("FOO-1", "leaf", "a"), "E-1"))
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Err(), ErrNotFound)

	// E-1 was registered before its feature lookup failed.
	_, err = s.Get(context.Background(), "E-1")
	require.ErrorIs(t, err, ErrSessionFailed)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, src.calls["key=E-1"])

	_, ok := s.Lookup("FOO-1")
	assert.False(t, ok)

	_, err = s.Resolve(context.Background(), raw("FOO-2", "unrelated", "c"))
	assert.ErrorIs(t, err, ErrSessionFailed)
	_, err = s.Search(context.Background(), "q")
	assert.ErrorIs(t, err, ErrSessionFailed)
	_, err = s.GatherIssues(context.Background(), leafQuery)
	assert.ErrorIs(t, err, ErrSessionFailed)
	assert.Zero(t, src.calls[leafQuery])
}

func TestResolve_LookupFailureDoesNotFailSession(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"key=E-1": {ofType(raw("E-1", "epic", "b"), TypeEpic)},
	})
	s := NewSession(src, testQueries{})

	_, err := s.Get(context.Background(), "NOPE-1")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, s.Err())

	e, err := s.Get(context.Background(), "E-1")
	require.NoError(t, err)
	assert.Equal(t, "E-1", e.Key)
}

// G-1 links to E-1 while E-1 is still waiting on its feature, reached
// through F-1 -> B-1 -> G-1. G-1 must end up with the feature E-1 gets.
func TestResolve_EpicChildSeesFeatureSetLater(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"key=E-1": {withFeature(ofType(raw("E-1", "epic", "b"), TypeEpic), "F-1")},
		"key=F-1": {withEpic(ofType(raw("F-1", "feature", "c"), TypeFeature), "B-1")},
		"key=B-1": {withFeature(raw("B-1", "story", "d"), "G-1")},
		"key=G-1": {withEpic(raw("G-1", "story", "e"), "E-1")},
	})
	s := NewSession(src, testQueries{})

	a, err := s.Resolve(context.Background(), withEpic(raw("A-1", "leaf", "a"), "E-1"))
	require.NoError(t, err)

	e, ok := s.Lookup("E-1")
	require.True(t, ok)
	g, ok := s.Lookup("G-1")
	require.True(t, ok)

	require.NotNil(t, e.Feature)
	assert.Equal(t, "F-1", e.Feature.Key)
	assert.Same(t, e, g.Epic)
	assert.Same(t, e.Feature, g.Feature)
	assert.Same(t, e.Feature, a.Feature)
}

func TestResolve_EpicInheritsFeatureAndIgnoresOwnFeatureKey(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"key=E-1": {withFeature(ofType(raw("E-1", "epic", "b"), TypeEpic), "F-1")},
		"key=F-1": {ofType(raw("F-1", "feature", "c"), TypeFeature)},
		"key=F-2": {ofType(raw("F-2", "other feature", "d"), TypeFeature)},
	})
	s := NewSession(src, testQueries{})

	leaf := withFeature(withEpic(raw("I-1", "leaf", "a"), "E-1"), "F-2")
	n, err := s.Resolve(context.Background(), leaf)
	require.NoError(t, err)

	require.NotNil(t, n.Epic)
	require.NotNil(t, n.Feature)
	assert.Equal(t, "E-1", n.Epic.Key)
	assert.Same(t, n.Epic.Feature, n.Feature)
	assert.Equal(t, "F-1", n.Feature.Key)
	assert.Zero(t, src.calls["key=F-2"], "own feature key must not be fetched when an epic is set")
}

func TestResolve_DirectFeatureRequiresFeatureType(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"key=MP-1": {ofType(raw("MP-1", "market problem", "b"), "Market Problem")},
		"key=F-1":  {ofType(raw("F-1", "feature", "c"), TypeFeature)},
	})
	s := NewSession(src, testQueries{})

	ignored, err := s.Resolve(context.Background(), withFeature(raw("I-1", "leaf", "a"), "MP-1"))
	require.NoError(t, err)
	assert.Nil(t, ignored.Feature)
	assert.Nil(t, ignored.Epic)

	mp, ok := s.Lookup("MP-1")
	require.True(t, ok)
	assert.Empty(t, mp.Children)

	linked, err := s.Resolve(context.Background(), withFeature(raw("I-2", "leaf", "a"), "F-1"))
	require.NoError(t, err)
	require.NotNil(t, linked.Feature)
	assert.Equal(t, "F-1", linked.Feature.Key)
	assert.Equal(t, []*Node{linked}, linked.Feature.Children)
}

func TestResolve_CyclicParentsTerminate(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"key=B-1": {withEpic(ofType(raw("B-1", "b", "b"), TypeEpic), "A-1")},
	})
	s := NewSession(src, testQueries{})

	a, err := s.Resolve(context.Background(), withEpic(ofType(raw("A-1", "a", "a"), TypeEpic), "B-1"))
	require.NoError(t, err)

	b, ok := s.Lookup("B-1")
	require.True(t, ok)
	assert.Same(t, a, b.Epic)
	assert.Nil(t, a.Epic, "link that would close the loop is dropped")
	assert.Equal(t, []*Node{b}, a.Children)
	assert.Equal(t, 2, s.Len())
}

func TestResolve_SelfParent(t *testing.T) {
	s := NewSession(newFakeSource(nil), testQueries{})

	n, err := s.Resolve(context.Background(), withEpic(raw("A-1", "a", "a"), "A-1"))
	require.NoError(t, err)
	assert.Nil(t, n.Epic)
	assert.Empty(t, n.Children)
}

func TestSearch_ResolvesInSourceOrder(t *testing.T) {
	src := newFakeSource(map[string][]RawIssue{
		"q": {raw("B", "b", "2"), raw("A", "a", "1")},
	})
	s := NewSession(src, testQueries{})

	nodes, err := s.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "B", nodes[0].Key)
	assert.Equal(t, "A", nodes[1].Key)
}

func TestStartDate(t *testing.T) {
	history := []Change{
		{At: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC), Field: "assignee", To: "alice"},
		{At: time.Date(2024, 3, 2, 23, 30, 0, 0, time.UTC), Field: "status", To: "In Progress"},
		{At: time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC), Field: "status", To: "In Progress"},
	}
	got := startDate(history)
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), *got)

	assert.Nil(t, startDate(nil))
	assert.Nil(t, startDate([]Change{{Field: "status", To: "Done"}}))
}
