package jira

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

const fullIssueResponse = `{
  "startAt": 0,
  "maxResults": 2,
  "total": 2,
  "issues": [
    {
      "key": "FOO-1",
      "fields": {
        "summary": "Do the thing",
        "issuetype": {"name": "Story"},
        "status": {"name": "Code Review", "statusCategory": {"name": "In Progress"}},
        "assignee": {"name": "jdoe", "displayName": "Jo Doe", "emailAddress": "jdoe@example.com"},
        "customfield_rank": "0|i0001:",
        "customfield_epic": "FOO-10",
        "customfield_feature": null
      },
      "changelog": {
        "histories": [
          {"created": "2024-03-04T09:15:00.000+0000", "items": [{"field": "status", "toString": "In Progress"}]},
          {"created": "not a date", "items": [{"field": "status", "toString": "Done"}]},
          {"created": "2024-03-06T17:00:00.000+0100", "items": [
            {"field": "assignee", "toString": "Jo Doe"},
            {"field": "status", "toString": "Code Review"}
          ]}
        ]
      }
    },
    {
      "key": "FOO-2",
      "fields": {
        "summary": "Orphan",
        "issuetype": {"name": "Bug"},
        "status": {"name": "New", "statusCategory": {"name": "To Do"}},
        "assignee": null,
        "customfield_feature": {"key": "FEAT-7", "id": "12345"}
      }
    }
  ]
}`

func TestSearchMapsFields(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, fullIssueResponse)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "token")
	got, err := c.Search(context.Background(), "project=FOO")
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, "FOO-1", first.Key)
	assert.Equal(t, srv.URL+"/browse/FOO-1", first.URL)
	assert.Equal(t, "Do the thing", first.Summary)
	assert.Equal(t, "Story", first.Type)
	assert.Equal(t, "Code Review", first.Status)
	assert.Equal(t, "In Progress", first.StatusCategory)
	assert.Equal(t, "0|i0001:", first.Rank)
	assert.Equal(t, "FOO-10", first.EpicKey)
	assert.Empty(t, first.FeatureKey)
	require.NotNil(t, first.Assignee)
	assert.Equal(t, hierarchy.Assignee{Name: "jdoe", DisplayName: "Jo Doe", Email: "jdoe@example.com"}, *first.Assignee)

	require.Len(t, first.History, 3)
	assert.Equal(t, "status", first.History[0].Field)
	assert.Equal(t, "In Progress", first.History[0].To)
	assert.True(t, first.History[0].At.Equal(time.Date(2024, 3, 4, 9, 15, 0, 0, time.UTC)))
	assert.Equal(t, "assignee", first.History[1].Field)
	assert.Equal(t, "Code Review", first.History[2].To)

	second := got[1]
	assert.Equal(t, "Bug", second.Type)
	assert.Equal(t, "To Do", second.StatusCategory)
	assert.Nil(t, second.Assignee)
	assert.Empty(t, second.EpicKey)
	assert.Empty(t, second.Rank)
	assert.Equal(t, "FEAT-7", second.FeatureKey)
	assert.Empty(t, second.History)
}

func TestSearchRejectsMalformedField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total":1,"issues":[{"key":"FOO-1","fields":{"customfield_epic":42}}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, "token")
	_, err := c.Search(context.Background(), "project=FOO")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "issue FOO-1: decode field customfield_epic")
}
