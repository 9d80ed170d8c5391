package jira

import (
	"fmt"
	"strings"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

const notDone = "statusCategory != Done"

// JQL builds the Jira queries used by a hierarchy.Session.
type JQL struct{}

var _ hierarchy.Queries = JQL{}

// Project selects every issue of a project.
func (JQL) Project(name string) string {
	return "project=" + strings.TrimSpace(name)
}

func (JQL) ByKey(key string) string {
	return "key=" + key
}

func (JQL) OpenOrResolvedSince(query, since string) string {
	return fmt.Sprintf("%s and type not in (Feature, Epic) and (%s or resolutionDate > %s)", query, notDone, since)
}

// LinkedTo relies on the ScriptRunner linkedIssuesOf function.
func (JQL) LinkedTo(query, relation string) string {
	inner := strings.ReplaceAll(query+" and "+notDone, "'", `\'`)
	return fmt.Sprintf("issueFunction in linkedIssuesOf('%s', '%s') and %s", inner, relation, notDone)
}
