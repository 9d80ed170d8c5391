package jira

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestJQL(t *testing.T) {
	var q JQL

	assert.Equal(t, "project=OCPBUGS", q.Project(" OCPBUGS "))
	assert.Equal(t, "key=FOO-1", q.ByKey("FOO-1"))
	assert.Equal(t,
		"project=FOO and type not in (Feature, Epic) and (statusCategory != Done or resolutionDate > -2w)",
		q.OpenOrResolvedSince("project=FOO", "-2w"))
	assert.Equal(t,
		"issueFunction in linkedIssuesOf('project=FOO and statusCategory != Done', 'is blocked by') and statusCategory != Done",
		q.LinkedTo("project=FOO", "is blocked by"))
}

func TestJQLLinkedToEscapesQuotes(t *testing.T) {
	got := JQL{}.LinkedTo("summary ~ 'x'", "blocks")
	assert.Equal(t,
		`issueFunction in linkedIssuesOf('summary ~ \'x\' and statusCategory != Done', 'blocks') and statusCategory != Done`,
		got)
}
