// Package filter compiles boolean expressions that select which leaf issues
// take part in a report.
package filter

import (
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

// Env is the set of names visible to a filter expression.
type Env struct {
	Key            string
	Summary        string
	Type           string
	Status         string
	StatusCategory string
	Assignee       string
	Epic           string
	Feature        string
	Rank           string
}

// Program is a compiled filter. A nil Program matches everything.
type Program struct {
	source  string
	program *vm.Program
}

// Compile parses src as a boolean expression over Env. An empty src yields a
// nil Program.
func Compile(src string) (*Program, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, nil
	}
	program, err := expr.Compile(src, expr.Env(Env{}), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile leaf filter %q: %w", src, err)
	}
	return &Program{source: src, program: program}, nil
}

func (p *Program) String() string {
	if p == nil {
		return "true"
	}
	return p.source
}

// Match reports whether raw satisfies the expression.
func (p *Program) Match(raw hierarchy.RawIssue) (bool, error) {
	if p == nil {
		return true, nil
	}
	out, err := vm.Run(p.program, envFor(raw))
	if err != nil {
		return false, fmt.Errorf("evaluate leaf filter on %s: %w", raw.Key, err)
	}
	ok, isBool := out.(bool)
	if !isBool {
		return false, fmt.Errorf("leaf filter on %s returned %T, want bool", raw.Key, out)
	}
	return ok, nil
}

// LeafFilter adapts p for hierarchy.WithLeafFilter.
func (p *Program) LeafFilter() hierarchy.LeafFilter {
	if p == nil {
		return nil
	}
	return p.Match
}

func envFor(raw hierarchy.RawIssue) Env {
	env := Env{
		Key:            raw.Key,
		Summary:        raw.Summary,
		Type:           raw.Type,
		Status:         raw.Status,
		StatusCategory: raw.StatusCategory,
		Epic:           raw.EpicKey,
		Feature:        raw.FeatureKey,
		Rank:           raw.Rank,
	}
	if a := raw.Assignee; a != nil {
		env.Assignee = a.DisplayName
		if env.Assignee == "" {
			env.Assignee = a.Name
		}
	}
	return env
}
