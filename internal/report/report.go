// Package report turns a classified hierarchy into the files and terminal
// output a sprint review reads.
package report

import (
	"embed"
	"fmt"
	htmltemplate "html/template"
	"io"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/antigravity-dev/sprintreport/internal/config"
	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

//go:embed templates/*.tmpl
var templateFiles embed.FS

const dateLayout = "2006-01-02"

// Data is everything a report template can see.
type Data struct {
	Title string
	// Start is the sprint start as given on the command line, e.g. "-2w".
	Start string
	End   time.Time

	Issues   []*hierarchy.Node
	Epics    []*hierarchy.Node
	Features []*hierarchy.Node
	Incoming []*hierarchy.Node
	Outgoing []*hierarchy.Node
}

// NewData assembles report data from a classification and its dependencies.
func NewData(title, start string, end time.Time, cls *hierarchy.Classification, deps *hierarchy.Dependencies) Data {
	d := Data{Title: title, Start: start, End: end}
	if cls != nil {
		d.Issues, d.Epics, d.Features = cls.Issues, cls.Epics, cls.Features
	}
	if deps != nil {
		d.Incoming, d.Outgoing = deps.Incoming, deps.Outgoing
	}
	return d
}

// RenderOptions selects the output format.
type RenderOptions struct {
	Format string
	// TemplatePath overrides the built-in template for markdown and html.
	TemplatePath string
	// Truncate is the summary width used by the truncate helper via {{ width }}.
	Truncate int
}

// Render writes data to w in the requested format.
func Render(w io.Writer, data Data, opts RenderOptions) error {
	if opts.Truncate <= 0 {
		opts.Truncate = 80
	}
	switch opts.Format {
	case config.FormatJSON:
		return writeJSON(w, NewExport(data))
	case config.FormatYAML:
		return writeYAML(w, NewExport(data))
	case config.FormatHTML:
		tmpl, err := parseHTML(opts)
		if err != nil {
			return err
		}
		if err := tmpl.Execute(w, data); err != nil {
			return fmt.Errorf("execute html template: %w", err)
		}
		return nil
	case config.FormatMarkdown, "":
		tmpl, err := parseText(opts)
		if err != nil {
			return err
		}
		if err := tmpl.Execute(w, data); err != nil {
			return fmt.Errorf("execute template: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unknown report format %q", opts.Format)
	}
}

func funcs(width int) map[string]any {
	return map[string]any{
		"width":    func() int { return width },
		"truncate": truncate,
		"workIn":   workIn,
		"assignee": assigneeName,
		"date":     formatDate,
		"upper":    strings.ToUpper,
	}
}

func parseText(opts RenderOptions) (*template.Template, error) {
	if opts.TemplatePath != "" {
		t, err := template.New(filepath.Base(opts.TemplatePath)).Funcs(funcs(opts.Truncate)).ParseFiles(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("parsing template: %w", err)
		}
		return t, nil
	}
	return template.New("markdown.tmpl").Funcs(funcs(opts.Truncate)).ParseFS(templateFiles, "templates/markdown.tmpl")
}

func parseHTML(opts RenderOptions) (*htmltemplate.Template, error) {
	if opts.TemplatePath != "" {
		t, err := htmltemplate.New(filepath.Base(opts.TemplatePath)).Funcs(funcs(opts.Truncate)).ParseFiles(opts.TemplatePath)
		if err != nil {
			return nil, fmt.Errorf("parsing template: %w", err)
		}
		return t, nil
	}
	return htmltemplate.New("html.tmpl").Funcs(funcs(opts.Truncate)).ParseFS(templateFiles, "templates/html.tmpl")
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(n int, s string) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:max(n, 0)])
	}
	return string(r[:n-3]) + "..."
}

func workIn(status string, n *hierarchy.Node) bool {
	return n != nil && n.HasWorkInStatus(status)
}

func assigneeName(n *hierarchy.Node) string {
	if n == nil || n.Assignee == nil {
		return "unassigned"
	}
	if n.Assignee.DisplayName != "" {
		return n.Assignee.DisplayName
	}
	if n.Assignee.Name != "" {
		return n.Assignee.Name
	}
	return "unassigned"
}

func formatDate(v any) string {
	switch t := v.(type) {
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(dateLayout)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format(dateLayout)
	default:
		return ""
	}
}
