package report

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

type palette struct {
	heading  *color.Color
	count    *color.Color
	active   *color.Color
	blocking *color.Color
}

func newPalette(colour bool) palette {
	p := palette{
		heading:  color.New(color.Bold),
		count:    color.New(color.FgCyan),
		active:   color.New(color.FgGreen),
		blocking: color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.heading, p.count, p.active, p.blocking} {
		if colour {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Summary prints bucket sizes and dependency counts for a finished run.
func Summary(w io.Writer, cls *hierarchy.Classification, deps *hierarchy.Dependencies, colour bool) {
	p := newPalette(colour)
	if cls == nil {
		cls = &hierarchy.Classification{}
	}
	if deps == nil {
		deps = &hierarchy.Dependencies{}
	}

	fmt.Fprintln(w, p.heading.Sprint("Sprint summary"))
	row := func(label string, nodes []*hierarchy.Node) {
		active := 0
		for _, n := range nodes {
			if n.HasWorkInStatus(hierarchy.StatusCategoryInProgress) {
				active++
			}
		}
		fmt.Fprintf(w, "  %-10s %s  (%s in progress)\n", label, p.count.Sprintf("%3d", len(nodes)), p.active.Sprint(active))
	}
	row("features", cls.Features)
	row("epics", cls.Epics)
	row("issues", cls.Issues)

	fmt.Fprintf(w, "  %-10s %s blocking us, %s blocked by us\n", "deps",
		p.blocking.Sprint(len(deps.Incoming)), p.blocking.Sprint(len(deps.Outgoing)))
}
