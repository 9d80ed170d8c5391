package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"

	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
)

func TestSummaryPlain(t *testing.T) {
	data := sampleData()
	cls := &hierarchy.Classification{Issues: data.Issues, Epics: data.Epics, Features: data.Features}
	deps := &hierarchy.Dependencies{Incoming: data.Incoming}

	var buf bytes.Buffer
	Summary(&buf, cls, deps, false)

	want := "Sprint summary\n" +
		"  features     1  (1 in progress)\n" +
		"  epics        1  (0 in progress)\n" +
		"  issues       1  (0 in progress)\n" +
		"  deps       1 blocking us, 0 blocked by us\n"
	assert.Equal(t, want, buf.String())
}

func TestSummaryColour(t *testing.T) {
	var buf bytes.Buffer
	Summary(&buf, nil, nil, true)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\x1b[1mSprint summary\x1b["), "%q", out)
	assert.True(t, strings.HasPrefix(out, colourised(color.Bold, "Sprint summary")+"\n"), "%q", out)
	assert.Contains(t, out, colourised(color.FgCyan, "  0"))
}

// colourised renders s as fatih/color does for a terminal.
func colourised(attr color.Attribute, s string) string {
	c := color.New(attr)
	c.EnableColor()
	return c.Sprint(s)
}
