package editengine

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// Preview renders a unified-diff-style preview of the change to one file,
// grounded on the teacher's pkg/changetracker/difflogger.go GetDiff: both
// use diffmatchpatch's semantic cleanup before rendering, and both report
// an addition/deletion byte count line first. This version drops the
// teacher's optional python-subprocess diff path and ANSI coloring — the
// edit engine's preview is consumed by dry-run plan summaries and the
// changetracker, which want plain text, not a terminal render.
func Preview(path, before, after string) string {
	if before == after {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, true)
	diffs = dmp.DiffCleanupSemantic(diffs)

	var adds, dels int
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			adds += len(d.Text)
		case diffmatchpatch.DiffDelete:
			dels += len(d.Text)
		}
	}

	var out strings.Builder
	fmt.Fprintf(&out, "%s +%d -%d\n", path, adds, dels)
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			writePrefixedLines(&out, "+ ", d.Text)
		case diffmatchpatch.DiffDelete:
			writePrefixedLines(&out, "- ", d.Text)
		}
	}
	return out.String()
}

func writePrefixedLines(out *strings.Builder, prefix, text string) {
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		out.WriteString(prefix)
		out.WriteString(line)
		out.WriteString("\n")
	}
}
