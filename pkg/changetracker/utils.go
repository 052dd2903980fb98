package changetracker

import (
	"fmt"
	"strings"
)

// wrapAndIndent wraps text at width characters and indents each line with
// indentSpaces spaces.
func wrapAndIndent(text string, width int, indentSpaces int) string {
	indent := strings.Repeat(" ", indentSpaces)
	var result strings.Builder
	words := strings.Fields(text)
	lineLen := 0
	result.WriteString(indent)
	for i, word := range words {
		if lineLen+len(word)+1 > width {
			result.WriteString("\n" + indent)
			lineLen = 0
		} else if i != 0 {
			result.WriteString(" ")
			lineLen++
		}
		result.WriteString(word)
		lineLen += len(word)
	}
	return result.String()
}

// FormatRecord renders one ChangeRecord as a human-readable summary line
// plus an indented diff, for `forgeref tools history` output.
func FormatRecord(rec ChangeRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  (%s)  plan=%s  status=%s\n", rec.Path, rec.Timestamp.Format("2006-01-02 15:04:05"), rec.PlanID, rec.Status)
	b.WriteString(wrapAndIndent(Diff(rec), 100, 2))
	b.WriteString("\n")
	return b.String()
}
