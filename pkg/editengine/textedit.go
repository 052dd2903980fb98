package editengine

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	"github.com/forgeref/forgeref/pkg/types"
)

// ApplyTextEdits applies edits to content and returns the result. Edits are
// re-sorted by start position and applied in reverse order (spec.md §4.3
// staging algorithm: "reverse-order-by-start") so that splicing one edit
// never invalidates the line/character coordinates of edits earlier in the
// file. Overlapping edits are rejected by the caller before this is ever
// invoked (pre-validation); ApplyTextEdits itself assumes a non-overlapping
// set and does not re-check.
func ApplyTextEdits(content string, edits []types.TextEdit) (string, error) {
	sorted := make([]types.TextEdit, len(edits))
	copy(sorted, edits)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Range.Start.Less(sorted[j].Range.Start)
	})

	lines := splitKeepEnds(content)
	// Apply from the last edit to the first so earlier positions stay valid.
	for i := len(sorted) - 1; i >= 0; i-- {
		var err error
		lines, err = spliceOne(lines, sorted[i])
		if err != nil {
			return "", err
		}
	}
	return strings.Join(lines, ""), nil
}

// splitKeepEnds splits content into lines, each retaining its trailing
// newline (the last line may have none), so rejoining with strings.Join
// recovers the exact original byte layout when nothing changed.
func splitKeepEnds(content string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	lines = append(lines, content[start:])
	return lines
}

// spliceOne rewrites the lines touched by a single edit, whose positions
// are UTF-16 code-unit offsets within their line (spec.md §3 Position).
func spliceOne(lines []string, edit types.TextEdit) ([]string, error) {
	start, end := edit.Range.Start, edit.Range.End
	if start.Line < 0 || start.Line >= len(lines) || end.Line < 0 || end.Line >= len(lines) {
		return nil, fmt.Errorf("editengine: edit range %s out of bounds for %d lines", edit.Range, len(lines))
	}

	startLine := lineBody(lines[start.Line])
	startUnits := utf16.Encode([]rune(startLine))
	if start.Character > len(startUnits) {
		return nil, fmt.Errorf("editengine: start character %d beyond line %d length %d", start.Character, start.Line, len(startUnits))
	}
	prefix := string(utf16.Decode(startUnits[:start.Character]))

	endLine := lineBody(lines[end.Line])
	endUnits := utf16.Encode([]rune(endLine))
	if end.Character > len(endUnits) {
		return nil, fmt.Errorf("editengine: end character %d beyond line %d length %d", end.Character, end.Line, len(endUnits))
	}
	suffix := string(utf16.Decode(endUnits[end.Character:]))
	trailingNewline := lineEnding(lines[end.Line])

	replaced := prefix + edit.NewText + suffix + trailingNewline

	// Replace lines[start.Line..end.Line] with the single, possibly
	// multi-line, replaced string, then re-split it so later lookups by
	// line number stay correct for any subsequent (earlier-positioned)
	// edit in this same pass.
	out := make([]string, 0, len(lines)-(end.Line-start.Line))
	out = append(out, lines[:start.Line]...)
	out = append(out, splitKeepEnds(replaced)...)
	out = append(out, lines[end.Line+1:]...)
	return out, nil
}

func lineBody(line string) string {
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
}

func lineEnding(line string) string {
	if strings.HasSuffix(line, "\r\n") {
		return "\r\n"
	}
	if strings.HasSuffix(line, "\n") {
		return "\n"
	}
	return ""
}
