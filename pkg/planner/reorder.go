package planner

import (
	"context"
	"strings"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/types"
)

// ReorderKind names what list PlanReorder is permuting (spec.md §4.4.6).
type ReorderKind string

const (
	ReorderParameters ReorderKind = "parameters"
	ReorderFields     ReorderKind = "fields"
	ReorderImports    ReorderKind = "imports"
	ReorderStatements ReorderKind = "statements"
)

// ReorderRequest is the input to PlanReorder. Range spans the
// comma-or-newline-separated list being reordered (the parameter list
// inside its parens, the field block inside its braces, etc.).
// CurrentOrder must name each item in the order it appears in Range;
// NewOrder must be a permutation of CurrentOrder.
type ReorderRequest struct {
	Kind            ReorderKind
	File            string
	Range           types.Range
	CurrentOrder    []string
	NewOrder        []string
	UpdateCallSites bool // parameters only
	SymbolPosition  types.Position
}

// PlanReorder implements spec.md §4.4.6. NewOrder failing to be a
// permutation of CurrentOrder is a hard error, per spec: "any mismatch
// is a hard error."
func PlanReorder(ctx context.Context, deps Deps, req ReorderRequest) (*types.EditPlan, error) {
	if err := validatePermutation(req.CurrentOrder, req.NewOrder); err != nil {
		return nil, err
	}
	plan := newPlan(types.PlanReorder)
	source, err := recordChecksum(deps.FS, plan, req.File)
	if err != nil {
		return nil, err
	}

	declText := sliceRange(source, req.Range)
	var sep string
	switch req.Kind {
	case ReorderStatements, ReorderImports:
		sep = "\n"
	default:
		sep = ","
	}
	segments := splitTopLevel(declText, sep)
	if len(segments) != len(req.CurrentOrder) {
		return nil, obserr.New(obserr.CategoryInvalidTarget, "declaration has a different number of items than currentOrder describes")
	}

	perm := permutationIndices(req.CurrentOrder, req.NewOrder)
	newText := joinReordered(segments, perm, sep)
	plan.AddTextEdit(types.TextEdit{Path: req.File, Range: req.Range, NewText: newText})

	plugin := deps.Registry.ForPath(req.File)
	if req.Kind == ReorderParameters && req.UpdateCallSites {
		if deps.LSP == nil {
			plan.AddWarning("no language server available; call sites were not updated for the reordered parameters")
		} else {
			refs, err := deps.LSP.References(ctx, req.File, req.SymbolPosition, false)
			if err != nil {
				plan.AddWarning("reference lookup failed (" + err.Error() + "); call sites were not updated")
			}
			for _, ref := range refs {
				if err := reorderCallSite(deps, plan, ref, perm, len(req.CurrentOrder)); err != nil {
					plan.AddWarning("skipped a call site at " + ref.Path + ":" + ref.Range.Start.String() + ": " + err.Error())
				}
			}
		}
	}

	return finish(plan, plugin.Metadata().LanguageName), nil
}

func validatePermutation(current, next []string) error {
	if len(current) != len(next) {
		return obserr.New(obserr.CategoryInvalidRequest, "newOrder must name exactly the items in currentOrder")
	}
	seen := map[string]int{}
	for _, c := range current {
		seen[c]++
	}
	for _, n := range next {
		if seen[n] == 0 {
			return obserr.New(obserr.CategoryInvalidRequest, "newOrder is not a permutation of currentOrder: unexpected item "+n)
		}
		seen[n]--
	}
	for name, count := range seen {
		if count != 0 {
			return obserr.New(obserr.CategoryInvalidRequest, "newOrder is not a permutation of currentOrder: missing item "+name)
		}
	}
	return nil
}

// permutationIndices returns, for each position in newOrder, the index
// in currentOrder it pulls from. Duplicate names resolve in first-seen
// order on both sides.
func permutationIndices(current, next []string) []int {
	used := make([]bool, len(current))
	perm := make([]int, len(next))
	for i, name := range next {
		for j, c := range current {
			if !used[j] && c == name {
				perm[i] = j
				used[j] = true
				break
			}
		}
	}
	return perm
}

func joinReordered(segments []string, perm []int, sep string) string {
	out := make([]string, len(perm))
	for i, idx := range perm {
		out[i] = segments[idx]
	}
	joiner := sep
	if sep == "," {
		joiner = ", "
	}
	return strings.Join(trimAll(out), joiner)
}

func trimAll(segs []string) []string {
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = strings.TrimSpace(s)
	}
	return out
}

// splitTopLevel splits text on sep, ignoring occurrences nested inside
// (), [], {}, or string/char literals — enough to tell a parameter list's
// commas apart from a default value's or generic type's commas.
func splitTopLevel(text, sep string) []string {
	var out []string
	depth := 0
	var quote byte
	start := 0
	sepByte := sep[0]
	for i := 0; i < len(text); i++ {
		c := text[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sepByte:
			if depth == 0 {
				out = append(out, text[start:i])
				start = i + 1
			}
		}
	}
	out = append(out, text[start:])
	var trimmed []string
	for _, s := range out {
		if sep == "\n" && strings.TrimSpace(s) == "" {
			continue
		}
		trimmed = append(trimmed, s)
	}
	return trimmed
}

// reorderCallSite finds the parenthesized argument list immediately
// following a reference to the reordered function and permutes it the
// same way as the declaration's parameter list. Call sites whose
// argument count doesn't match the declaration (e.g. named/keyword
// arguments, variadic spread) are left untouched and reported by the
// caller via a plan warning.
func reorderCallSite(deps Deps, plan *types.EditPlan, ref types.Location, perm []int, expected int) error {
	source, err := deps.FS.ReadFile(ref.Path)
	if err != nil {
		return err
	}
	identEnd := posToOffset(source, ref.Range.End)
	i := identEnd
	for i < len(source) && (source[i] == ' ' || source[i] == '\t') {
		i++
	}
	if i >= len(source) || source[i] != '(' {
		return obserr.New(obserr.CategoryPlan, "reference is not a call site")
	}
	open := i
	depth := 0
	close := -1
	for j := open; j < len(source); j++ {
		switch source[j] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				close = j
			}
		}
		if close >= 0 {
			break
		}
	}
	if close < 0 {
		return obserr.New(obserr.CategoryPlan, "unbalanced parens at call site")
	}
	args := splitTopLevel(source[open+1:close], ",")
	if len(args) != expected {
		return obserr.New(obserr.CategoryPlan, "argument count does not match declaration")
	}
	newText := joinReordered(args, perm, ",")
	if _, err := recordChecksum(deps.FS, plan, ref.Path); err != nil {
		return err
	}
	plan.AddTextEdit(types.TextEdit{
		Path:    ref.Path,
		Range:   offsetsToRange(source, open+1, close),
		NewText: newText,
	})
	return nil
}
