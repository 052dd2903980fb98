package planner

import (
	"context"
	"regexp"
	"strings"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/types"
)

// InlineRequest is the input to PlanInline (spec.md §4.4.3): symmetric to
// ExtractRequest. target.Position may name either the declaration or one
// of its references; PlanInline resolves to the declaration first either
// way.
type InlineRequest struct {
	File      string
	Position  types.Position
	InlineAll bool
}

// PlanInline implements spec.md §4.4.3. Declaration lookup is line-based,
// not AST-based, since no plugin in this pack exposes variable/constant
// bindings as a Symbol (only functions/types are) — inline needs exactly
// the kind of binding the pack's symbol extractors skip. It never blocks
// on a possibly-side-effecting right-hand side (a non-literal containing
// a call); it only attaches a warning, per the spec's explicitly
// conservative-but-non-blocking posture.
func PlanInline(ctx context.Context, deps Deps, req InlineRequest) (*types.EditPlan, error) {
	plan := newPlan(types.PlanInline)
	source, err := recordChecksum(deps.FS, plan, req.File)
	if err != nil {
		return nil, err
	}
	plugin := deps.Registry.ForPath(req.File)

	name, _, ok := identifierAt(source, req.Position)
	if !ok {
		return nil, obserr.New(obserr.CategoryInvalidTarget, "position does not name an identifier in "+req.File)
	}

	declLine, declLineNo, rhs, ok := findAssignment(source, name)
	if !ok {
		return nil, obserr.New(obserr.CategoryInvalidTarget, name+" has no simple assignment the inline planner can read")
	}
	declRange := lineSpanRange(types.Range{
		Start: types.Position{Line: declLineNo, Character: 0},
		End:   types.Position{Line: declLineNo, Character: len(declLine)},
	})
	if strings.Contains(rhs, "(") {
		plan.AddWarning(name + "'s right-hand side may have side effects (contains a call); inlining proceeds anyway")
	}

	var refs []types.Range
	if deps.LSP != nil {
		locs, err := deps.LSP.References(ctx, req.File, types.Position{Line: declLineNo, Character: 0}, false)
		if err == nil {
			for _, loc := range locs {
				if loc.Path == req.File {
					refs = append(refs, loc.Range)
				}
			}
		} else {
			plan.AddWarning(lowPrecisionWarning)
		}
	}
	if refs == nil {
		refs = findIdentifierOccurrences(source, name)
		plan.AddWarning(lowPrecisionWarning)
	}

	var external []types.Range
	for _, r := range refs {
		if r.Start.Line == declLineNo {
			continue
		}
		external = append(external, r)
	}
	if len(external) == 0 {
		return nil, obserr.New(obserr.CategoryInvalidTarget, "no references to "+name+" found to inline")
	}

	if !req.InlineAll {
		var target *types.Range
		for i := range external {
			if rangeContains(external[i], req.Position) {
				target = &external[i]
				break
			}
		}
		if target == nil {
			return nil, obserr.New(obserr.CategoryInvalidTarget, "position is not a reference to "+name)
		}
		plan.AddTextEdit(types.TextEdit{Path: req.File, Range: *target, NewText: rhs})
		if len(external) == 1 {
			plan.AddTextEdit(types.TextEdit{Path: req.File, Range: declRange, NewText: ""})
		}
		return finish(plan, plugin.Metadata().LanguageName), nil
	}

	for _, r := range external {
		plan.AddTextEdit(types.TextEdit{Path: req.File, Range: r, NewText: rhs})
	}
	plan.AddTextEdit(types.TextEdit{Path: req.File, Range: declRange, NewText: ""})
	return finish(plan, plugin.Metadata().LanguageName), nil
}

// identifierAt returns the identifier token containing pos, if any.
func identifierAt(source string, pos types.Position) (string, types.Range, bool) {
	offset := posToOffset(source, pos)
	for _, m := range identRe.FindAllStringIndex(source, -1) {
		if offset >= m[0] && offset <= m[1] {
			return source[m[0]:m[1]], offsetsToRange(source, m[0], m[1]), true
		}
	}
	return "", types.Range{}, false
}

// findAssignment locates the first source line that looks like a simple
// `name = value` (or `var/let/const name = value`, `name: Type = value`)
// binding of name, returning that line's text, its zero-based line number,
// and the trimmed right-hand side.
func findAssignment(source, name string) (line string, lineNo int, rhs string, ok bool) {
	declRe := regexp.MustCompile(`^\s*(?:var|let|const|pub\s+const)?\s*` + regexp.QuoteMeta(name) + `\s*(?::\s*[A-Za-z_][A-Za-z0-9_<>\[\]]*\s*)?=\s*(.+?);?\s*$`)
	for i, l := range strings.Split(source, "\n") {
		if m := declRe.FindStringSubmatch(l); m != nil {
			return l, i, strings.TrimSpace(m[1]), true
		}
	}
	return "", 0, "", false
}
