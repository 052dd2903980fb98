package planner

import (
	"context"
	"fmt"
	"strings"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

// ExtractKind names what PlanExtract pulls out of a selection (spec.md §4.4.2).
type ExtractKind string

const (
	ExtractFunction ExtractKind = "function"
	ExtractVariable ExtractKind = "variable"
	ExtractConstant ExtractKind = "constant"
	ExtractModule   ExtractKind = "module"
)

// ExtractRequest is the input to PlanExtract.
type ExtractRequest struct {
	Kind            ExtractKind
	File            string
	Range           types.Range
	Name            string
	Visibility      string // e.g. "public"/"private"; plugin-interpreted
	DestinationPath string // ExtractModule only
}

// PlanExtract implements spec.md §4.4.2. Free-variable/output analysis is
// a line-oriented heuristic rather than a real data-flow pass (no plugin
// in this pack exposes one) — every plan from this function carries a
// warning saying so, per spec.md §4.4.2 "free-variable analysis is
// inexact for the current plugin ⇒ warning".
func PlanExtract(ctx context.Context, deps Deps, req ExtractRequest) (*types.EditPlan, error) {
	plan := newPlan(types.PlanExtract)
	source, err := recordChecksum(deps.FS, plan, req.File)
	if err != nil {
		return nil, err
	}
	if !rangeWithinFile(source, req.Range) {
		return nil, obserr.New(obserr.CategoryInvalidTarget, "selection range is out of bounds in "+req.File)
	}
	selected := sliceRange(source, req.Range)
	if strings.TrimSpace(selected) == "" {
		return nil, obserr.New(obserr.CategoryInvalidTarget, "empty selection in "+req.File)
	}

	plugin := deps.Registry.ForPath(req.File)
	freeVars := freeVariables(source, req.Range, selected)
	plan.AddWarning("free-variable analysis is heuristic (token-scan, not full data-flow); verify parameters for " + req.Name)

	switch req.Kind {
	case ExtractFunction:
		return planExtractFunction(deps, plan, req, source, selected, freeVars, plugin)
	case ExtractVariable, ExtractConstant:
		return planExtractValue(deps, plan, req, source, selected, plugin)
	case ExtractModule:
		return planExtractModule(deps, plan, req, source, selected, plugin)
	default:
		return nil, obserr.New(obserr.CategoryInvalidRequest, "extract: unknown kind "+string(req.Kind))
	}
}

func rangeWithinFile(source string, r types.Range) bool {
	end := endOfFile(source)
	return !r.Start.Less(types.Position{}) && !end.Less(r.End) && !r.End.Less(r.Start)
}

// freeVariables returns, in first-use order, identifiers referenced inside
// selected that are not themselves declared inside the selection — an
// approximation of spec.md §4.4.2's "identifiers whose declarations lie
// outside the range but whose uses lie inside".
func freeVariables(source string, r types.Range, selected string) []string {
	declaredInside := map[string]bool{}
	for _, decl := range declLikeIdents(selected) {
		declaredInside[decl] = true
	}
	seen := map[string]bool{}
	var out []string
	for _, m := range identRe.FindAllString(selected, -1) {
		if isKeyword(m) || declaredInside[m] || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// declLikeIdents finds identifiers immediately following a declaration
// keyword within text — a crude "this name is bound inside the
// selection" signal good enough to exclude obvious locals from the
// free-variable set.
func declLikeIdents(text string) []string {
	var out []string
	keywords := []string{"var", "let", "const", "func", "def", "fn", "for"}
	lines := strings.Split(text, "\n")
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		for _, kw := range keywords {
			if strings.HasPrefix(trimmed, kw+" ") {
				rest := strings.TrimSpace(strings.TrimPrefix(trimmed, kw+" "))
				if m := identRe.FindString(rest); m != "" {
					out = append(out, m)
				}
			}
		}
	}
	return out
}

func isKeyword(s string) bool {
	switch s {
	case "if", "else", "for", "while", "return", "func", "def", "fn", "var", "let", "const",
		"true", "false", "nil", "null", "None", "True", "False", "break", "continue", "switch",
		"case", "default", "struct", "type", "interface", "class", "import", "package", "use", "pub":
		return true
	}
	return false
}

func planExtractFunction(deps Deps, plan *types.EditPlan, req ExtractRequest, source, selected string, freeVars []string, plugin plugins.Plugin) (*types.EditPlan, error) {
	sig := functionTemplate(plugin.Metadata().LanguageName, req.Name, freeVars, req.Visibility)
	insertAt := endOfFile(source)
	decl := "\n" + sig.declPrefix + selected + sig.declSuffix + "\n"
	plan.AddTextEdit(types.TextEdit{Path: req.File, Range: types.Range{Start: insertAt, End: insertAt}, NewText: decl})

	call := req.Name + "(" + strings.Join(freeVars, ", ") + ")"
	plan.AddTextEdit(types.TextEdit{Path: req.File, Range: req.Range, NewText: call})

	return finish(plan, plugin.Metadata().LanguageName), nil
}

type funcTemplate struct {
	declPrefix string
	declSuffix string
}

// functionTemplate renders a minimal function declaration shell in the
// target language's surface syntax. It is intentionally simple — a
// splice-in, not a print of a real AST — matching spec.md §1's "edits are
// textual splices, not AST-print round-trips".
func functionTemplate(lang, name string, params []string, visibility string) funcTemplate {
	switch lang {
	case "python":
		return funcTemplate{declPrefix: fmt.Sprintf("def %s(%s):\n", name, strings.Join(params, ", ")), declSuffix: ""}
	case "rust":
		vis := ""
		if visibility == "public" {
			vis = "pub "
		}
		return funcTemplate{declPrefix: fmt.Sprintf("%sfn %s(%s) {\n", vis, name, strings.Join(params, ": _, ")), declSuffix: "\n}"}
	case "javascript", "typescript":
		return funcTemplate{declPrefix: fmt.Sprintf("function %s(%s) {\n", name, strings.Join(params, ", ")), declSuffix: "\n}"}
	default: // go and fallback
		fname := name
		if visibility == "public" && fname != "" {
			fname = strings.ToUpper(fname[:1]) + fname[1:]
		}
		return funcTemplate{declPrefix: fmt.Sprintf("func %s(%s) {\n", fname, strings.Join(params, ", ")), declSuffix: "\n}"}
	}
}

func planExtractValue(deps Deps, plan *types.EditPlan, req ExtractRequest, source, selected string, plugin plugins.Plugin) (*types.EditPlan, error) {
	lineStart := types.Position{Line: req.Range.Start.Line, Character: 0}
	keyword := "var"
	if req.Kind == ExtractConstant {
		keyword = "const"
	}
	var decl string
	switch plugin.Metadata().LanguageName {
	case "python":
		decl = fmt.Sprintf("%s = %s\n", req.Name, strings.TrimSpace(selected))
	case "rust":
		kw := "let"
		if req.Kind == ExtractConstant {
			kw = "const"
		}
		decl = fmt.Sprintf("%s %s = %s;\n", kw, req.Name, strings.TrimSpace(selected))
	case "javascript", "typescript":
		kw := "const"
		if req.Kind == ExtractVariable {
			kw = "let"
		}
		decl = fmt.Sprintf("%s %s = %s;\n", kw, req.Name, strings.TrimSpace(selected))
	default:
		decl = fmt.Sprintf("%s %s = %s\n", keyword, req.Name, strings.TrimSpace(selected))
	}
	plan.AddTextEdit(types.TextEdit{Path: req.File, Range: types.Range{Start: lineStart, End: lineStart}, NewText: decl})
	plan.AddTextEdit(types.TextEdit{Path: req.File, Range: req.Range, NewText: req.Name})
	return finish(plan, plugin.Metadata().LanguageName), nil
}

func planExtractModule(deps Deps, plan *types.EditPlan, req ExtractRequest, source, selected string, plugin plugins.Plugin) (*types.EditPlan, error) {
	if req.DestinationPath == "" {
		return nil, obserr.New(obserr.CategoryInvalidRequest, "extract module: destinationPath is required")
	}
	if deps.FS.Exists(req.DestinationPath) {
		return nil, obserr.New(obserr.CategoryConflict, "destination already exists: "+req.DestinationPath)
	}
	plan.SetChecksum(req.DestinationPath, "absent")
	plan.AddFileOp(types.NewCreate(req.DestinationPath, strings.TrimSpace(selected)+"\n"))
	plan.AddTextEdit(types.TextEdit{Path: req.File, Range: req.Range, NewText: ""})

	newModule := moduleNameFor(plugin, req.DestinationPath)
	if mutator, ok := plugin.(plugins.ImportMutator); ok {
		edits, err := mutator.AddImport(source, newModule)
		if err == nil {
			for _, e := range edits {
				e.Path = req.File
				plan.AddTextEdit(e)
			}
		}
	} else {
		plan.AddWarning("no import-mutation support for " + req.File + "; add the import for " + newModule + " manually")
	}

	return finish(plan, plugin.Metadata().LanguageName), nil
}
