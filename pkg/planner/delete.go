package planner

import (
	"context"
	"strings"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

// DeleteRequest is the input to PlanDelete (spec.md §4.4.5, alias "prune").
type DeleteRequest struct {
	Target Target
	Scope  types.Scope
	// Force, when true, downgrades "symbol still referenced" from a hard
	// error to a plan warning (spec.md §4.4.5 "force: true suppresses all
	// such warnings-as-errors").
	Force bool
}

// PlanDelete dispatches by target kind.
func PlanDelete(ctx context.Context, deps Deps, req DeleteRequest) (*types.EditPlan, error) {
	if req.Scope.Kind == "" {
		req.Scope = types.DefaultScope()
	}
	switch req.Target.Kind {
	case TargetFile:
		return planDeletePath(ctx, deps, req, req.Target.Path, false)
	case TargetDirectory:
		return planDeletePath(ctx, deps, req, req.Target.Path, true)
	case TargetSymbol:
		return planDeleteSymbol(ctx, deps, req)
	default:
		return nil, obserr.New(obserr.CategoryInvalidRequest, "delete: unknown target kind "+string(req.Target.Kind))
	}
}

// planDeletePath implements the file/directory half of spec.md §4.4.5:
// emit Delete ops, then, per Scope, remove imports of the deleted module
// in any file that still imports it.
func planDeletePath(ctx context.Context, deps Deps, req DeleteRequest, path string, isDir bool) (*types.EditPlan, error) {
	plan := newPlan(types.PlanDelete)

	var toDelete []string
	if isDir {
		files, err := deps.Scope.Files()
		if err != nil {
			return nil, obserr.Wrap(obserr.CategoryInternal, "enumerate workspace files", err)
		}
		dir := strings.TrimSuffix(path, "/")
		for _, f := range files {
			if dirPrefix(f, dir) {
				toDelete = append(toDelete, f)
			}
		}
		if len(toDelete) == 0 {
			return nil, obserr.New(obserr.CategoryInvalidTarget, "directory has no files in scope: "+path)
		}
	} else {
		if !deps.FS.Exists(path) {
			return nil, obserr.New(obserr.CategoryInvalidTarget, "file does not exist: "+path)
		}
		toDelete = []string{path}
	}

	var languageHint string
	for _, p := range toDelete {
		if _, err := recordChecksum(deps.FS, plan, p); err != nil {
			return nil, err
		}
		plugin := deps.Registry.ForPath(p)
		languageHint = plugin.Metadata().LanguageName
		module := moduleNameFor(plugin, p)

		if _, ok := anyMutator(deps, p); !ok {
			continue
		}
		files, err := deps.Scope.Files()
		if err != nil {
			return nil, obserr.Wrap(obserr.CategoryInternal, "enumerate workspace files", err)
		}
		for _, candidate := range files {
			if candidate == p || !deps.Scope.Reaches(req.Scope, candidate, types.CategoryCodeImport) {
				continue
			}
			candPlugin := deps.Registry.ForPath(candidate)
			candMutator, ok := candPlugin.(plugins.ImportMutator)
			if !ok {
				continue
			}
			candSource, err := deps.FS.ReadFile(candidate)
			if err != nil {
				continue
			}
			if importer, ok := candPlugin.(plugins.ImportParser); ok && !importer.ContainsImport(candSource, module) {
				continue
			}
			edits, err := candMutator.RemoveImport(candSource, module)
			if err != nil || len(edits) == 0 {
				continue
			}
			if _, err := recordChecksum(deps.FS, plan, candidate); err != nil {
				return nil, err
			}
			for _, e := range edits {
				e.Path = candidate
				plan.AddTextEdit(e)
			}
		}
	}

	for _, p := range toDelete {
		plan.AddFileOp(types.NewDelete(p))
	}
	return finish(plan, languageHint), nil
}

// anyMutator reports whether path's plugin implements ImportMutator, used
// only to skip the consumer-scan loop cheaply when it can't.
func anyMutator(deps Deps, path string) (plugins.ImportMutator, bool) {
	plugin := deps.Registry.ForPath(path)
	m, ok := plugin.(plugins.ImportMutator)
	return m, ok
}

// planDeleteSymbol implements spec.md §4.4.5's symbol-deletion half: LSP
// references pinpoint remaining call sites, which are never rewritten —
// only reported. force:false turns any remaining reference into a hard
// error; force:true downgrades every one to a plan warning.
func planDeleteSymbol(ctx context.Context, deps Deps, req DeleteRequest) (*types.EditPlan, error) {
	plan := newPlan(types.PlanDelete)
	path := req.Target.Path
	source, err := recordChecksum(deps.FS, plan, path)
	if err != nil {
		return nil, err
	}
	plugin := deps.Registry.ForPath(path)
	parsed, _ := plugin.Parse(source)
	var symbol *types.Symbol
	for i := range parsed.Symbols {
		if rangeContains(parsed.Symbols[i].NameRange, req.Target.Position) || rangeContains(parsed.Symbols[i].Range, req.Target.Position) {
			symbol = &parsed.Symbols[i]
			break
		}
	}
	if symbol == nil {
		return nil, obserr.New(obserr.CategoryInvalidTarget, "position does not name a declaration in "+path)
	}

	var refs []types.Location
	if deps.LSP != nil {
		refs, err = deps.LSP.References(ctx, path, symbol.NameRange.Start, false)
		if err != nil {
			plan.AddWarning("language server unavailable for reference check (" + err.Error() + "); deletion proceeds without confirming call sites")
		}
	} else {
		plan.AddWarning(lowPrecisionWarning)
	}

	for _, ref := range refs {
		if ref.Path == path && ref.Range.Overlaps(symbol.Range) {
			continue // the declaration itself
		}
		msg := "remaining reference to " + symbol.Name + " at " + ref.Path + ":" + ref.Range.Start.String()
		if !req.Force {
			return nil, obserr.New(obserr.CategoryConflict, msg+"; pass force:true to delete anyway").
				WithContext("planner", "delete_symbol", ref.Path)
		}
		plan.AddWarning(msg)
	}

	plan.AddTextEdit(types.TextEdit{Path: path, Range: lineSpanRange(symbol.Range), NewText: ""})
	return finish(plan, plugin.Metadata().LanguageName), nil
}
