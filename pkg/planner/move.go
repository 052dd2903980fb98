package planner

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

// MoveRequest is the input to PlanMove (spec.md §4.4.4): a generalization
// of file/directory rename where the destination is a directory, or a
// symbol relocation across files.
type MoveRequest struct {
	Target         Target
	DestinationDir string // File/Directory targets: new parent directory
	Destination    string // Symbol targets: destination file path
	Scope          types.Scope
}

// PlanMove dispatches by target kind. File and Directory moves reuse the
// rename planner's machinery (same import-rewrite mechanics; only the
// resulting path differs), then retag the plan's Kind to Move. Symbol
// moves have their own strategy: lift a declaration out of its source
// file into a destination file, updating importers.
func PlanMove(ctx context.Context, deps Deps, req MoveRequest) (*types.EditPlan, error) {
	if req.Scope.Kind == "" {
		req.Scope = types.DefaultScope()
	}
	switch req.Target.Kind {
	case TargetFile:
		newPath := filepath.ToSlash(filepath.Join(req.DestinationDir, filepath.Base(req.Target.Path)))
		plan, err := planRenameFile(ctx, deps, RenameRequest{Target: req.Target, NewName: newPath, Scope: req.Scope})
		if err != nil {
			return nil, err
		}
		plan.Kind = types.PlanMove
		return plan, nil
	case TargetDirectory:
		oldDir := strings.TrimSuffix(req.Target.Path, "/")
		newDir := filepath.ToSlash(filepath.Join(req.DestinationDir, filepath.Base(oldDir)))
		plan, err := planRenameDirectory(ctx, deps, RenameRequest{Target: req.Target, NewName: newDir, Scope: req.Scope})
		if err != nil {
			return nil, err
		}
		plan.Kind = types.PlanMove
		return plan, nil
	case TargetSymbol:
		return planMoveSymbol(ctx, deps, req)
	default:
		return nil, obserr.New(obserr.CategoryInvalidRequest, "move: unknown target kind "+string(req.Target.Kind))
	}
}

// planMoveSymbol implements spec.md §4.4.4's symbol-move case: removes the
// declaration from the source file, inserts it at the destination, and
// updates importers. Free-variable analysis for "imports the moved symbol
// itself needs from the source file" mirrors the extract planner's; any
// import the destination file is missing after the move is recorded as a
// warning rather than guessed at, since only the golang plugin's
// AddImport is reliably source-accurate across this pack.
func planMoveSymbol(ctx context.Context, deps Deps, req MoveRequest) (*types.EditPlan, error) {
	plan := newPlan(types.PlanMove)
	srcPath := req.Target.Path
	srcSource, err := recordChecksum(deps.FS, plan, srcPath)
	if err != nil {
		return nil, err
	}
	plugin := deps.Registry.ForPath(srcPath)
	parsed, _ := plugin.Parse(srcSource)
	var symbol *types.Symbol
	for i := range parsed.Symbols {
		if rangeContains(parsed.Symbols[i].NameRange, req.Target.Position) || rangeContains(parsed.Symbols[i].Range, req.Target.Position) {
			symbol = &parsed.Symbols[i]
			break
		}
	}
	if symbol == nil {
		return nil, obserr.New(obserr.CategoryInvalidTarget, "position does not name a declaration in "+srcPath)
	}

	declText := sliceRange(srcSource, symbol.Range)
	plan.AddTextEdit(types.TextEdit{Path: srcPath, Range: lineSpanRange(symbol.Range), NewText: ""})

	destExists := deps.FS.Exists(req.Destination)
	var destSource string
	if destExists {
		destSource, err = recordChecksum(deps.FS, plan, req.Destination)
		if err != nil {
			return nil, err
		}
		insertPos := endOfFile(destSource)
		plan.AddTextEdit(types.TextEdit{
			Path:    req.Destination,
			Range:   types.Range{Start: insertPos, End: insertPos},
			NewText: "\n" + declText + "\n",
		})
	} else {
		plan.SetChecksum(req.Destination, "absent")
		plan.AddFileOp(types.NewCreate(req.Destination, declText+"\n"))
	}

	oldModule := moduleNameFor(plugin, srcPath)
	newModule := moduleNameFor(plugin, req.Destination)
	if err := rewriteConsumers(deps, plan, req.Scope, oldModule, newModule, plugin, srcPath); err != nil {
		return nil, err
	}

	destPlugin := deps.Registry.ForPath(req.Destination)
	if mutator, ok := destPlugin.(plugins.ImportMutator); ok && destExists {
		for _, imp := range parsed.Imports {
			if !rangeContains(symbol.Range, imp.Range.Start) {
				continue
			}
			edits, err := mutator.AddImport(destSource, imp.Module)
			if err == nil {
				for _, e := range edits {
					e.Path = req.Destination
					plan.AddTextEdit(e)
				}
			}
		}
	}
	plan.AddWarning("verify the destination file has every import the moved declaration needs from its source file")

	return finish(plan, plugin.Metadata().LanguageName), nil
}

func sliceRange(source string, r types.Range) string {
	start := posToOffset(source, r.Start)
	end := posToOffset(source, r.End)
	if start < 0 || end > len(source) || start > end {
		return ""
	}
	return source[start:end]
}

func posToOffset(source string, pos types.Position) int {
	line, col := 0, 0
	for i := 0; i < len(source); i++ {
		if line == pos.Line && col == pos.Character {
			return i
		}
		if source[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	if line == pos.Line && col == pos.Character {
		return len(source)
	}
	return len(source)
}

// lineSpanRange widens r to cover its full source lines plus trailing
// newline, so removing a declaration doesn't leave a blank line behind.
func lineSpanRange(r types.Range) types.Range {
	return types.Range{
		Start: types.Position{Line: r.Start.Line, Character: 0},
		End:   types.Position{Line: r.End.Line + 1, Character: 0},
	}
}
