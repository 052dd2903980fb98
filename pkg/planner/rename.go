package planner

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

// RenameRequest is the input to PlanRename (spec.md §4.4.1).
type RenameRequest struct {
	Target      Target
	NewName     string // new symbol name, or new path for File/Directory targets
	Scope       types.Scope
	Consolidate bool
}

// PlanRename dispatches to the symbol/file/directory rename strategy named
// by req.Target.Kind, and additionally detects the consolidation special
// case for directory renames (spec.md §4.4.1 "Consolidation").
func PlanRename(ctx context.Context, deps Deps, req RenameRequest) (*types.EditPlan, error) {
	if req.Scope.Kind == "" {
		req.Scope = types.DefaultScope()
	}
	switch req.Target.Kind {
	case TargetSymbol:
		return planRenameSymbol(ctx, deps, req)
	case TargetFile:
		return planRenameFile(ctx, deps, req)
	case TargetDirectory:
		return planRenameDirectory(ctx, deps, req)
	default:
		return nil, obserr.New(obserr.CategoryInvalidRequest, "rename: unknown target kind "+string(req.Target.Kind))
	}
}

// planRenameSymbol implements spec.md §4.4.1 "Symbol rename": LSP first,
// plugin/regex fallback second.
func planRenameSymbol(ctx context.Context, deps Deps, req RenameRequest) (*types.EditPlan, error) {
	plan := newPlan(types.PlanRename)
	path := req.Target.Path
	source, err := recordChecksum(deps.FS, plan, path)
	if err != nil {
		return nil, err
	}

	if deps.LSP != nil {
		if _, err := deps.LSP.PrepareRename(ctx, path, req.Target.Position); err == nil {
			edit, err := deps.LSP.RenameEdits(ctx, path, req.Target.Position, req.NewName)
			if err == nil {
				for editPath, edits := range edit.Changes {
					if editPath != path {
						if _, err := recordChecksum(deps.FS, plan, editPath); err != nil {
							return nil, err
						}
					}
					for _, e := range edits {
						plan.AddTextEdit(e)
					}
				}
				return finish(plan, ""), nil
			}
			plan.AddWarning("language server rename_edits failed, falling back: " + err.Error())
		} else {
			plan.AddWarning("language server unavailable or declined rename (" + err.Error() + "), using plugin fallback")
		}
	} else {
		plan.AddWarning(lowPrecisionWarning)
	}

	// Plugin/regex fallback: find the symbol's declared name at Position,
	// then rewrite identifier-boundary occurrences in the defining file and
	// every consumer file found via ContainsImport.
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
		return nil, obserr.New(obserr.CategoryInvalidTarget, "position does not name a renameable symbol in "+path).
			WithContext("planner", "rename_symbol", path)
	}
	if parsed.Partial {
		plan.AddWarning("partial_parse: " + path)
	}

	for _, r := range findIdentifierOccurrences(source, symbol.Name) {
		plan.AddTextEdit(types.TextEdit{Path: path, Range: r, NewText: req.NewName})
	}

	module := moduleNameFor(plugin, path)
	if importer, ok := plugin.(plugins.ImportParser); ok {
		files, err := deps.Scope.Files()
		if err != nil {
			return nil, obserr.Wrap(obserr.CategoryInternal, "enumerate workspace files", err)
		}
		for _, candidate := range files {
			if candidate == path || !deps.Scope.Reaches(req.Scope, candidate, types.CategoryCodeImport) {
				continue
			}
			candSource, err := deps.FS.ReadFile(candidate)
			if err != nil {
				continue
			}
			if !importer.ContainsImport(candSource, module) {
				continue
			}
			for _, r := range findIdentifierOccurrences(candSource, symbol.Name) {
				if _, err := recordChecksum(deps.FS, plan, candidate); err != nil {
					return nil, err
				}
				plan.AddTextEdit(types.TextEdit{Path: candidate, Range: r, NewText: req.NewName})
			}
		}
	} else {
		plan.AddWarning("plugin for " + path + " has no import-parse capability; cross-file references were not searched")
	}

	return finish(plan, plugin.Metadata().LanguageName), nil
}

func rangeContains(r types.Range, p types.Position) bool {
	if r == (types.Range{}) {
		return false
	}
	return !p.Less(r.Start) && p.Less(r.End)
}

// planRenameFile implements spec.md §4.4.1 "File rename".
func planRenameFile(ctx context.Context, deps Deps, req RenameRequest) (*types.EditPlan, error) {
	plan := newPlan(types.PlanRename)
	oldPath, newPath := req.Target.Path, req.NewName

	if deps.FS.Exists(newPath) {
		return nil, obserr.New(obserr.CategoryConflict, "destination already exists: "+newPath).
			WithContext("planner", "rename_file", newPath)
	}
	if files, ferr := deps.Scope.Files(); ferr == nil {
		if other, collides := caseFoldCollision(files, newPath); collides {
			plan.AddWarning("destination " + newPath + " collides with " + other + " on case-insensitive filesystems")
		}
	}

	source, err := recordChecksum(deps.FS, plan, oldPath)
	if err != nil {
		return nil, err
	}
	plugin := deps.Registry.ForPath(oldPath)
	oldModule := moduleNameFor(plugin, oldPath)
	newModule := moduleNameFor(plugin, newPath)

	if mover, ok := plugin.(plugins.ImportRewriteForMove); ok {
		edits, err := mover.RewriteOwnImportsForMove(oldPath, source, oldPath, newPath)
		if err != nil {
			return nil, obserr.Wrap(obserr.CategoryInternal, "rewrite own imports for move", err)
		}
		for _, e := range edits {
			e.Path = oldPath
			plan.AddTextEdit(e)
		}
	} else if deps.Registry.IsFallback(plugin) {
		plan.AddWarning("no plugin support for " + oldPath + "; relative self-imports, if any, were not rewritten")
	}

	if err := rewriteConsumers(deps, plan, req.Scope, oldModule, newModule, plugin, ""); err != nil {
		return nil, err
	}

	plan.SetChecksum(newPath, checksum.AbsentHash)
	plan.AddFileOp(types.NewMove(oldPath, newPath))
	return finish(plan, plugin.Metadata().LanguageName), nil
}

// rewriteConsumers scans every workspace file reachable under scope for
// references to oldModule and rewrites them to newModule, via each
// candidate file's own plugin's ImportRewriteForRename (code) and, for
// non-code categories permitted by scope, a plain substring rewrite of the
// module-shaped string (markdown links, config string values). excludePath,
// when non-empty, is skipped (used by the directory-rename caller, which
// has already queued per-file rewrites for files inside the moved tree
// itself).
func rewriteConsumers(deps Deps, plan *types.EditPlan, s types.Scope, oldModule, newModule string, movedPlugin plugins.Plugin, excludePath string) error {
	files, err := deps.Scope.Files()
	if err != nil {
		return obserr.Wrap(obserr.CategoryInternal, "enumerate workspace files", err)
	}
	for _, candidate := range files {
		if candidate == excludePath {
			continue
		}
		candPlugin := deps.Registry.ForPath(candidate)
		category := types.CategoryCodeImport
		_, isManifest := candPlugin.(plugins.WorkspaceManager)
		if _, ok := candPlugin.(plugins.ImportRewriteForRename); !ok && !isManifest {
			category = types.CategoryMarkdownLink
		}
		if !deps.Scope.Reaches(s, candidate, category) {
			continue
		}
		candSource, err := deps.FS.ReadFile(candidate)
		if err != nil {
			continue
		}
		var edits []types.TextEdit
		if rewriter, ok := candPlugin.(plugins.ImportRewriteForRename); ok {
			importer, ok := candPlugin.(plugins.ImportParser)
			if ok && !importer.ContainsImport(candSource, oldModule) {
				continue
			}
			edits, err = rewriter.RewriteImportsForModuleRename(candidate, candSource, oldModule, newModule)
			if err != nil {
				return obserr.Wrap(obserr.CategoryInternal, "rewrite consumer imports in "+candidate, err)
			}
		} else if strings.Contains(candSource, oldModule) {
			// String-level link/path rewrite for docs and configs (spec.md
			// §4.4.1 "shared scanner that recognizes markdown links,
			// TOML/YAML/JSON string values, and workspace-member arrays").
			edits = stringLiteralRewrites(candSource, oldModule, newModule)
		}
		if len(edits) == 0 {
			continue
		}
		if _, err := recordChecksum(deps.FS, plan, candidate); err != nil {
			return err
		}
		for _, e := range edits {
			e.Path = candidate
			plan.AddTextEdit(e)
		}
	}
	return nil
}

// stringLiteralRewrites replaces every whole occurrence of oldModule in
// source with newModule, treating oldModule as an opaque string rather
// than parsing the surrounding format — sufficient for the markdown-link
// and simple config-value cases this path covers (a full TOML/YAML/JSON
// AST edit is handled instead by each format's WorkspaceManager plugin
// when one applies).
func stringLiteralRewrites(source, oldModule, newModule string) []types.TextEdit {
	var edits []types.TextEdit
	start := 0
	for {
		idx := strings.Index(source[start:], oldModule)
		if idx < 0 {
			break
		}
		absStart := start + idx
		absEnd := absStart + len(oldModule)
		edits = append(edits, types.TextEdit{
			Range:   offsetsToRange(source, absStart, absEnd),
			NewText: newModule,
		})
		start = absEnd
	}
	return edits
}

// planRenameDirectory implements spec.md §4.4.1 "Directory rename":
// batched per-file renames under the new prefix, plus a consolidation
// detour when the destination lies inside another workspace-managed
// package and req.Consolidate is set.
func planRenameDirectory(ctx context.Context, deps Deps, req RenameRequest) (*types.EditPlan, error) {
	oldDir, newDir := strings.TrimSuffix(req.Target.Path, "/"), strings.TrimSuffix(req.NewName, "/")

	if req.Consolidate {
		if plan, err, ok := tryConsolidation(ctx, deps, req.Scope, oldDir, newDir); ok {
			return plan, err
		}
	}

	plan := newPlan(types.PlanRename)
	files, err := deps.Scope.Files()
	if err != nil {
		return nil, obserr.Wrap(obserr.CategoryInternal, "enumerate workspace files", err)
	}
	if other, collides := caseFoldCollision(directoriesOf(files, oldDir), newDir); collides {
		plan.AddWarning("destination directory " + newDir + " collides with " + other + " on case-insensitive filesystems")
	}

	var languageHint string
	for _, f := range files {
		if !dirPrefix(f, oldDir) {
			continue
		}
		rel := strings.TrimPrefix(f, oldDir+"/")
		newPath := newDir + "/" + rel
		source, err := recordChecksum(deps.FS, plan, f)
		if err != nil {
			return nil, err
		}
		plugin := deps.Registry.ForPath(f)
		languageHint = plugin.Metadata().LanguageName
		oldModule, newModule := moduleNameFor(plugin, f), moduleNameFor(plugin, newPath)
		if mover, ok := plugin.(plugins.ImportRewriteForMove); ok {
			edits, err := mover.RewriteOwnImportsForMove(f, source, f, newPath)
			if err != nil {
				return nil, obserr.Wrap(obserr.CategoryInternal, "rewrite own imports for move", err)
			}
			for _, e := range edits {
				e.Path = f
				plan.AddTextEdit(e)
			}
		}
		if err := rewriteConsumers(deps, plan, req.Scope, oldModule, newModule, plugin, f); err != nil {
			return nil, err
		}
		plan.SetChecksum(newPath, checksum.AbsentHash)
		plan.AddFileOp(types.NewMove(f, newPath))
	}

	if len(plan.FileOps) == 0 {
		return nil, obserr.New(obserr.CategoryInvalidTarget, "directory has no files in scope: "+oldDir)
	}

	if err := renameWorkspaceMember(deps, plan, oldDir, newDir); err != nil {
		return nil, err
	}

	return finish(plan, languageHint), nil
}

// renameWorkspaceMember rewrites oldDir to newDir in any workspace
// manifest's member list that names it, once, using the owning plugin's
// WorkspaceManager trait (spec.md §8 "Rename a directory that is also a
// workspace member: the member list is updated exactly once").
func renameWorkspaceMember(deps Deps, plan *types.EditPlan, oldDir, newDir string) error {
	for _, wm := range deps.Registry.WorkspaceManagers() {
		files, err := deps.Scope.Files()
		if err != nil {
			return obserr.Wrap(obserr.CategoryInternal, "enumerate workspace files", err)
		}
		for _, f := range files {
			if !wm.IsManifest(filepath.Base(f)) || dirPrefix(f, oldDir) {
				continue
			}
			source, err := deps.FS.ReadFile(f)
			if err != nil {
				continue
			}
			manifest, err := wm.ParseManifest(f, source)
			if err != nil {
				continue
			}
			hasMember := false
			for _, m := range manifest.Members {
				if m == oldDir {
					hasMember = true
					break
				}
			}
			if !hasMember {
				continue
			}
			removed, err := wm.RemoveMember(source, oldDir)
			if err != nil {
				return obserr.Wrap(obserr.CategoryInternal, "remove workspace member", err)
			}
			newSource, err := wm.AddMember(removed, newDir)
			if err != nil {
				return obserr.Wrap(obserr.CategoryInternal, "add workspace member", err)
			}
			if _, err := recordChecksum(deps.FS, plan, f); err != nil {
				return err
			}
			plan.AddTextEdit(fullFileReplace(f, source, newSource))
		}
	}
	return nil
}

// fullFileReplace produces a single TextEdit that replaces all of before
// with after, used when a plugin round-trips a whole manifest file rather
// than returning a narrow edit.
func fullFileReplace(path, before, after string) types.TextEdit {
	return types.TextEdit{
		Path:    path,
		Range:   types.Range{Start: types.Position{}, End: endOfFile(before)},
		NewText: after,
	}
}

func endOfFile(content string) types.Position {
	line, col := 0, 0
	for i := 0; i < len(content); i++ {
		if content[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return types.Position{Line: line, Character: col}
}
