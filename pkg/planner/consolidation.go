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

// tryConsolidation implements spec.md §4.4.1 "Consolidation": a directory
// rename whose destination lies inside another package's source tree,
// where both the source and destination packages are owned by a
// workspace-manager plugin. It returns ok=false (and a nil plan/error) when
// the request does not actually qualify, so the caller falls through to an
// ordinary directory rename instead.
func tryConsolidation(ctx context.Context, deps Deps, s types.Scope, oldDir, newDir string) (*types.EditPlan, error, bool) {
	srcManifestPath, srcWM, ok := findOwningManifest(deps, oldDir)
	if !ok {
		return nil, nil, false
	}
	// newDir's destination package is the workspace-managed directory that
	// contains it but is not oldDir itself — e.g. newDir =
	// "crates/dst-crate/src/module" and the owning manifest is
	// "crates/dst-crate/Cargo.toml".
	dstDir, dstManifestPath, dstWM, ok := findOwningManifestForNewDir(deps, newDir, oldDir)
	if !ok {
		return nil, nil, false
	}

	plan := newPlan(types.PlanRename)

	srcManifestSource, err := recordChecksum(deps.FS, plan, srcManifestPath)
	if err != nil {
		return nil, err, true
	}
	dstManifestSource, err := recordChecksum(deps.FS, plan, dstManifestPath)
	if err != nil {
		return nil, err, true
	}

	srcManifest, err := srcWM.ParseManifest(srcManifestPath, srcManifestSource)
	if err != nil {
		return nil, obserr.Wrap(obserr.CategoryInternal, "parse source manifest", err), true
	}
	dstManifest, err := dstWM.ParseManifest(dstManifestPath, dstManifestSource)
	if err != nil {
		return nil, obserr.Wrap(obserr.CategoryInternal, "parse destination manifest", err), true
	}

	// 1. Merge source's dependencies into destination's manifest, keeping
	// destination's version on conflict (spec.md §4.4.1 consolidation
	// conflict policy).
	mergedDst, conflicts, err := dstWM.MergeDependencies(dstManifestSource, srcManifestSource)
	if err != nil {
		return nil, obserr.Wrap(obserr.CategoryInternal, "merge dependencies", err), true
	}
	for _, name := range conflicts {
		plan.AddWarning("dependency conflict for " + name + ": kept destination's version")
	}
	if mergedDst != dstManifestSource {
		plan.AddTextEdit(fullFileReplace(dstManifestPath, dstManifestSource, mergedDst))
	}

	// 2. Remove the source package from the workspace members list, if a
	// root workspace manifest separate from srcManifestPath names it.
	if err := removeWorkspaceMembership(deps, plan, oldDir, srcManifest.Name); err != nil {
		return nil, err, true
	}

	// 3. Rewrite every `use source_pkg::*` (or equivalent) across the
	// workspace to reference the destination package's new submodule path.
	// The manifest's package name is not necessarily the module path code
	// actually references it by (Cargo mandates hyphen-to-underscore
	// translation, e.g. crate "src-crate" is `use src_crate::...`), so both
	// names go through the owning plugin's PackageModuleNamer when it has
	// one, matching the identifiers RewriteImportsForModuleRename and
	// ContainsImport compare against in the parsed source.
	oldModule := srcManifest.Name
	if oldModule == "" {
		oldModule = filepath.Base(oldDir)
	}
	oldModule = packageModuleName(srcWM, oldModule)

	destPkgName := dstManifest.Name
	if destPkgName == "" {
		destPkgName = filepath.Base(dstDir)
	}
	destPkgName = packageModuleName(dstWM, destPkgName)

	newSubmodule := strings.TrimPrefix(newDir, dstDir+"/")
	newModule := destPkgName + "::" + strings.ReplaceAll(newSubmodule, "/", "::")

	files, err := deps.Scope.Files()
	if err != nil {
		return nil, obserr.Wrap(obserr.CategoryInternal, "enumerate workspace files", err), true
	}
	var languageHint string
	for _, f := range files {
		candPlugin := deps.Registry.ForPath(f)
		rewriter, ok := candPlugin.(plugins.ImportRewriteForRename)
		if !ok {
			continue
		}
		source, err := deps.FS.ReadFile(f)
		if err != nil {
			continue
		}
		if importer, ok := candPlugin.(plugins.ImportParser); ok && !importer.ContainsImport(source, oldModule) {
			continue
		}
		edits, err := rewriter.RewriteImportsForModuleRename(f, source, oldModule, newModule)
		if err != nil {
			return nil, obserr.Wrap(obserr.CategoryInternal, "rewrite imports for consolidation in "+f, err), true
		}
		if len(edits) == 0 {
			continue
		}
		if _, err := recordChecksum(deps.FS, plan, f); err != nil {
			return nil, err, true
		}
		for _, e := range edits {
			e.Path = f
			plan.AddTextEdit(e)
		}
		if dirPrefix(f, oldDir) {
			continue
		}
		languageHint = candPlugin.Metadata().LanguageName
	}

	// Move every file out of oldDir into its new location under newDir.
	for _, f := range files {
		if !dirPrefix(f, oldDir) {
			continue
		}
		rel := strings.TrimPrefix(f, oldDir+"/")
		dest := newDir + "/" + rel
		if _, err := recordChecksum(deps.FS, plan, f); err != nil {
			return nil, err, true
		}
		plan.SetChecksum(dest, checksum.AbsentHash)
		plan.AddFileOp(types.NewMove(f, dest))
	}

	// The planner deliberately does not edit the destination's library root
	// to declare the new submodule — spec.md §4.4.1's one concession to
	// avoiding fragile cross-module declarations — it emits a warning
	// instead.
	plan.AddWarning("consolidation complete; add the module declaration for " + newSubmodule + " to the destination package's library root manually")

	plan.Metadata.Extra = map[string]any{"isConsolidation": true}
	return finish(plan, languageHint), nil, true
}

// packageModuleName applies wm's PackageModuleNamer to name when wm
// implements it, and returns name unchanged otherwise — most
// WorkspaceManagers (Go modules, npm packages) reference a package by its
// manifest name verbatim.
func packageModuleName(wm plugins.WorkspaceManager, name string) string {
	if namer, ok := wm.(plugins.PackageModuleNamer); ok {
		return namer.PackageModuleName(name)
	}
	return name
}

// findOwningManifest returns the workspace-manager manifest that directly
// owns dir (i.e. dir/<manifestFilename> exists and parses), if any.
func findOwningManifest(deps Deps, dir string) (string, plugins.WorkspaceManager, bool) {
	for _, wm := range deps.Registry.WorkspaceManagers() {
		files, err := deps.Scope.Files()
		if err != nil {
			return "", nil, false
		}
		for _, f := range files {
			if filepath.Dir(f) != dir {
				continue
			}
			if wm.IsManifest(filepath.Base(f)) {
				return f, wm, true
			}
		}
	}
	return "", nil, false
}

// findOwningManifestForNewDir walks up from newDir looking for the
// nearest ancestor directory (other than oldDir) that owns a workspace
// manifest, returning that ancestor directory, its manifest path, and the
// owning plugin.
func findOwningManifestForNewDir(deps Deps, newDir, oldDir string) (string, string, plugins.WorkspaceManager, bool) {
	dir := newDir
	for dir != "." && dir != "/" && dir != "" {
		if dir != oldDir {
			if manifestPath, wm, ok := findOwningManifest(deps, dir); ok {
				return dir, manifestPath, wm, true
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", "", nil, false
}

// removeWorkspaceMembership removes memberName/oldDir from any manifest
// (other than oldDir's own) that lists it as a workspace member.
func removeWorkspaceMembership(deps Deps, plan *types.EditPlan, oldDir, memberName string) error {
	for _, wm := range deps.Registry.WorkspaceManagers() {
		files, err := deps.Scope.Files()
		if err != nil {
			return obserr.Wrap(obserr.CategoryInternal, "enumerate workspace files", err)
		}
		for _, f := range files {
			if !wm.IsManifest(filepath.Base(f)) || dirPrefix(f, oldDir) || filepath.Dir(f) == oldDir {
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
			found := false
			for _, m := range manifest.Members {
				if m == oldDir || m == memberName {
					found = true
					break
				}
			}
			if !found {
				continue
			}
			removed, err := wm.RemoveMember(source, oldDir)
			if err != nil {
				return obserr.Wrap(obserr.CategoryInternal, "remove workspace member", err)
			}
			if removed == source {
				removed, err = wm.RemoveMember(source, memberName)
				if err != nil {
					return obserr.Wrap(obserr.CategoryInternal, "remove workspace member", err)
				}
			}
			if removed == source {
				continue
			}
			if _, err := recordChecksum(deps.FS, plan, f); err != nil {
				return err
			}
			plan.AddTextEdit(fullFileReplace(f, source, removed))
		}
	}
	return nil
}
