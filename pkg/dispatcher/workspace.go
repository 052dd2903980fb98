package dispatcher

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

// callWorkspaceTool implements the action-discriminated `workspace` tool
// of spec.md §6.1: create_package, extract_dependencies, find_replace,
// update_members, verify_project. Grounded on
// pkg/workspace/workspace_analyzer.go (verify_project) and the
// consolidation planner's manifest-mutation pattern (the other four
// actions reuse plugins.WorkspaceManager the same way).
func (d *Dispatcher) callWorkspaceTool(ctx context.Context, args map[string]any) (*Response, error) {
	action, err := argString(args, "action", true)
	if err != nil {
		return nil, err
	}
	dryRun, derr := resolveDryRun(args)
	if derr != nil {
		return nil, derr
	}
	validationCmd, verr := argStringSlice(args, "validationCommand", false)
	if verr != nil {
		return nil, verr
	}
	opts := Options{DryRun: dryRun, ValidationCommand: validationCmd}

	switch action {
	case "create_package":
		return d.workspaceCreatePackage(ctx, args, opts)
	case "extract_dependencies":
		return d.workspaceExtractDependencies(ctx, args, opts)
	case "find_replace":
		return d.workspaceFindReplace(ctx, args, opts)
	case "update_members":
		return d.workspaceUpdateMembers(ctx, args, opts)
	case "verify_project":
		return d.workspaceVerifyProject(ctx, args)
	default:
		return nil, invalidRequest("workspace: unknown action %q", action)
	}
}

func newWorkspacePlan() *types.EditPlan {
	return types.NewEditPlan(types.PlanWorkspace, uuid.NewString())
}

func (d *Dispatcher) readChecked(plan *types.EditPlan, path string) (string, *RPCError) {
	if !d.Deps.FS.Exists(path) {
		return "", invalidRequest("manifest %q does not exist", path)
	}
	content, err := d.Deps.FS.ReadFile(path)
	if err != nil {
		return "", invalidRequest("reading %q: %v", path, err)
	}
	plan.SetChecksum(path, checksum.OfString(content))
	return content, nil
}

// workspaceManagerFor returns the WorkspaceManager capable of IsManifest
// for manifestPath, or a PluginUnsupported-tagged error.
func (d *Dispatcher) workspaceManagerFor(manifestPath string) (plugins.WorkspaceManager, *RPCError) {
	for _, wm := range d.Deps.Registry.WorkspaceManagers() {
		if wm.IsManifest(manifestPath) {
			return wm, nil
		}
	}
	return nil, &RPCError{
		Code:    obserr.RPCServerError,
		Message: "no registered plugin recognizes " + manifestPath + " as a workspace manifest",
		Data:    map[string]any{"category": string(obserr.CategoryPlugin)},
	}
}

// workspaceUpdateMembers adds or removes `member` from the `manifest`
// manifest's workspace member list.
func (d *Dispatcher) workspaceUpdateMembers(ctx context.Context, args map[string]any, opts Options) (*Response, error) {
	manifestPath, rerr := argString(args, "manifest", true)
	if rerr != nil {
		return nil, rerr
	}
	member, rerr := argString(args, "member", true)
	if rerr != nil {
		return nil, rerr
	}
	addOrRemove, rerr := argString(args, "memberAction", true)
	if rerr != nil {
		return nil, rerr
	}

	wm, werr := d.workspaceManagerFor(manifestPath)
	if werr != nil {
		return nil, werr
	}
	plan := newWorkspacePlan()
	source, rerr := d.readChecked(plan, manifestPath)
	if rerr != nil {
		return nil, rerr
	}

	var updated string
	var err error
	switch addOrRemove {
	case "add":
		updated, err = wm.AddMember(source, member)
	case "remove":
		updated, err = wm.RemoveMember(source, member)
	default:
		return nil, invalidRequest("memberAction must be \"add\" or \"remove\", got %q", addOrRemove)
	}
	if err != nil {
		return nil, translate(obserr.Wrap(obserr.CategoryPlugin, "updating workspace members", err))
	}
	plan.AddTextEdit(fullFileReplacement(manifestPath, source, updated))
	return d.finalizeAndRespond(ctx, plan, opts)
}

// workspaceCreatePackage creates a new source file at `path` with the
// given `contents` and, when `manifest` is set, registers it as a member
// of that workspace manifest in the same plan.
func (d *Dispatcher) workspaceCreatePackage(ctx context.Context, args map[string]any, opts Options) (*Response, error) {
	path, rerr := argString(args, "path", true)
	if rerr != nil {
		return nil, rerr
	}
	contents, rerr := argString(args, "contents", false)
	if rerr != nil {
		return nil, rerr
	}
	if d.Deps.FS.Exists(path) {
		return nil, &RPCError{
			Code:    obserr.RPCServerError,
			Message: path + " already exists",
			Data:    map[string]any{"category": string(obserr.CategoryConflict)},
		}
	}
	plan := newWorkspacePlan()
	plan.SetChecksum(path, checksum.AbsentHash)
	plan.AddFileOp(types.NewCreate(path, contents))

	manifestPath, rerr := argString(args, "manifest", false)
	if rerr != nil {
		return nil, rerr
	}
	member, rerr := argString(args, "member", false)
	if rerr != nil {
		return nil, rerr
	}
	if manifestPath != "" && member != "" {
		wm, werr := d.workspaceManagerFor(manifestPath)
		if werr != nil {
			return nil, werr
		}
		source, rerr := d.readChecked(plan, manifestPath)
		if rerr != nil {
			return nil, rerr
		}
		updated, err := wm.AddMember(source, member)
		if err != nil {
			return nil, translate(obserr.Wrap(obserr.CategoryPlugin, "registering new package as a workspace member", err))
		}
		plan.AddTextEdit(fullFileReplacement(manifestPath, source, updated))
	}
	return d.finalizeAndRespond(ctx, plan, opts)
}

// workspaceExtractDependencies merges `source` manifest's whole
// dependency section into `destination` manifest's, via the same
// MergeDependencies capability the consolidation special case uses. This
// is a whole-manifest merge, not a per-dependency-name extraction — no
// WorkspaceManager method in this pack's plugin contract exposes
// per-dependency removal, so a warning documents the imprecision rather
// than silently only moving part of what was asked for.
func (d *Dispatcher) workspaceExtractDependencies(ctx context.Context, args map[string]any, opts Options) (*Response, error) {
	srcPath, rerr := argString(args, "source", true)
	if rerr != nil {
		return nil, rerr
	}
	dstPath, rerr := argString(args, "destination", true)
	if rerr != nil {
		return nil, rerr
	}
	wm, werr := d.workspaceManagerFor(dstPath)
	if werr != nil {
		return nil, werr
	}
	plan := newWorkspacePlan()
	srcSource, rerr := d.readChecked(plan, srcPath)
	if rerr != nil {
		return nil, rerr
	}
	dstSource, rerr := d.readChecked(plan, dstPath)
	if rerr != nil {
		return nil, rerr
	}
	merged, conflicts, err := wm.MergeDependencies(dstSource, srcSource)
	if err != nil {
		return nil, translate(obserr.Wrap(obserr.CategoryPlugin, "merging dependencies", err))
	}
	plan.AddTextEdit(fullFileReplacement(dstPath, dstSource, merged))
	plan.AddWarning("extract_dependencies moves the full dependency section of " + srcPath +
		"; per-dependency selection is not available for this plugin")
	for _, c := range conflicts {
		plan.AddWarning("dependency " + c + " already present in " + dstPath + "; kept destination's version")
	}
	return d.finalizeAndRespond(ctx, plan, opts)
}

// workspaceFindReplace performs a literal, non-symbol-aware substring
// sweep over every file Scope exposes (spec.md §3 scope-expansion table),
// replacing `find` with `replace`. Unlike the rename planner's
// identifier-boundary search, this has no notion of import/string/comment
// categories — every match is rewritten regardless of its syntactic
// position — so a warning documents that imprecision on every plan this
// action produces.
func (d *Dispatcher) workspaceFindReplace(ctx context.Context, args map[string]any, opts Options) (*Response, error) {
	find, rerr := argString(args, "find", true)
	if rerr != nil {
		return nil, rerr
	}
	replace, rerr := argString(args, "replace", true)
	if rerr != nil {
		return nil, rerr
	}
	if find == "" {
		return nil, invalidRequest("find_replace: %q must be non-empty", "find")
	}
	files, err := d.Deps.Scope.Files()
	if err != nil {
		return nil, translate(obserr.Wrap(obserr.CategoryInternal, "listing scope files", err))
	}
	plan := newWorkspacePlan()
	for _, path := range files {
		if !d.Deps.FS.Exists(path) {
			continue
		}
		content, rerr := d.Deps.FS.ReadFile(path)
		if rerr != nil {
			return nil, translate(obserr.Wrap(obserr.CategoryInternal, "reading "+path, rerr))
		}
		if !strings.Contains(content, find) {
			continue
		}
		plan.SetChecksum(path, checksum.OfString(content))
		plan.AddTextEdit(fullFileReplacement(path, content, strings.ReplaceAll(content, find, replace)))
	}
	plan.AddWarning("find_replace is a literal substring sweep; it does not distinguish imports, strings, or comments")
	return d.finalizeAndRespond(ctx, plan, opts)
}

// workspaceVerifyProject runs the validation command in isolation, with
// no plan involved (SPEC_FULL.md §4 "workspace verify_project action").
func (d *Dispatcher) workspaceVerifyProject(ctx context.Context, args map[string]any) (*Response, error) {
	cmd, rerr := argStringSlice(args, "validationCommand", true)
	if rerr != nil {
		return nil, rerr
	}
	vr := d.Engine.Validate(ctx, cmd, 0)
	return &Response{Execution: &types.ExecutionResult{
		Success:    vr.ExitCode == 0 && !vr.TimedOut,
		Validation: &vr,
	}}, nil
}

// fullFileReplacement builds a single TextEdit that replaces a file's
// entire contents with updated, spanning [0,0) through the file's last
// position.
func fullFileReplacement(path, original, updated string) types.TextEdit {
	lines := strings.Split(original, "\n")
	lastLine := len(lines) - 1
	return types.TextEdit{
		Path: path,
		Range: types.Range{
			Start: types.Position{Line: 0, Character: 0},
			End:   types.Position{Line: lastLine, Character: len(lines[lastLine])},
		},
		NewText: updated,
	}
}
