package dispatcher

import (
	"context"

	"github.com/google/uuid"

	"github.com/forgeref/forgeref/pkg/planner"
	"github.com/forgeref/forgeref/pkg/types"
)

// callRefactorTool handles the seven `spec.md §4.4` plan kinds (rename,
// move, delete, extract, inline, reorder, transform), whether invoked
// directly by name or via `refactor{action: ...}`. `targets[]` expands a
// batch of single-target calls into one merged plan (spec.md §4.5):
// each target is planned independently and the resulting plans are
// concatenated, with a conflicting checksum for the same path across
// targets reported as an error rather than silently resolved.
func (d *Dispatcher) callRefactorTool(ctx context.Context, tool string, args map[string]any) (*Response, error) {
	dryRun, rerr := resolveDryRun(args)
	if rerr != nil {
		return nil, rerr
	}
	validationCmd, verr := argStringSlice(args, "validationCommand", false)
	if verr != nil {
		return nil, verr
	}
	opts := Options{DryRun: dryRun, ValidationCommand: validationCmd}

	targets, terr := argObjectSlice(args, "targets", false)
	if terr != nil {
		return nil, terr
	}
	if len(targets) == 0 {
		plan, err := d.planOne(ctx, tool, args)
		if err != nil {
			return nil, err
		}
		return d.finalizeAndRespond(ctx, plan, opts)
	}

	plans := make([]*types.EditPlan, 0, len(targets))
	for i, t := range targets {
		merged := mergeArgs(args, t)
		plan, err := d.planOne(ctx, tool, merged)
		if err != nil {
			return nil, invalidRequestFromBatch(i, err)
		}
		plans = append(plans, plan)
	}
	merged, conflicts, err := types.MergePlans(plans[0].Kind, uuid.NewString(), plans)
	if err != nil {
		return nil, &RPCError{
			Code:    -32000,
			Message: "batch targets produced conflicting checksums",
			Data:    map[string]any{"conflicts": conflicts},
		}
	}
	return d.finalizeAndRespond(ctx, merged, opts)
}

// invalidRequestFromBatch annotates a per-target planner failure with its
// index in the batch so a caller can tell which target failed.
func invalidRequestFromBatch(index int, err error) *RPCError {
	if rerr, ok := err.(*RPCError); ok {
		if rerr.Data == nil {
			rerr.Data = map[string]any{}
		}
		rerr.Data["targetIndex"] = index
		return rerr
	}
	return translate(err)
}

// mergeArgs overlays target-specific fields (e.g. each batch entry's own
// `target`/`newName`) on top of the call's shared fields (e.g. `scope`).
func mergeArgs(base map[string]any, target map[string]any) map[string]any {
	merged := make(map[string]any, len(base)+len(target))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range target {
		merged[k] = v
	}
	delete(merged, "targets")
	return merged
}

// planOne dispatches a single (non-batch) call to its planner.
func (d *Dispatcher) planOne(ctx context.Context, tool string, args map[string]any) (*types.EditPlan, error) {
	switch tool {
	case "rename":
		return d.planRename(ctx, args)
	case "move":
		return d.planMove(ctx, args)
	case "delete":
		return d.planDelete(ctx, args)
	case "extract":
		return d.planExtract(ctx, args)
	case "inline":
		return d.planInline(ctx, args)
	case "reorder":
		return d.planReorder(ctx, args)
	case "transform":
		return d.planTransform(ctx, args)
	default:
		return nil, invalidRequest("unknown refactor tool %q", tool)
	}
}

func (d *Dispatcher) target(args map[string]any) (planner.Target, *RPCError) {
	kindStr, err := argString(args, "targetKind", true)
	if err != nil {
		return planner.Target{}, err
	}
	path, err := argString(args, "path", true)
	if err != nil {
		return planner.Target{}, err
	}
	kind := planner.TargetKind(kindStr)
	switch kind {
	case planner.TargetSymbol, planner.TargetFile, planner.TargetDirectory:
	default:
		return planner.Target{}, invalidRequest("unknown targetKind %q", kindStr)
	}
	t := planner.Target{Kind: kind, Path: path}
	if kind == planner.TargetSymbol {
		pos, perr := argPosition(args, "position", true)
		if perr != nil {
			return planner.Target{}, perr
		}
		t.Position = pos
	}
	return t, nil
}

func (d *Dispatcher) planRename(ctx context.Context, args map[string]any) (*types.EditPlan, error) {
	target, err := d.target(args)
	if err != nil {
		return nil, err
	}
	newName, err := argString(args, "newName", true)
	if err != nil {
		return nil, err
	}
	scope, err := scopeFromArgs(args, d.DefaultScope)
	if err != nil {
		return nil, err
	}
	consolidate, err := argBool(args, "consolidate", false)
	if err != nil {
		return nil, err
	}
	return planner.PlanRename(ctx, d.Deps, planner.RenameRequest{
		Target: target, NewName: newName, Scope: scope, Consolidate: consolidate,
	})
}

func (d *Dispatcher) planMove(ctx context.Context, args map[string]any) (*types.EditPlan, error) {
	target, err := d.target(args)
	if err != nil {
		return nil, err
	}
	destDir, err := argString(args, "destinationDir", target.Kind != planner.TargetSymbol)
	if err != nil {
		return nil, err
	}
	dest, err := argString(args, "destination", target.Kind == planner.TargetSymbol)
	if err != nil {
		return nil, err
	}
	scope, err := scopeFromArgs(args, d.DefaultScope)
	if err != nil {
		return nil, err
	}
	return planner.PlanMove(ctx, d.Deps, planner.MoveRequest{
		Target: target, DestinationDir: destDir, Destination: dest, Scope: scope,
	})
}

func (d *Dispatcher) planDelete(ctx context.Context, args map[string]any) (*types.EditPlan, error) {
	target, err := d.target(args)
	if err != nil {
		return nil, err
	}
	scope, err := scopeFromArgs(args, d.DefaultScope)
	if err != nil {
		return nil, err
	}
	force, err := argBool(args, "force", false)
	if err != nil {
		return nil, err
	}
	return planner.PlanDelete(ctx, d.Deps, planner.DeleteRequest{Target: target, Scope: scope, Force: force})
}

func (d *Dispatcher) planExtract(ctx context.Context, args map[string]any) (*types.EditPlan, error) {
	file, err := argString(args, "file", true)
	if err != nil {
		return nil, err
	}
	kindStr, err := argString(args, "kind", true)
	if err != nil {
		return nil, err
	}
	r, err := argRange(args, "range", true)
	if err != nil {
		return nil, err
	}
	name, err := argString(args, "name", true)
	if err != nil {
		return nil, err
	}
	visibility, err := argString(args, "visibility", false)
	if err != nil {
		return nil, err
	}
	kind := planner.ExtractKind(kindStr)
	dest := ""
	if kind == planner.ExtractModule {
		dest, err = argString(args, "destinationPath", true)
		if err != nil {
			return nil, err
		}
	}
	return planner.PlanExtract(ctx, d.Deps, planner.ExtractRequest{
		Kind: kind, File: file, Range: r, Name: name, Visibility: visibility, DestinationPath: dest,
	})
}

func (d *Dispatcher) planInline(ctx context.Context, args map[string]any) (*types.EditPlan, error) {
	file, err := argString(args, "file", true)
	if err != nil {
		return nil, err
	}
	pos, err := argPosition(args, "position", true)
	if err != nil {
		return nil, err
	}
	inlineAll, err := argBool(args, "inlineAll", false)
	if err != nil {
		return nil, err
	}
	return planner.PlanInline(ctx, d.Deps, planner.InlineRequest{File: file, Position: pos, InlineAll: inlineAll})
}

func (d *Dispatcher) planReorder(ctx context.Context, args map[string]any) (*types.EditPlan, error) {
	file, err := argString(args, "file", true)
	if err != nil {
		return nil, err
	}
	kindStr, err := argString(args, "kind", true)
	if err != nil {
		return nil, err
	}
	r, err := argRange(args, "range", true)
	if err != nil {
		return nil, err
	}
	current, err := argStringSlice(args, "currentOrder", true)
	if err != nil {
		return nil, err
	}
	next, err := argStringSlice(args, "newOrder", true)
	if err != nil {
		return nil, err
	}
	updateCallSites, err := argBool(args, "updateCallSites", false)
	if err != nil {
		return nil, err
	}
	pos, _ := argPosition(args, "symbolPosition", false)
	return planner.PlanReorder(ctx, d.Deps, planner.ReorderRequest{
		Kind: planner.ReorderKind(kindStr), File: file, Range: r,
		CurrentOrder: current, NewOrder: next, UpdateCallSites: updateCallSites, SymbolPosition: pos,
	})
}

func (d *Dispatcher) planTransform(ctx context.Context, args map[string]any) (*types.EditPlan, error) {
	file, err := argString(args, "file", true)
	if err != nil {
		return nil, err
	}
	kind, err := argString(args, "kind", true)
	if err != nil {
		return nil, err
	}
	r, err := argRange(args, "range", true)
	if err != nil {
		return nil, err
	}
	optsMap := map[string]string{}
	if raw, ok := args["opts"].(map[string]any); ok {
		for k, v := range raw {
			if s, ok := v.(string); ok {
				optsMap[k] = s
			}
		}
	}
	return planner.PlanTransform(ctx, d.Deps, planner.TransformRequest{File: file, Range: r, Kind: kind, Opts: optsMap})
}
