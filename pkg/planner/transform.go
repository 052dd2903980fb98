package planner

import (
	"context"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

// TransformRequest is the input to PlanTransform (spec.md §4.4.7).
type TransformRequest struct {
	File string
	Range types.Range
	Kind  string // e.g. "if_to_match", "add_async"
	Opts  map[string]string
}

// PlanTransform implements spec.md §4.4.7: try the plugin's Transformer
// trait first; if the plugin doesn't offer the requested kind, fall back
// to LSP code actions filtered by kind; error if neither can produce the
// transform.
func PlanTransform(ctx context.Context, deps Deps, req TransformRequest) (*types.EditPlan, error) {
	plan := newPlan(types.PlanTransform)
	source, err := recordChecksum(deps.FS, plan, req.File)
	if err != nil {
		return nil, err
	}
	plugin := deps.Registry.ForPath(req.File)

	if transformer, ok := plugin.(plugins.Transformer); ok && transformer.SupportsTransform(req.Kind) {
		edits, err := transformer.Transform(source, req.Range, req.Kind, req.Opts)
		if err != nil {
			return nil, obserr.Wrap(obserr.CategoryPlan, "plugin transform "+req.Kind, err)
		}
		if len(edits) == 0 {
			return nil, obserr.New(obserr.CategoryPlan, "plugin reported no edits for transform "+req.Kind)
		}
		for _, e := range edits {
			e.Path = req.File
			plan.AddTextEdit(e)
		}
		return finish(plan, plugin.Metadata().LanguageName), nil
	}

	if deps.LSP == nil {
		return nil, obserr.New(obserr.CategoryInvalidRequest, "no plugin or language server can perform transform "+req.Kind+" for "+req.File)
	}
	actions, err := deps.LSP.CodeActions(ctx, req.File, req.Range)
	if err != nil {
		return nil, obserr.Wrap(obserr.CategoryLSP, "code actions for transform "+req.Kind, err)
	}
	for _, action := range actions {
		if action.Kind != req.Kind {
			continue
		}
		if action.Edit.IsEmpty() {
			continue
		}
		for path, edits := range action.Edit.Changes {
			if _, err := recordChecksum(deps.FS, plan, path); err != nil {
				return nil, err
			}
			for _, e := range edits {
				e.Path = path
				plan.AddTextEdit(e)
			}
		}
		plan.AddWarning("transform obtained via language server code action (no plugin-native support for " + req.Kind + ")")
		return finish(plan, plugin.Metadata().LanguageName), nil
	}

	return nil, obserr.New(obserr.CategoryInvalidRequest, "no plugin or language server can perform transform "+req.Kind+" for "+req.File)
}
