// Package dispatcher implements the Tool Dispatcher of spec.md §4.5: it
// maps an incoming JSON-RPC-shaped tool call to a planner invocation (or,
// for dryRun:false, a planner invocation followed by an Edit Engine
// apply) and returns the right kind of response.
//
// Grounded on the teacher's pkg/tools.Executor (schema-less argument
// validation, a registry-backed dispatch-by-name, structured Result) and
// pkg/mcp's tool-call shape; the JSON-RPC error-code mapping is
// spec.md §6.1, implemented by internal/obserr.RPCCode so this package
// owns only the tool-name → planner wiring, not the taxonomy itself.
//
// No transport (HTTP, stdio, WebSocket) lives here: per SPEC_FULL.md §3,
// the dispatcher is a plain Go API a transport external to this core
// calls, matching spec.md §1's explicit non-goal.
package dispatcher

import (
	"context"
	"fmt"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/editengine"
	"github.com/forgeref/forgeref/pkg/planner"
	"github.com/forgeref/forgeref/pkg/security"
	"github.com/forgeref/forgeref/pkg/types"
)

// Options carries the dryRun/validation knobs common to every mutating
// tool (spec.md §4.5, §6.1).
type Options struct {
	DryRun            bool
	ValidationCommand []string
}

// Request is one `tools/call` invocation: a tool name and its raw,
// untyped arguments, exactly as they would arrive over the wire.
type Request struct {
	Name      string
	Arguments map[string]any
}

// RPCError is the `{code, message, data}` shape of spec.md §6.1.
type RPCError struct {
	Code    int
	Message string
	Data    map[string]any
}

func (e *RPCError) Error() string { return fmt.Sprintf("[%d] %s", e.Code, e.Message) }

// Response is either a preview (Plan set) or an execution
// (Execution set); exactly one of the two is non-nil on success.
type Response struct {
	Plan      *types.EditPlan
	Execution *types.ExecutionResult
}

// Dispatcher owns the collaborators every tool call needs: the planner's
// Deps (registry, LSP, scope, filesystem) and the Edit Engine that turns
// a plan into writes when dryRun is false. Constructed explicitly, never
// a package-global, per spec.md §9.
type Dispatcher struct {
	Deps         planner.Deps
	Engine       *editengine.Engine
	DefaultScope types.Scope
	ScanSecrets  bool
}

// New builds a Dispatcher. defaultScope is used whenever a tool call
// omits its own `scope` argument.
func New(deps planner.Deps, engine *editengine.Engine, defaultScope types.Scope, scanSecrets bool) *Dispatcher {
	return &Dispatcher{Deps: deps, Engine: engine, DefaultScope: defaultScope, ScanSecrets: scanSecrets}
}

// knownTools is the structural schema of spec.md §4.5: the set of tool
// names (and their aliases) this dispatcher accepts, independent of the
// `refactor`/`workspace` action-discriminated tools handled separately.
var knownTools = map[string]string{ // alias -> canonical
	"rename":   "rename",
	"move":     "move",
	"relocate": "move",
	"delete":   "delete",
	"prune":    "delete",
	"extract":  "extract",
	"inline":   "inline",
	"reorder":  "reorder",
	"transform": "transform",
}

// Call validates req against its tool's structural contract, dispatches
// to the matching planner (expanding `targets[]` batches per spec.md
// §4.5), runs the secret-scan guard over the resulting plan, and either
// returns the plan (dryRun, the default) or applies it via the Edit
// Engine and returns an ExecutionResult.
func (d *Dispatcher) Call(ctx context.Context, req Request) (*Response, error) {
	canonical, ok := knownTools[req.Name]
	switch {
	case ok:
		return d.callRefactorTool(ctx, canonical, req.Arguments)
	case req.Name == "refactor":
		action, err := argString(req.Arguments, "action", true)
		if err != nil {
			return nil, err
		}
		canonical, ok = knownTools[action]
		if !ok {
			return nil, invalidRequest("refactor: unknown action %q", action)
		}
		return d.callRefactorTool(ctx, canonical, req.Arguments)
	case req.Name == "workspace":
		return d.callWorkspaceTool(ctx, req.Arguments)
	default:
		return nil, invalidRequest("unknown tool %q", req.Name)
	}
}

// finalizeAndRespond runs the secret-scan guard, then either returns plan
// as a preview or applies it through the Edit Engine.
func (d *Dispatcher) finalizeAndRespond(ctx context.Context, plan *types.EditPlan, opts Options) (*Response, error) {
	plan.RecomputeSummary()
	if d.ScanSecrets {
		security.ScanPlan(plan)
	}
	if opts.DryRun {
		return &Response{Plan: plan}, nil
	}
	result, err := d.Engine.Apply(ctx, plan, editengine.ApplyOptions{
		DryRun:            false,
		ValidationCommand: opts.ValidationCommand,
	})
	if err != nil {
		return nil, translate(err)
	}
	return &Response{Execution: result}, nil
}

// translate wraps a non-StructuredError in CategoryInternal so every
// error this package returns satisfies the RPCError contract via
// obserr.RPCCode, then projects it to an *RPCError.
func translate(err error) *RPCError {
	cat := obserr.CategoryOf(err)
	return &RPCError{
		Code:    obserr.RPCCode(cat),
		Message: err.Error(),
		Data:    map[string]any{"category": string(cat)},
	}
}

func invalidRequest(format string, args ...any) *RPCError {
	return &RPCError{
		Code:    obserr.RPCInvalidParams,
		Message: fmt.Sprintf(format, args...),
		Data:    map[string]any{"category": string(obserr.CategoryInvalidRequest)},
	}
}
