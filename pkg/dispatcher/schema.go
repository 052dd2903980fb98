package dispatcher

import (
	"github.com/forgeref/forgeref/pkg/types"
)

// argString extracts a string argument. required=true turns a missing or
// wrong-typed key into an InvalidRequest-tagged *RPCError instead of a
// zero value — the dispatcher validates structurally before any planner
// runs (spec.md §4.5).
func argString(args map[string]any, key string, required bool) (string, *RPCError) {
	v, present := args[key]
	if !present {
		if required {
			return "", invalidRequest("missing required argument %q", key)
		}
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", invalidRequest("argument %q must be a string", key)
	}
	return s, nil
}

func argBool(args map[string]any, key string, def bool) (bool, *RPCError) {
	v, present := args[key]
	if !present {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, invalidRequest("argument %q must be a boolean", key)
	}
	return b, nil
}

func argStringSlice(args map[string]any, key string, required bool) ([]string, *RPCError) {
	v, present := args[key]
	if !present {
		if required {
			return nil, invalidRequest("missing required argument %q", key)
		}
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, invalidRequest("argument %q must be an array", key)
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, invalidRequest("argument %q[%d] must be a string", key, i)
		}
		out[i] = s
	}
	return out, nil
}

// argObjectSlice extracts an array-of-objects argument (e.g. `targets`),
// each element itself a map[string]any the caller unpacks further.
func argObjectSlice(args map[string]any, key string, required bool) ([]map[string]any, *RPCError) {
	v, present := args[key]
	if !present {
		if required {
			return nil, invalidRequest("missing required argument %q", key)
		}
		return nil, nil
	}
	raw, ok := v.([]any)
	if !ok {
		return nil, invalidRequest("argument %q must be an array", key)
	}
	out := make([]map[string]any, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, invalidRequest("argument %q[%d] must be an object", key, i)
		}
		out[i] = obj
	}
	return out, nil
}

func argPosition(args map[string]any, key string, required bool) (types.Position, *RPCError) {
	v, present := args[key]
	if !present {
		if required {
			return types.Position{}, invalidRequest("missing required argument %q", key)
		}
		return types.Position{}, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return types.Position{}, invalidRequest("argument %q must be a {line, character} object", key)
	}
	line, lok := numberField(obj, "line")
	char, cok := numberField(obj, "character")
	if !lok || !cok {
		return types.Position{}, invalidRequest("argument %q must have numeric line/character fields", key)
	}
	return types.Position{Line: line, Character: char}, nil
}

func argRange(args map[string]any, key string, required bool) (types.Range, *RPCError) {
	v, present := args[key]
	if !present {
		if required {
			return types.Range{}, invalidRequest("missing required argument %q", key)
		}
		return types.Range{}, nil
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return types.Range{}, invalidRequest("argument %q must be a {start, end} object", key)
	}
	startObj, sok := obj["start"].(map[string]any)
	endObj, eok := obj["end"].(map[string]any)
	if !sok || !eok {
		return types.Range{}, invalidRequest("argument %q must have start/end fields", key)
	}
	sLine, slok := numberField(startObj, "line")
	sChar, scok := numberField(startObj, "character")
	eLine, elok := numberField(endObj, "line")
	eChar, ecok := numberField(endObj, "character")
	if !slok || !scok || !elok || !ecok {
		return types.Range{}, invalidRequest("argument %q start/end must have numeric line/character fields", key)
	}
	return types.Range{
		Start: types.Position{Line: sLine, Character: sChar},
		End:   types.Position{Line: eLine, Character: eChar},
	}, nil
}

func numberField(obj map[string]any, key string) (int, bool) {
	v, ok := obj[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// resolveDryRun reads `dryRun` (default true per spec.md §4.5), preferring
// a nested `options.dryRun` when both are present.
func resolveDryRun(args map[string]any) (bool, *RPCError) {
	dryRun, err := argBool(args, "dryRun", true)
	if err != nil {
		return false, err
	}
	opts, ok := args["options"].(map[string]any)
	if !ok {
		return dryRun, nil
	}
	return argBool(opts, "dryRun", dryRun)
}

// scopeFromArgs reads an optional `scope` argument ("code", "standard",
// "comments", "everything"), defaulting to fallback when absent.
func scopeFromArgs(args map[string]any, fallback types.Scope) (types.Scope, *RPCError) {
	v, present := args["scope"]
	if !present {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return types.Scope{}, invalidRequest("argument %q must be a string", "scope")
	}
	switch types.ScopeKind(s) {
	case types.ScopeCode, types.ScopeStandard, types.ScopeComments, types.ScopeEverything:
		return types.Scope{Kind: types.ScopeKind(s)}, nil
	default:
		return types.Scope{}, invalidRequest("unknown scope %q", s)
	}
}
