package dispatcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/forgeref/forgeref/pkg/plugins/golang"
	_ "github.com/forgeref/forgeref/pkg/plugins/python"
	_ "github.com/forgeref/forgeref/pkg/plugins/rust"

	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/editengine"
	"github.com/forgeref/forgeref/pkg/planner"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

type fakeScope struct{ files []string }

func (f fakeScope) Files() ([]string, error) {
	out := append([]string(nil), f.files...)
	sort.Strings(out)
	return out, nil
}

func (f fakeScope) Reaches(s types.Scope, relPath string, category types.Category) bool {
	return s.Allows(category)
}

func newTestDispatcher(fs planner.MapFS) *Dispatcher {
	files := make([]string, 0, len(fs))
	for p := range fs {
		files = append(files, p)
	}
	deps := planner.Deps{
		Registry: plugins.NewRegistry(),
		LSP:      nil,
		Scope:    fakeScope{files: files},
		FS:       fs,
	}
	return New(deps, nil, types.DefaultScope(), true)
}

func TestCallUnknownToolReturnsInvalidRequest(t *testing.T) {
	d := newTestDispatcher(planner.MapFS{})
	_, err := d.Call(context.Background(), Request{Name: "bogus"})
	require.Error(t, err)
	rerr, ok := err.(*RPCError)
	require.True(t, ok)
	assert.Equal(t, -32602, rerr.Code)
}

func TestCallRefactorUnknownActionReturnsInvalidRequest(t *testing.T) {
	d := newTestDispatcher(planner.MapFS{})
	_, err := d.Call(context.Background(), Request{
		Name:      "refactor",
		Arguments: map[string]any{"action": "bogus"},
	})
	require.Error(t, err)
	rerr, ok := err.(*RPCError)
	require.True(t, ok)
	assert.Equal(t, -32602, rerr.Code)
}

func TestCallReorderDefaultsToDryRunPreview(t *testing.T) {
	d := newTestDispatcher(planner.MapFS{"greet.go": "func greet(name string, loud bool) {\n}\n"})

	resp, err := d.Call(context.Background(), Request{
		Name: "reorder",
		Arguments: map[string]any{
			"file": "greet.go",
			"kind": "parameters",
			"range": map[string]any{
				"start": map[string]any{"line": 0, "character": 11},
				"end":   map[string]any{"line": 0, "character": 34},
			},
			"currentOrder": []any{"name", "loud"},
			"newOrder":     []any{"loud", "name"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	assert.Nil(t, resp.Execution)
	assert.Equal(t, types.PlanReorder, resp.Plan.Kind)
}

func TestCallBatchTargetsMergesPlans(t *testing.T) {
	d := newTestDispatcher(planner.MapFS{
		"a.py": "x = 1\n",
		"b.py": "y = 2\n",
	})

	resp, err := d.Call(context.Background(), Request{
		Name: "delete",
		Arguments: map[string]any{
			"targets": []any{
				map[string]any{"targetKind": "file", "path": "a.py"},
				map[string]any{"targetKind": "file", "path": "b.py"},
			},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	assert.Len(t, resp.Plan.FileOps, 2)
}

func TestCallWorkspaceFindReplaceWarnsAndEditsMatchingFiles(t *testing.T) {
	d := newTestDispatcher(planner.MapFS{
		"a.py": "RATE = 2\n",
		"b.py": "OTHER = 3\n",
	})

	resp, err := d.Call(context.Background(), Request{
		Name: "workspace",
		Arguments: map[string]any{
			"action":  "find_replace",
			"find":    "RATE",
			"replace": "PRICE_RATE",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	assert.Contains(t, resp.Plan.TextEdits, "a.py")
	assert.NotContains(t, resp.Plan.TextEdits, "b.py")
	assert.Contains(t, resp.Plan.Warnings[0], "literal substring sweep")
}

func TestCallWorkspaceUpdateMembersAddsGoWorkEntry(t *testing.T) {
	d := newTestDispatcher(planner.MapFS{
		"go.work": "go 1.22\n\nuse (\n\t./existing\n)\n",
	})

	resp, err := d.Call(context.Background(), Request{
		Name: "workspace",
		Arguments: map[string]any{
			"action":       "update_members",
			"manifest":     "go.work",
			"member":       "./newmod",
			"memberAction": "add",
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Plan)
	edits := resp.Plan.TextEdits["go.work"]
	require.Len(t, edits, 1)
	assert.Contains(t, edits[0].NewText, "./newmod")
}

func TestCallApplyExecutesAgainstRealFilesystem(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "greet.go"), []byte("func greet(name string, loud bool) {\n}\n"), 0o644))

	deps := planner.Deps{
		Registry: plugins.NewRegistry(),
		Scope:    fakeScope{files: []string{"greet.go"}},
		FS:       planner.NewOSFileSystem(root),
	}
	engine := editengine.NewEngine(root, checksum.NewVersionRegistry())
	d := New(deps, engine, types.DefaultScope(), true)

	resp, err := d.Call(context.Background(), Request{
		Name: "reorder",
		Arguments: map[string]any{
			"dryRun": false,
			"file":   "greet.go",
			"kind":   "parameters",
			"range": map[string]any{
				"start": map[string]any{"line": 0, "character": 11},
				"end":   map[string]any{"line": 0, "character": 34},
			},
			"currentOrder": []any{"name", "loud"},
			"newOrder":     []any{"loud", "name"},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, resp.Execution)
	assert.True(t, resp.Execution.Success)

	written, err := os.ReadFile(filepath.Join(root, "greet.go"))
	require.NoError(t, err)
	assert.Contains(t, string(written), "loud bool, name string")
}
