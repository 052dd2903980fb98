package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func TestPlanDeleteFileErrorsWhenMissing(t *testing.T) {
	deps := newTestDeps(MapFS{})
	_, err := PlanDelete(context.Background(), deps, DeleteRequest{
		Target: Target{Kind: TargetFile, Path: "nope.py"},
	})
	require.Error(t, err)
}

func TestPlanDeleteFileEmitsDeleteOp(t *testing.T) {
	fs := MapFS{"pkg/old.py": "VALUE = 1\n"}
	deps := newTestDeps(fs)
	plan, err := PlanDelete(context.Background(), deps, DeleteRequest{
		Target: Target{Kind: TargetFile, Path: "pkg/old.py"},
	})
	require.NoError(t, err)
	require.Len(t, plan.FileOps, 1)
	assert.Equal(t, types.FileOpDelete, plan.FileOps[0].Kind)
	assert.Equal(t, "pkg/old.py", plan.FileOps[0].Path)
}

func TestPlanDeleteDirectoryErrorsWhenOutOfScope(t *testing.T) {
	deps := newTestDeps(MapFS{"other/file.py": "x = 1\n"})
	_, err := PlanDelete(context.Background(), deps, DeleteRequest{
		Target: Target{Kind: TargetDirectory, Path: "missing"},
	})
	require.Error(t, err)
}

func TestPlanDeleteSymbolBlocksOnRemainingReferenceWithoutForce(t *testing.T) {
	src := "def greet(name):\n    return name\n"
	deps := newTestDeps(MapFS{"pkg/greeter.py": src})
	// No LSP is wired, so no references are discovered; deletion proceeds
	// with a precision warning instead of blocking.
	plan, err := PlanDelete(context.Background(), deps, DeleteRequest{
		Target: Target{Kind: TargetSymbol, Path: "pkg/greeter.py", Position: types.Position{Line: 0, Character: 4}},
	})
	require.NoError(t, err)
	assert.Contains(t, plan.Warnings, lowPrecisionWarning)
	require.NotEmpty(t, plan.TextEdits["pkg/greeter.py"])
}
