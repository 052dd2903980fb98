package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func TestPlanMoveFileJoinsDestinationDir(t *testing.T) {
	fs := MapFS{"pkg/old.py": "VALUE = 1\n"}
	deps := newTestDeps(fs)
	plan, err := PlanMove(context.Background(), deps, MoveRequest{
		Target:         Target{Kind: TargetFile, Path: "pkg/old.py"},
		DestinationDir: "archive",
	})
	require.NoError(t, err)
	assert.Equal(t, types.PlanMove, plan.Kind)
	require.Len(t, plan.FileOps, 1)
	assert.Equal(t, "archive/old.py", plan.FileOps[0].To)
}

func TestPlanMoveSymbolLiftsDeclarationToExistingDestination(t *testing.T) {
	fs := MapFS{
		"pkg/source.py": "def greet(name):\n    return name\n",
		"pkg/dest.py":   "VALUE = 1\n",
	}
	deps := newTestDeps(fs)
	plan, err := PlanMove(context.Background(), deps, MoveRequest{
		Target:      Target{Kind: TargetSymbol, Path: "pkg/source.py", Position: types.Position{Line: 0, Character: 4}},
		Destination: "pkg/dest.py",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, plan.TextEdits["pkg/source.py"])
	assert.NotEmpty(t, plan.TextEdits["pkg/dest.py"])
	assert.Contains(t, plan.Warnings, "verify the destination file has every import the moved declaration needs from its source file")
}

func TestPlanMoveSymbolCreatesNewDestinationFile(t *testing.T) {
	fs := MapFS{"pkg/source.py": "def greet(name):\n    return name\n"}
	deps := newTestDeps(fs)
	plan, err := PlanMove(context.Background(), deps, MoveRequest{
		Target:      Target{Kind: TargetSymbol, Path: "pkg/source.py", Position: types.Position{Line: 0, Character: 4}},
		Destination: "pkg/newfile.py",
	})
	require.NoError(t, err)
	found := false
	for _, op := range plan.FileOps {
		if op.Kind == types.FileOpCreate && op.Path == "pkg/newfile.py" {
			found = true
		}
	}
	assert.True(t, found, "expected a Create op for the new destination file")
}
