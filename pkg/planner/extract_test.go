package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func TestPlanExtractVariableReplacesSelectionAndInsertsDeclaration(t *testing.T) {
	src := "total = 1 + 2\n"
	deps := newTestDeps(MapFS{"calc.py": src})
	// select "1 + 2"
	sel := types.Range{Start: types.Position{Line: 0, Character: 8}, End: types.Position{Line: 0, Character: 13}}
	plan, err := PlanExtract(context.Background(), deps, ExtractRequest{
		Kind:  ExtractVariable,
		File:  "calc.py",
		Range: sel,
		Name:  "subtotal",
	})
	require.NoError(t, err)
	edits := plan.TextEdits["calc.py"]
	require.Len(t, edits, 2)
	assert.Equal(t, "subtotal", edits[1].NewText)
	assert.Contains(t, plan.Warnings[0], "free-variable analysis is heuristic")
}

func TestPlanExtractRejectsEmptySelection(t *testing.T) {
	deps := newTestDeps(MapFS{"calc.py": "total = 1 + 2\n"})
	sel := types.Range{Start: types.Position{Line: 0, Character: 13}, End: types.Position{Line: 0, Character: 13}}
	_, err := PlanExtract(context.Background(), deps, ExtractRequest{
		Kind:  ExtractVariable,
		File:  "calc.py",
		Range: sel,
		Name:  "x",
	})
	require.Error(t, err)
}

func TestPlanExtractModuleRejectsExistingDestination(t *testing.T) {
	fs := MapFS{"calc.py": "total = 1 + 2\n", "dest.py": "y = 1\n"}
	deps := newTestDeps(fs)
	sel := types.Range{Start: types.Position{Line: 0, Character: 0}, End: types.Position{Line: 0, Character: 13}}
	_, err := PlanExtract(context.Background(), deps, ExtractRequest{
		Kind:            ExtractModule,
		File:            "calc.py",
		Range:           sel,
		Name:            "total",
		DestinationPath: "dest.py",
	})
	require.Error(t, err)
}

func TestPlanExtractModuleCreatesNewFile(t *testing.T) {
	fs := MapFS{"calc.py": "total = 1 + 2\n"}
	deps := newTestDeps(fs)
	sel := types.Range{Start: types.Position{Line: 0, Character: 0}, End: types.Position{Line: 0, Character: 13}}
	plan, err := PlanExtract(context.Background(), deps, ExtractRequest{
		Kind:            ExtractModule,
		File:            "calc.py",
		Range:           sel,
		Name:            "total",
		DestinationPath: "totals.py",
	})
	require.NoError(t, err)
	found := false
	for _, op := range plan.FileOps {
		if op.Kind == types.FileOpCreate && op.Path == "totals.py" {
			found = true
			assert.Contains(t, op.Contents, "total = 1 + 2")
		}
	}
	assert.True(t, found)
}
