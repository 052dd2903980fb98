package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func TestValidatePermutationRejectsMismatch(t *testing.T) {
	err := validatePermutation([]string{"a", "b", "c"}, []string{"a", "b"})
	require.Error(t, err)

	err = validatePermutation([]string{"a", "b", "c"}, []string{"a", "b", "d"})
	require.Error(t, err)

	err = validatePermutation([]string{"a", "b", "c"}, []string{"c", "a", "b"})
	require.NoError(t, err)
}

func TestSplitTopLevelIgnoresNestedCommas(t *testing.T) {
	segs := splitTopLevel("a int, b map[string, int], c []int", ",")
	require.Len(t, segs, 3)
	assert.Equal(t, "a int", segs[0])
	assert.Equal(t, " b map[string, int]", segs[1])
	assert.Equal(t, " c []int", segs[2])
}

func TestPlanReorderParametersPermutesDeclaration(t *testing.T) {
	src := "func greet(name string, loud bool) {\n}\n"
	deps := newTestDeps(MapFS{"greet.go": src})

	// Range spans "name string, loud bool" inside the parens.
	r := types.Range{Start: types.Position{Line: 0, Character: 11}, End: types.Position{Line: 0, Character: 34}}
	plan, err := PlanReorder(context.Background(), deps, ReorderRequest{
		Kind:         ReorderParameters,
		File:         "greet.go",
		Range:        r,
		CurrentOrder: []string{"name", "loud"},
		NewOrder:     []string{"loud", "name"},
	})
	require.NoError(t, err)
	edits := plan.TextEdits["greet.go"]
	require.Len(t, edits, 1)
	assert.Equal(t, "loud bool, name string", edits[0].NewText)
}

func TestPlanReorderRejectsNonPermutation(t *testing.T) {
	deps := newTestDeps(MapFS{"greet.go": "func greet(name string, loud bool) {\n}\n"})
	r := types.Range{Start: types.Position{Line: 0, Character: 11}, End: types.Position{Line: 0, Character: 34}}
	_, err := PlanReorder(context.Background(), deps, ReorderRequest{
		Kind:         ReorderParameters,
		File:         "greet.go",
		Range:        r,
		CurrentOrder: []string{"name", "loud"},
		NewOrder:     []string{"name", "extra"},
	})
	require.Error(t, err)
}
