package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func TestPlanInlineAllRemovesDeclarationAndReplacesReferences(t *testing.T) {
	// class_definition gives PlanInline a Symbol whose declaration line is a
	// simple assignment-shaped statement the assignRe heuristic can read.
	src := "RATE = 2\nbilled = RATE\ndouble = RATE\n"
	deps := newTestDeps(MapFS{"pricing.py": src})

	plan, err := PlanInline(context.Background(), deps, InlineRequest{
		File:      "pricing.py",
		Position:  types.Position{Line: 0, Character: 1}, // inside "RATE"
		InlineAll: true,
	})
	require.NoError(t, err)
	edits := plan.TextEdits["pricing.py"]
	require.Len(t, edits, 3) // 2 references + the declaration removal
	replaced := 0
	removed := 0
	for _, e := range edits {
		switch e.NewText {
		case "2":
			replaced++
		case "":
			removed++
		}
	}
	assert.Equal(t, 2, replaced)
	assert.Equal(t, 1, removed)
}

func TestPlanInlineSingleReferenceLeavesDeclarationWhenOthersRemain(t *testing.T) {
	src := "RATE = 2\nbilled = RATE\ndouble = RATE\n"
	deps := newTestDeps(MapFS{"pricing.py": src})

	plan, err := PlanInline(context.Background(), deps, InlineRequest{
		File:      "pricing.py",
		Position:  types.Position{Line: 1, Character: 9}, // the reference on line 1
		InlineAll: false,
	})
	require.NoError(t, err)
	edits := plan.TextEdits["pricing.py"]
	require.Len(t, edits, 1)
	assert.Equal(t, "2", edits[0].NewText)
}
