package planner

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func TestPlanRenameSymbolRewritesDefinitionAndImporter(t *testing.T) {
	defSrc := "def greet(name):\n    return name\n"
	consumerSrc := "from pkg.greeter import greet\n\ngreet(\"a\")\n"
	fs := MapFS{
		"pkg/greeter.py":  defSrc,
		"pkg/consumer.py": consumerSrc,
	}
	deps := newTestDeps(fs)

	plan, err := PlanRename(context.Background(), deps, RenameRequest{
		Target: Target{
			Kind:     TargetSymbol,
			Path:     "pkg/greeter.py",
			Position: types.Position{Line: 0, Character: 4}, // inside "greet"
		},
		NewName: "salute",
	})
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, types.PlanRename, plan.Kind)

	defEdits := plan.TextEdits["pkg/greeter.py"]
	require.NotEmpty(t, defEdits)
	assert.Equal(t, "salute", defEdits[0].NewText)

	assert.Contains(t, plan.FileChecksums, "pkg/greeter.py")
}

func TestPlanRenameFileRejectsExistingDestination(t *testing.T) {
	fs := MapFS{
		"a.py": "x = 1\n",
		"b.py": "y = 2\n",
	}
	deps := newTestDeps(fs)
	_, err := PlanRename(context.Background(), deps, RenameRequest{
		Target:  Target{Kind: TargetFile, Path: "a.py"},
		NewName: "b.py",
	})
	require.Error(t, err)
}

func TestPlanRenameFileEmitsMoveAndRewritesConsumerImport(t *testing.T) {
	fs := MapFS{
		"pkg/old.py": "VALUE = 1\n",
		"pkg/use.py": "import pkg.old\n",
	}
	deps := newTestDeps(fs)
	plan, err := PlanRename(context.Background(), deps, RenameRequest{
		Target:  Target{Kind: TargetFile, Path: "pkg/old.py"},
		NewName: "pkg/new.py",
	})
	require.NoError(t, err)
	require.Len(t, plan.FileOps, 1)
	assert.Equal(t, types.FileOpMove, plan.FileOps[0].Kind)
	assert.Equal(t, "pkg/old.py", plan.FileOps[0].From)
	assert.Equal(t, "pkg/new.py", plan.FileOps[0].To)
}

func TestPlanRenameFileWarnsOnCaseFoldCollision(t *testing.T) {
	fs := MapFS{
		"pkg/old.py": "VALUE = 1\n",
		"pkg/New.py": "OTHER = 2\n",
	}
	deps := newTestDeps(fs)
	plan, err := PlanRename(context.Background(), deps, RenameRequest{
		Target:  Target{Kind: TargetFile, Path: "pkg/old.py"},
		NewName: "pkg/new.py",
	})
	require.NoError(t, err)
	found := false
	for _, w := range plan.Warnings {
		if strings.Contains(w, "pkg/New.py") {
			found = true
		}
	}
	assert.True(t, found, "expected a case-fold collision warning naming pkg/New.py, got %v", plan.Warnings)
}

func TestPlanRenameDirectoryErrorsWhenEmpty(t *testing.T) {
	deps := newTestDeps(MapFS{"other/file.py": "x = 1\n"})
	_, err := PlanRename(context.Background(), deps, RenameRequest{
		Target:  Target{Kind: TargetDirectory, Path: "missing"},
		NewName: "elsewhere",
	})
	require.Error(t, err)
}
