package editengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/types"
)

func writeWorkspaceFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func readWorkspaceFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, rel))
	require.NoError(t, err)
	return string(data)
}

func TestEngineApplyTextEditWritesFileAndBumpsVersion(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "a.txt", "hello world\n")

	versions := checksum.NewVersionRegistry()
	engine := NewEngine(root, versions)

	plan := types.NewEditPlan(types.PlanRename, "plan-1")
	plan.SetChecksum("a.txt", checksum.OfString("hello world\n"))
	plan.AddTextEdit(types.TextEdit{
		Path:    "a.txt",
		Range:   rng(0, 6, 0, 11),
		NewText: "there",
	})

	result, err := engine.Apply(context.Background(), plan, ApplyOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Contains(t, result.AppliedFiles, "a.txt")
	assert.Equal(t, "hello there\n", readWorkspaceFile(t, root, "a.txt"))
	assert.Equal(t, 1, versions.Get("a.txt"))
}

func TestEngineApplyCreateMoveDeleteOrdering(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "old.txt", "move me\n")
	writeWorkspaceFile(t, root, "doomed.txt", "bye\n")

	versions := checksum.NewVersionRegistry()
	engine := NewEngine(root, versions)

	plan := types.NewEditPlan(types.PlanMove, "plan-2")
	plan.SetChecksum("old.txt", checksum.OfString("move me\n"))
	plan.SetChecksum("doomed.txt", checksum.OfString("bye\n"))
	plan.SetChecksum("new.txt", checksum.AbsentHash)
	plan.AddFileOp(types.NewCreate("new.txt", "fresh\n"))
	plan.AddFileOp(types.NewMove("old.txt", "moved.txt"))
	plan.AddFileOp(types.NewDelete("doomed.txt"))

	result, err := engine.Apply(context.Background(), plan, ApplyOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)

	assert.Equal(t, "fresh\n", readWorkspaceFile(t, root, "new.txt"))
	assert.Equal(t, "move me\n", readWorkspaceFile(t, root, "moved.txt"))
	assert.NoFileExists(t, filepath.Join(root, "old.txt"))
	assert.NoFileExists(t, filepath.Join(root, "doomed.txt"))

	assert.Contains(t, result.CreatedFiles, "new.txt")
	assert.Contains(t, result.DeletedFiles, "doomed.txt")
}

func TestEngineApplyRejectsStaleChecksum(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "a.txt", "current content\n")

	versions := checksum.NewVersionRegistry()
	engine := NewEngine(root, versions)

	plan := types.NewEditPlan(types.PlanRename, "plan-3")
	plan.SetChecksum("a.txt", checksum.OfString("stale content\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 0, 0, 1), NewText: "X"})

	_, err := engine.Apply(context.Background(), plan, ApplyOptions{})
	require.Error(t, err)
	assert.Equal(t, "current content\n", readWorkspaceFile(t, root, "a.txt"))
}

func TestEngineApplyRejectsOverlappingEdits(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "a.txt", "abcdef\n")

	versions := checksum.NewVersionRegistry()
	engine := NewEngine(root, versions)

	plan := types.NewEditPlan(types.PlanRename, "plan-4")
	plan.SetChecksum("a.txt", checksum.OfString("abcdef\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 0, 0, 3), NewText: "X"})
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 2, 0, 5), NewText: "Y"})

	_, err := engine.Apply(context.Background(), plan, ApplyOptions{})
	require.Error(t, err)
}

func TestEngineApplyDryRunWritesNothing(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "a.txt", "hello world\n")

	versions := checksum.NewVersionRegistry()
	engine := NewEngine(root, versions)

	plan := types.NewEditPlan(types.PlanRename, "plan-5")
	plan.SetChecksum("a.txt", checksum.OfString("hello world\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 6, 0, 11), NewText: "there"})

	result, err := engine.Apply(context.Background(), plan, ApplyOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "hello world\n", readWorkspaceFile(t, root, "a.txt"))
	assert.Equal(t, 0, versions.Get("a.txt"))
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "dry-run preview")
}

func TestEngineApplyRollsBackOnValidationFailure(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "a.txt", "hello world\n")

	versions := checksum.NewVersionRegistry()
	engine := NewEngine(root, versions)

	plan := types.NewEditPlan(types.PlanRename, "plan-6")
	plan.SetChecksum("a.txt", checksum.OfString("hello world\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 6, 0, 11), NewText: "there"})

	result, err := engine.Apply(context.Background(), plan, ApplyOptions{
		ValidationCommand: []string{"false"},
	})
	require.Error(t, err)
	require.NotNil(t, result)
	assert.True(t, result.RollbackAvailable)
	assert.True(t, result.RollbackApplied)
	assert.False(t, result.Success)
	assert.Equal(t, "hello world\n", readWorkspaceFile(t, root, "a.txt"))
}

func TestEngineApplySucceedsWithPassingValidation(t *testing.T) {
	root := t.TempDir()
	writeWorkspaceFile(t, root, "a.txt", "hello world\n")

	versions := checksum.NewVersionRegistry()
	engine := NewEngine(root, versions)

	plan := types.NewEditPlan(types.PlanRename, "plan-7")
	plan.SetChecksum("a.txt", checksum.OfString("hello world\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 6, 0, 11), NewText: "there"})

	result, err := engine.Apply(context.Background(), plan, ApplyOptions{
		ValidationCommand: []string{"true"},
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, result.Validation)
	assert.Equal(t, 0, result.Validation.ExitCode)
	assert.Equal(t, "hello there\n", readWorkspaceFile(t, root, "a.txt"))
}

func TestEngineValidateRunsCommandWithoutPlan(t *testing.T) {
	root := t.TempDir()
	versions := checksum.NewVersionRegistry()
	engine := NewEngine(root, versions)

	vr := engine.Validate(context.Background(), []string{"true"}, 0)
	assert.Equal(t, 0, vr.ExitCode)
	assert.False(t, vr.TimedOut)
}
