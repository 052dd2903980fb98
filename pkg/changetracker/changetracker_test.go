package changetracker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/editengine"
	"github.com/forgeref/forgeref/pkg/types"
)

func rng(startLine, startChar, endLine, endChar int) types.Range {
	return types.Range{
		Start: types.Position{Line: startLine, Character: startChar},
		End:   types.Position{Line: endLine, Character: endChar},
	}
}

func newTestTracker(t *testing.T) (*Tracker, string, *editengine.Engine) {
	t.Helper()
	root := t.TempDir()
	historyDir := filepath.Join(root, ".forgeref", "history")
	tracker := NewTracker(root, historyDir)
	engine := editengine.NewEngine(root, checksum.NewVersionRegistry())
	return tracker, root, engine
}

func TestRecordApplyPersistsChangeRecordOnSuccess(t *testing.T) {
	tracker, root, engine := newTestTracker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world\n"), 0o644))

	plan := types.NewEditPlan(types.PlanRename, "plan-1")
	plan.SetChecksum("a.txt", checksum.OfString("hello world\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 6, 0, 11), NewText: "there"})

	result, err := tracker.RecordApply(context.Background(), plan, engine, editengine.ApplyOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)

	records, err := tracker.History()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "a.txt", records[0].Path)
	assert.Equal(t, "plan-1", records[0].PlanID)
	assert.Equal(t, "hello world\n", records[0].OriginalContent)
	assert.Equal(t, "hello there\n", records[0].NewContent)
	assert.True(t, records[0].Existed)
	assert.Equal(t, StatusActive, records[0].Status)
}

func TestRecordApplyDoesNotPersistOnDryRun(t *testing.T) {
	tracker, root, engine := newTestTracker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world\n"), 0o644))

	plan := types.NewEditPlan(types.PlanRename, "plan-dry")
	plan.SetChecksum("a.txt", checksum.OfString("hello world\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 6, 0, 11), NewText: "there"})

	result, err := tracker.RecordApply(context.Background(), plan, engine, editengine.ApplyOptions{DryRun: true})
	require.NoError(t, err)
	require.True(t, result.Success)

	records, err := tracker.History()
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestRecordApplyRecordsCreatedFileWithNoOriginal(t *testing.T) {
	tracker, root, engine := newTestTracker(t)
	_ = root

	plan := types.NewEditPlan(types.PlanTransform, "plan-create")
	plan.SetChecksum("new.txt", checksum.AbsentHash)
	plan.AddFileOp(types.NewCreate("new.txt", "fresh content\n"))

	result, err := tracker.RecordApply(context.Background(), plan, engine, editengine.ApplyOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)

	records, err := tracker.History()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].Existed)
	assert.Equal(t, "", records[0].OriginalContent)
	assert.Equal(t, "fresh content\n", records[0].NewContent)
}

func TestRevertRestoresOriginalContentAndMarksReverted(t *testing.T) {
	tracker, root, engine := newTestTracker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello world\n"), 0o644))

	plan := types.NewEditPlan(types.PlanRename, "plan-revert")
	plan.SetChecksum("a.txt", checksum.OfString("hello world\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 6, 0, 11), NewText: "there"})

	_, err := tracker.RecordApply(context.Background(), plan, engine, editengine.ApplyOptions{})
	require.NoError(t, err)

	records, err := tracker.History()
	require.NoError(t, err)
	require.Len(t, records, 1)
	hash := records[0].FileRevisionHash

	require.NoError(t, tracker.Revert(hash))
	data, err := os.ReadFile(filepath.Join(root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world\n", string(data))

	records, err = tracker.History()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, StatusReverted, records[0].Status)
}

func TestRevertRemovesFileThatDidNotExistBefore(t *testing.T) {
	tracker, root, engine := newTestTracker(t)

	plan := types.NewEditPlan(types.PlanTransform, "plan-create-revert")
	plan.SetChecksum("new.txt", checksum.AbsentHash)
	plan.AddFileOp(types.NewCreate("new.txt", "fresh\n"))

	_, err := tracker.RecordApply(context.Background(), plan, engine, editengine.ApplyOptions{})
	require.NoError(t, err)

	records, err := tracker.History()
	require.NoError(t, err)
	require.Len(t, records, 1)

	require.NoError(t, tracker.Revert(records[0].FileRevisionHash))
	assert.NoFileExists(t, filepath.Join(root, "new.txt"))
}

func TestRevertRejectsUnknownHash(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	err := tracker.Revert("does-not-exist")
	require.Error(t, err)
}

func TestRevertRejectsAlreadyRevertedHash(t *testing.T) {
	tracker, root, engine := newTestTracker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("before\n"), 0o644))

	plan := types.NewEditPlan(types.PlanRename, "plan-double-revert")
	plan.SetChecksum("a.txt", checksum.OfString("before\n"))
	plan.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 0, 0, 6), NewText: "after"})

	_, err := tracker.RecordApply(context.Background(), plan, engine, editengine.ApplyOptions{})
	require.NoError(t, err)
	records, err := tracker.History()
	require.NoError(t, err)
	hash := records[0].FileRevisionHash

	require.NoError(t, tracker.Revert(hash))
	err = tracker.Revert(hash)
	require.Error(t, err)
}

func TestHistoryOrdersMostRecentFirst(t *testing.T) {
	tracker, root, engine := newTestTracker(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("one\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("two\n"), 0o644))

	plan1 := types.NewEditPlan(types.PlanRename, "plan-a")
	plan1.SetChecksum("a.txt", checksum.OfString("one\n"))
	plan1.AddTextEdit(types.TextEdit{Path: "a.txt", Range: rng(0, 0, 0, 3), NewText: "ONE"})
	_, err := tracker.RecordApply(context.Background(), plan1, engine, editengine.ApplyOptions{})
	require.NoError(t, err)

	plan2 := types.NewEditPlan(types.PlanRename, "plan-b")
	plan2.SetChecksum("b.txt", checksum.OfString("two\n"))
	plan2.AddTextEdit(types.TextEdit{Path: "b.txt", Range: rng(0, 0, 0, 3), NewText: "TWO"})
	_, err = tracker.RecordApply(context.Background(), plan2, engine, editengine.ApplyOptions{})
	require.NoError(t, err)

	records, err := tracker.History()
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Most-recent-first: plan-b was applied second, so it leads (or ties,
	// since both may share a time.Now() tick — either order is acceptable
	// as long as both records are present).
	planIDs := []string{records[0].PlanID, records[1].PlanID}
	assert.ElementsMatch(t, []string{"plan-a", "plan-b"}, planIDs)
}

func TestDiffRendersNonEmptyForChangedContent(t *testing.T) {
	rec := ChangeRecord{
		Path:            "a.txt",
		OriginalContent: "hello\n",
		NewContent:      "hullo\n",
	}
	diff := Diff(rec)
	assert.Contains(t, diff, "a.txt")
}

func TestFormatRecordIncludesPathAndPlanID(t *testing.T) {
	rec := ChangeRecord{
		Path:            "a.txt",
		PlanID:          "plan-xyz",
		Status:          StatusActive,
		OriginalContent: "hello\n",
		NewContent:      "hullo\n",
	}
	out := FormatRecord(rec)
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "plan-xyz")
	assert.Contains(t, out, StatusActive)
}
