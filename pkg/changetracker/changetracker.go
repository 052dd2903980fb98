// Package changetracker is the revision history of spec.md §4's
// supplemented "undo beyond automatic rollback" feature: a durable,
// per-file log of every plan the edit engine actually applied, distinct
// from editengine's own snapshot-and-rollback (which only ever fires
// automatically, inside a single failed Apply, and never persists past
// that call).
//
// Grounded on the teacher's pkg/changetracker, generalized from "one LLM
// edit, one request hash" to "one EditPlan, possibly many files." The
// teacher's optional python-subprocess diff path and interactive
// terminal browser are dropped; diff rendering is delegated to
// editengine.Preview, which already generalized the teacher's
// difflogger.go GetDiff for this repo.
package changetracker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/editengine"
	"github.com/forgeref/forgeref/pkg/types"
)

// Tracker records and replays applied plans. dir is a directory of its
// own (conventionally ".forgeref/history" under the workspace root),
// distinct from root, the workspace root Revert writes back into.
type Tracker struct {
	root string
	dir  string
}

// NewTracker builds a Tracker that persists history under historyDir and
// reverts files relative to root.
func NewTracker(root, historyDir string) *Tracker {
	return &Tracker{root: root, dir: historyDir}
}

func (t *Tracker) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(t.root, path)
}

// RecordApply snapshots plan's touched paths, applies it via engine, and
// — only on success — persists one ChangeRecord per affected path. It
// returns engine's ExecutionResult unchanged; recording failures are
// reported as a warning on the result rather than failing the apply,
// since a lost history entry is not a reason to discard an otherwise
// successful refactor.
func (t *Tracker) RecordApply(ctx context.Context, plan *types.EditPlan, engine *editengine.Engine, opts editengine.ApplyOptions) (*types.ExecutionResult, error) {
	preimages := map[string]string{}
	existed := map[string]bool{}
	for _, path := range plan.TouchedPaths() {
		data, err := os.ReadFile(t.abs(path))
		if err == nil {
			preimages[path] = string(data)
			existed[path] = true
		}
	}

	result, err := engine.Apply(ctx, plan, opts)
	if err != nil || result == nil || !result.Success || opts.DryRun {
		return result, err
	}

	now := time.Now()
	record := func(path string) {
		updated, rerr := os.ReadFile(t.abs(path))
		if rerr != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("changetracker: could not snapshot %s after apply: %v", path, rerr))
			return
		}
		original := preimages[path]
		newHash := checksum.OfString(string(updated))
		meta := changeMetadata{
			Version:          metadataVersion,
			PlanID:           plan.Metadata.PlanID,
			Path:             path,
			FileRevisionHash: newHash,
			OriginalHash:     checksum.OfString(original),
			Timestamp:        now,
			Status:           StatusActive,
			Existed:          existed[path],
		}
		if err := t.save(meta, original, string(updated)); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("changetracker: %v", err))
		}
	}
	for _, path := range result.AppliedFiles {
		record(path)
	}
	for _, path := range result.CreatedFiles {
		record(path)
	}
	return result, nil
}

// History returns every recorded change, most recent first.
func (t *Tracker) History() ([]ChangeRecord, error) {
	return t.fetchAll()
}

// Revert restores fileRevisionHash's pre-apply content (or deletes the
// file, if it did not exist before that change) and marks the record
// reverted. Unlike the edit engine's automatic rollback, Revert is an
// explicit operator action and works against a record whose
// ExecutionResult already reported Success — it is a manual undo, not a
// failure-recovery path.
func (t *Tracker) Revert(fileRevisionHash string) error {
	records, err := t.fetchAll()
	if err != nil {
		return err
	}
	var rec *ChangeRecord
	for i := range records {
		if records[i].FileRevisionHash == fileRevisionHash {
			rec = &records[i]
			break
		}
	}
	if rec == nil {
		return fmt.Errorf("changetracker: no recorded change %q", fileRevisionHash)
	}
	if rec.Status != StatusActive {
		return fmt.Errorf("changetracker: change %q is %s, not active", fileRevisionHash, rec.Status)
	}

	abs := t.abs(rec.Path)
	if rec.Existed {
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("changetracker: revert %s: %w", rec.Path, err)
		}
		if err := os.WriteFile(abs, []byte(rec.OriginalContent), 0o644); err != nil {
			return fmt.Errorf("changetracker: revert %s: %w", rec.Path, err)
		}
	} else {
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("changetracker: revert %s: %w", rec.Path, err)
		}
	}
	return t.setStatus(fileRevisionHash, StatusReverted)
}

// Diff renders rec's content change the same way the edit engine renders
// a dry-run preview.
func Diff(rec ChangeRecord) string {
	return editengine.Preview(rec.Path, rec.OriginalContent, rec.NewContent)
}
