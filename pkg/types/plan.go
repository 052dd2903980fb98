package types

import "sort"

// PlanKind names the operation an EditPlan was produced for.
type PlanKind string

const (
	PlanRename    PlanKind = "rename"
	PlanExtract   PlanKind = "extract"
	PlanInline    PlanKind = "inline"
	PlanMove      PlanKind = "move"
	PlanReorder   PlanKind = "reorder"
	PlanTransform PlanKind = "transform"
	PlanDelete    PlanKind = "delete"
	// PlanWorkspace is the plan kind produced by the `workspace` tool's
	// manifest-level actions (spec.md §6.1: create_package,
	// extract_dependencies, find_replace, update_members, verify_project),
	// which are not one of §4.4's per-target refactorings.
	PlanWorkspace PlanKind = "workspace"
)

// ImpactLevel is a coarse estimate of how disruptive a plan is, derived
// from total edit and file counts.
type ImpactLevel string

const (
	ImpactLow    ImpactLevel = "low"
	ImpactMedium ImpactLevel = "medium"
	ImpactHigh   ImpactLevel = "high"
)

// PlanSummary carries affected/created/deleted counts and the derived
// impact estimate.
type PlanSummary struct {
	FilesAffected int         `json:"filesAffected"`
	FilesCreated  int         `json:"filesCreated"`
	FilesDeleted  int         `json:"filesDeleted"`
	TotalEdits    int         `json:"totalEdits"`
	Impact        ImpactLevel `json:"estimatedImpact"`
}

// PlanMetadata carries the plan-kind-agnostic and plan-kind-specific
// bookkeeping fields of an EditPlan.
type PlanMetadata struct {
	PlanID       string         `json:"planId"`
	PlanVersion  string         `json:"planVersion"`
	CreatedAtRFC string         `json:"createdAt"`
	LanguageHint string         `json:"languageHint,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// IsConsolidation reports the rename-planner special case of spec.md
// §4.4.1 ("Consolidation").
func (m PlanMetadata) IsConsolidation() bool {
	if m.Extra == nil {
		return false
	}
	v, _ := m.Extra["isConsolidation"].(bool)
	return v
}

// EditPlan is the immutable, portable description of a workspace change.
// Planners construct it by value (via NewEditPlan + AddTextEdit/AddFileOp);
// once returned, callers must treat it as read-only — the edit engine never
// mutates a plan it is given, only the filesystem.
type EditPlan struct {
	Kind           PlanKind             `json:"planKind"`
	TextEdits      map[string][]TextEdit `json:"textEdits"`
	FileOps        []FileOperation       `json:"fileOps"`
	FileChecksums  map[string]string     `json:"fileChecksums"`
	Summary        PlanSummary           `json:"summary"`
	Warnings       []string              `json:"warnings"`
	Metadata       PlanMetadata          `json:"metadata"`
}

// NewEditPlan constructs an empty plan of the given kind.
func NewEditPlan(kind PlanKind, planID string) *EditPlan {
	return &EditPlan{
		Kind:          kind,
		TextEdits:     make(map[string][]TextEdit),
		FileChecksums: make(map[string]string),
		Metadata:      PlanMetadata{PlanID: planID, PlanVersion: "1"},
	}
}

// AddTextEdit appends e to the plan, keeping the per-path slice sorted by
// start position with ties broken by insertion order (spec.md §3 ordering
// invariant). It does not itself reject overlaps — that validation belongs
// to the edit engine, which sees the full plan at apply time.
func (p *EditPlan) AddTextEdit(e TextEdit) {
	edits := p.TextEdits[e.Path]
	edits = append(edits, e)
	sort.SliceStable(edits, func(i, j int) bool {
		return edits[i].Range.Start.Less(edits[j].Range.Start)
	})
	p.TextEdits[e.Path] = edits
}

// AddFileOp appends a file operation to the plan.
func (p *EditPlan) AddFileOp(op FileOperation) {
	p.FileOps = append(p.FileOps, op)
}

// AddWarning appends a non-fatal warning string to the plan.
func (p *EditPlan) AddWarning(w string) {
	p.Warnings = append(p.Warnings, w)
}

// SetChecksum records the SHA-256 the planner observed for path.
func (p *EditPlan) SetChecksum(path, sha256Hex string) {
	p.FileChecksums[path] = sha256Hex
}

// TouchedPaths returns every path referenced by a TextEdit or a
// non-creating FileOperation — the set that spec.md §3 requires
// FileChecksums to cover completely.
func (p *EditPlan) TouchedPaths() []string {
	seen := map[string]bool{}
	var out []string
	add := func(path string) {
		if path == "" || seen[path] {
			return
		}
		seen[path] = true
		out = append(out, path)
	}
	for path := range p.TextEdits {
		add(path)
	}
	for _, op := range p.FileOps {
		switch op.Kind {
		case FileOpDelete:
			add(op.Path)
		case FileOpMove:
			add(op.From)
		}
	}
	return out
}

// IsNoop reports whether the plan changes nothing — every TextEdit slice
// is empty and FileOps is empty (spec.md §8 "Idempotence of no-op plans").
func (p *EditPlan) IsNoop() bool {
	if len(p.FileOps) != 0 {
		return false
	}
	for _, edits := range p.TextEdits {
		if len(edits) != 0 {
			return false
		}
	}
	return true
}

// RecomputeSummary derives PlanSummary from the current TextEdits/FileOps.
func (p *EditPlan) RecomputeSummary() {
	affected := map[string]bool{}
	created, deleted, totalEdits := 0, 0, 0
	for path, edits := range p.TextEdits {
		if len(edits) > 0 {
			affected[path] = true
		}
		totalEdits += len(edits)
	}
	for _, op := range p.FileOps {
		switch op.Kind {
		case FileOpCreate:
			created++
		case FileOpDelete:
			deleted++
			affected[op.Path] = true
		case FileOpMove:
			affected[op.From] = true
		}
	}
	total := len(affected) + created + deleted
	impact := ImpactLow
	switch {
	case total > 20 || totalEdits > 50:
		impact = ImpactHigh
	case total > 5 || totalEdits > 10:
		impact = ImpactMedium
	}
	p.Summary = PlanSummary{
		FilesAffected: len(affected),
		FilesCreated:  created,
		FilesDeleted:  deleted,
		TotalEdits:    totalEdits,
		Impact:        impact,
	}
}

// MergePlans concatenates plans produced by expanding a batch operation
// (spec.md §4.5): text edits and file ops are appended, checksums are
// merged, and a conflicting checksum for the same path across plans is
// reported as an error by the caller (the dispatcher), not silently
// resolved here.
func MergePlans(kind PlanKind, planID string, plans []*EditPlan) (*EditPlan, []string, error) {
	merged := NewEditPlan(kind, planID)
	var conflicts []string
	for _, p := range plans {
		if p == nil {
			continue
		}
		for path, edits := range p.TextEdits {
			merged.TextEdits[path] = append(merged.TextEdits[path], edits...)
		}
		merged.FileOps = append(merged.FileOps, p.FileOps...)
		merged.Warnings = append(merged.Warnings, p.Warnings...)
		for path, sum := range p.FileChecksums {
			if existing, ok := merged.FileChecksums[path]; ok && existing != sum {
				conflicts = append(conflicts, path)
				continue
			}
			merged.FileChecksums[path] = sum
		}
	}
	for path, edits := range merged.TextEdits {
		sort.SliceStable(edits, func(i, j int) bool {
			return edits[i].Range.Start.Less(edits[j].Range.Start)
		})
		merged.TextEdits[path] = edits
	}
	merged.RecomputeSummary()
	if len(conflicts) > 0 {
		return merged, conflicts, ErrChecksumConflict
	}
	return merged, nil, nil
}
