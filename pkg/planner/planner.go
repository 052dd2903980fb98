// Package planner implements the Refactoring Planner of spec.md §4.4: one
// planner per plan kind (rename, move, delete, extract, inline, reorder,
// transform), dispatched by plan_kind. Every planner performs only reads —
// filesystem, LSP, plugin parse — and returns an *types.EditPlan; none of
// them ever touches the filesystem (that is the Workspace Edit Engine's
// job, exclusively).
package planner

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/lspmux"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

var foldCase = cases.Lower(language.Und)

// caseFoldCollision reports an existing file under files whose case-folded
// path equals newPath's but whose exact path differs — a destination that
// `FileSystem.Exists` alone would miss on a case-sensitive test double but
// which collides for real on the case-insensitive filesystems most
// developers actually run (macOS, Windows). Move/Rename planners surface
// this as a plan warning rather than a hard error, since not every target
// filesystem folds case.
func caseFoldCollision(files []string, newPath string) (string, bool) {
	folded := foldCase.String(newPath)
	for _, f := range files {
		if f == newPath {
			continue
		}
		if foldCase.String(f) == folded {
			return f, true
		}
	}
	return "", false
}

// directoriesOf returns every distinct directory prefix found in files,
// excluding exclude (the directory about to be moved away from) — used by
// the directory-rename/move planner's case-fold collision check.
func directoriesOf(files []string, exclude string) []string {
	seen := map[string]bool{}
	var dirs []string
	for _, f := range files {
		parts := strings.Split(f, "/")
		for i := 1; i < len(parts); i++ {
			dir := strings.Join(parts[:i], "/")
			if dir == exclude || seen[dir] {
				continue
			}
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}
	return dirs
}

// ScopeEngine narrows pkg/scope.Engine down to what a planner needs:
// membership testing for a candidate occurrence, and workspace-wide file
// enumeration for consumer search. Planners depend on this interface, not
// *scope.Engine directly, so tests can inject a fixed file list (spec.md
// §9 dependency-injection note).
type ScopeEngine interface {
	Reaches(s types.Scope, relPath string, category types.Category) bool
	Files() ([]string, error)
}

// Deps bundles every collaborator a planner consults. Constructed
// explicitly and passed to Dispatch, never a package-global (spec.md §9
// "Global state").
type Deps struct {
	Registry *plugins.Registry
	LSP      lspmux.Client
	Scope    ScopeEngine
	FS       FileSystem
}

// TargetKind names what a rename/delete operation is aimed at.
type TargetKind string

const (
	TargetSymbol    TargetKind = "symbol"
	TargetFile      TargetKind = "file"
	TargetDirectory TargetKind = "directory"
)

// Target identifies the thing a mutating operation acts on.
type Target struct {
	Kind     TargetKind
	Path     string
	Position types.Position // meaningful only when Kind == TargetSymbol
}

// newPlan allocates a fresh EditPlan with a uuid-generated plan ID
// (SPEC_FULL.md §3: google/uuid backs plan IDs).
func newPlan(kind types.PlanKind) *types.EditPlan {
	return types.NewEditPlan(kind, uuid.NewString())
}

// recordChecksum reads path through fs, records its SHA-256 on plan, and
// returns the content read so the caller doesn't have to read twice.
// Missing files record checksum.AbsentHash, matching the edit engine's
// snapshot semantics for not-yet-existing paths.
func recordChecksum(fs FileSystem, plan *types.EditPlan, path string) (string, error) {
	if !fs.Exists(path) {
		plan.SetChecksum(path, checksum.AbsentHash)
		return "", nil
	}
	content, err := fs.ReadFile(path)
	if err != nil {
		return "", obserr.Wrap(obserr.CategoryInternal, "read "+path, err)
	}
	plan.SetChecksum(path, checksum.OfString(content))
	return content, nil
}

// finish recomputes the plan's summary and attaches metadata.planVersion;
// every planner's exit path funnels through this so no planner forgets
// the bookkeeping step spec.md §3 requires.
func finish(plan *types.EditPlan, languageHint string) *types.EditPlan {
	plan.RecomputeSummary()
	plan.Metadata.LanguageHint = languageHint
	return plan
}

// identRe matches a bare identifier token, used to find word-boundary
// occurrences of a symbol name in plugin-less/LSP-less fallback search
// (spec.md §4.4.1 "propose textual replacements at identifier token
// boundaries only").
var identRe = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// findIdentifierOccurrences returns the Range of every standalone
// occurrence of name in source — i.e. not a substring of a longer
// identifier, and not inside a quoted string literal. It never matches
// inside `"..."` or `'...'` spans, satisfying the "never inside string
// literals" fallback-rename constraint; comment exclusion is the caller's
// responsibility (callers check Scope before including comment ranges,
// since a regex-level scanner here can't distinguish a comment from code
// without per-language syntax knowledge).
func findIdentifierOccurrences(source, name string) []types.Range {
	var out []types.Range
	inString := byte(0)
	matches := identRe.FindAllStringIndex(source, -1)
	mi := 0
	for i := 0; i < len(source); i++ {
		c := source[i]
		if inString != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		if c == '"' || c == '\'' {
			inString = c
			continue
		}
		if mi < len(matches) && matches[mi][0] == i {
			start, end := matches[mi][0], matches[mi][1]
			mi++
			if source[start:end] == name {
				out = append(out, offsetsToRange(source, start, end))
			}
			i = end - 1
		}
	}
	return out
}

func offsetsToRange(source string, start, end int) types.Range {
	return types.Range{Start: offsetToPos(source, start), End: offsetToPos(source, end)}
}

func offsetToPos(source string, offset int) types.Position {
	line, col := 0, 0
	for i := 0; i < offset && i < len(source); i++ {
		if source[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return types.Position{Line: line, Character: col}
}

// estimatedImpactWarning is attached whenever a planner falls back to
// reduced-precision search, matching spec.md §4.2's "a symbol rename
// without LSP... records estimated_impact: high due to reduced precision"
// — implemented here as a warning since PlanSummary.Impact is derived
// mechanically from edit/file counts by RecomputeSummary, and this is a
// qualitative precision warning distinct from that count-derived measure.
const lowPrecisionWarning = "no language server available; used plugin/regex fallback search (reduced precision)"

// sortedKeys returns the keys of a string-keyed map in sorted order, used
// wherever a planner must iterate a map deterministically (plan output
// must not depend on Go's randomized map iteration order).
func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// dirPrefix reports whether path lies within dir (dir itself excluded),
// comparing forward-slash-normalized path segments.
func dirPrefix(path, dir string) bool {
	if dir == "" {
		return true
	}
	return len(path) > len(dir) && path[:len(dir)] == dir && path[len(dir)] == '/'
}

// moduleNameFor derives a module/import-path name for path, using the
// plugin's ModuleNamer when available and otherwise a generic
// extension-stripped fallback (spec.md §4.4.1 "the plugin's module-name
// derivation from paths"; not every plugin implements ModuleNamer — only
// the golang plugin does today — so planners must degrade gracefully
// rather than panic on a missing capability).
func moduleNameFor(p plugins.Plugin, path string) string {
	if namer, ok := p.(plugins.ModuleNamer); ok {
		return namer.ModuleName(path)
	}
	ext := ""
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			ext = path[i:]
			break
		}
		if path[i] == '/' {
			break
		}
	}
	return path[:len(path)-len(ext)]
}
