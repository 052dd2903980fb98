// Package scope implements the edit-scope engine of spec.md §3/§4.4.1: it
// decides, for a given Scope and Category, whether a candidate occurrence
// is in bounds for a rename/move's text edits, and it enumerates
// gitignore-aware workspace file lists for planners that must scan beyond
// a single file (consolidation, workspace-wide rename).
//
// Grounded on the teacher's pkg/filediscovery/ignore.go and
// pkg/workspace/workspace_ignore.go: both load .gitignore plus a tool-local
// ignore file through sabhiram/go-gitignore and combine the rules into one
// GitIgnore matcher. This plugin reuses the same library, and the same
// glob-matching semantics, for Scope.Custom's Includes/Excludes lists.
package scope

import (
	"bufio"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/forgeref/forgeref/pkg/types"
)

// Engine resolves scope membership for a workspace rooted at Root.
type Engine struct {
	Root    string
	ignores *ignore.GitIgnore
}

// NewEngine builds an Engine that combines <root>/.gitignore with
// <root>/.forgeref/.ignore, the forgeref-local analogue of the teacher's
// .ledit/.ignore.
func NewEngine(root string) *Engine {
	return &Engine{Root: root, ignores: loadIgnoreRules(root)}
}

func loadIgnoreRules(root string) *ignore.GitIgnore {
	var lines []string
	for _, rel := range []string{".gitignore", filepath.Join(".forgeref", ".ignore")} {
		if l, err := readLines(filepath.Join(root, rel)); err == nil {
			lines = append(lines, l...)
		}
	}
	if len(lines) == 0 {
		return nil
	}
	return ignore.CompileIgnoreLines(lines...)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// IsIgnored reports whether relPath is excluded by the workspace's gitignore
// rules. Planners use this to skip candidate files before ever invoking a
// plugin on them.
func (e *Engine) IsIgnored(relPath string) bool {
	return e.ignores != nil && e.ignores.MatchesPath(relPath)
}

// AllowsCategory reports whether scope permits editing an occurrence of the
// given category. Scope.Custom imposes no category restriction of its own
// beyond Everything — a custom scope is defined entirely by which *files*
// it reaches (see MatchesCustomFile), not which occurrence categories
// within a reached file; restricting categories too would make Custom a
// strict subset of Everything instead of an orthogonal axis.
func AllowsCategory(s types.Scope, category types.Category) bool {
	if s.Kind == types.ScopeCustom {
		return types.Scope{Kind: types.ScopeEverything}.Allows(category)
	}
	return s.Allows(category)
}

// MatchesCustomFile decides whether relPath is reached by a Scope.Custom's
// Includes/Excludes glob lists.
//
// Open Question (spec.md §9) resolved: Excludes is evaluated after
// Includes and always wins — a path matching both lists is excluded. This
// mirrors the teacher's own ignore-combination behavior (a later, more
// specific gitignore rule overrides an earlier broader one) and gives
// callers an unambiguous way to carve an exception out of a broad include
// pattern, which is the only direction that composes cleanly: broad
// include + narrow exclude. The reverse (broad exclude + narrow include
// override) has no expressible use case here since Includes has no
// equivalent of gitignore's "!" negation syntax.
func MatchesCustomFile(s types.Scope, relPath string) bool {
	if len(s.Excludes) > 0 && ignore.CompileIgnoreLines(s.Excludes...).MatchesPath(relPath) {
		return false
	}
	if len(s.Includes) == 0 {
		return true
	}
	return ignore.CompileIgnoreLines(s.Includes...).MatchesPath(relPath)
}

// Reaches combines IsIgnored, AllowsCategory and, for Custom scopes,
// MatchesCustomFile into the single membership test a planner needs before
// rewriting an occurrence of category in relPath.
func (e *Engine) Reaches(s types.Scope, relPath string, category types.Category) bool {
	if e.IsIgnored(relPath) {
		return false
	}
	if s.Kind == types.ScopeCustom && !MatchesCustomFile(s, relPath) {
		return false
	}
	return AllowsCategory(s, category)
}

// Files enumerates every workspace-relative file path under Root that
// .gitignore/.forgeref/.ignore do not exclude, skipping VCS directories.
// Planners use this to find candidate consumer files for a workspace-wide
// import rewrite (rename/move/consolidation) without re-implementing a
// walk in each one.
func (e *Engine) Files() ([]string, error) {
	var out []string
	err := filepath.WalkDir(e.Root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(e.Root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}
		if d.IsDir() {
			if rel == ".git" || e.IsIgnored(rel+"/") || e.IsIgnored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if e.IsIgnored(rel) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
