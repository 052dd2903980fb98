package scope

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	abs := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0o644))
}

func TestAllowsCategoryByScopeKind(t *testing.T) {
	cases := []struct {
		scope    types.Scope
		category types.Category
		want     bool
	}{
		{types.Scope{Kind: types.ScopeCode}, types.CategoryCodeImport, true},
		{types.Scope{Kind: types.ScopeCode}, types.CategoryMarkdownLink, false},
		{types.Scope{Kind: types.ScopeStandard}, types.CategoryMarkdownLink, true},
		{types.Scope{Kind: types.ScopeStandard}, types.CategoryComment, false},
		{types.Scope{Kind: types.ScopeComments}, types.CategoryComment, true},
		{types.Scope{Kind: types.ScopeComments}, types.CategoryProse, false},
		{types.Scope{Kind: types.ScopeEverything}, types.CategoryProse, true},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, AllowsCategory(c.scope, c.category), "%v / %v", c.scope.Kind, c.category)
	}
}

func TestAllowsCategoryCustomScopeActsAsEverything(t *testing.T) {
	custom := types.Scope{Kind: types.ScopeCustom}
	assert.True(t, AllowsCategory(custom, types.CategoryProse))
	assert.True(t, AllowsCategory(custom, types.CategoryComment))
}

func TestMatchesCustomFileIncludesOnly(t *testing.T) {
	s := types.Scope{Includes: []string{"pkg/**"}}
	assert.True(t, MatchesCustomFile(s, "pkg/a.go"))
	assert.False(t, MatchesCustomFile(s, "other/a.go"))
}

func TestMatchesCustomFileNoIncludesMeansEverythingReached(t *testing.T) {
	s := types.Scope{}
	assert.True(t, MatchesCustomFile(s, "anything/at/all.go"))
}

func TestMatchesCustomFileExcludesWinOverIncludes(t *testing.T) {
	s := types.Scope{Includes: []string{"pkg/**"}, Excludes: []string{"pkg/generated/**"}}
	assert.True(t, MatchesCustomFile(s, "pkg/a.go"))
	assert.False(t, MatchesCustomFile(s, "pkg/generated/b.go"))
}

func TestEngineIsIgnoredHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "vendor/\n*.log\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n")
	writeFile(t, root, "app.log", "x\n")
	writeFile(t, root, "main.go", "package main\n")

	e := NewEngine(root)
	assert.True(t, e.IsIgnored("vendor/dep.go"))
	assert.True(t, e.IsIgnored("app.log"))
	assert.False(t, e.IsIgnored("main.go"))
}

func TestEngineIsIgnoredHonorsForgerefLocalIgnore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".forgeref/.ignore", "scratch/\n")
	writeFile(t, root, "scratch/notes.txt", "x\n")
	writeFile(t, root, "keep.txt", "y\n")

	e := NewEngine(root)
	assert.True(t, e.IsIgnored("scratch/notes.txt"))
	assert.False(t, e.IsIgnored("keep.txt"))
}

func TestEngineReachesCombinesIgnoreScopeAndCategory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "vendor/\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n")
	writeFile(t, root, "docs/readme.md", "# hi\n")

	e := NewEngine(root)

	// Ignored path never reaches, regardless of scope/category.
	assert.False(t, e.Reaches(types.Scope{Kind: types.ScopeEverything}, "vendor/dep.go", types.CategoryCodeImport))

	// Standard scope reaches markdown links but not prose.
	standard := types.Scope{Kind: types.ScopeStandard}
	assert.True(t, e.Reaches(standard, "docs/readme.md", types.CategoryMarkdownLink))
	assert.False(t, e.Reaches(standard, "docs/readme.md", types.CategoryProse))

	// Custom scope additionally filters by Includes/Excludes.
	custom := types.Scope{Kind: types.ScopeCustom, Includes: []string{"docs/**"}}
	assert.True(t, e.Reaches(custom, "docs/readme.md", types.CategoryProse))
	assert.False(t, e.Reaches(custom, "other/file.txt", types.CategoryProse))
}

func TestEngineFilesSkipsGitDirAndIgnoredPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "vendor/\n")
	writeFile(t, root, ".git/HEAD", "ref: refs/heads/main\n")
	writeFile(t, root, "vendor/dep.go", "package dep\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "pkg/sub/util.go", "package sub\n")

	e := NewEngine(root)
	files, err := e.Files()
	require.NoError(t, err)

	assert.Contains(t, files, "main.go")
	assert.Contains(t, files, "pkg/sub/util.go")
	assert.NotContains(t, files, "vendor/dep.go")
	for _, f := range files {
		assert.NotContains(t, f, ".git/")
	}
}
