package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

// cargoWorkspaceFixture deliberately has no root workspace manifest: the
// member-list rewrite (pelletier/go-toml/v2 array re-encoding) is exercised
// by the rename-planner directory tests instead, so this fixture isolates
// tryConsolidation's dependency-merge and import-rewrite behavior.
func cargoWorkspaceFixture() MapFS {
	return MapFS{
		"crates/srccrate/Cargo.toml": "[package]\nname = \"srccrate\"\nversion = \"0.1.0\"\n\n[dependencies]\nfoo = \"1.0\"\n",
		"crates/srccrate/src/lib.rs": "pub fn helper() {}\n",
		"crates/dstcrate/Cargo.toml": "[package]\nname = \"dstcrate\"\nversion = \"0.1.0\"\n\n[dependencies]\nbar = \"2.0\"\n",
		"crates/dstcrate/src/lib.rs": "pub fn run() {}\n",
		"crates/other/src/lib.rs":    "use srccrate;\n",
	}
}

func TestTryConsolidationMergesDependenciesAndRewritesImporters(t *testing.T) {
	deps := newTestDeps(cargoWorkspaceFixture())
	plan, err, ok := tryConsolidation(context.Background(), deps, types.DefaultScope(), "crates/srccrate", "crates/dstcrate/src/srccrate")
	require.True(t, ok)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.True(t, plan.Metadata.IsConsolidation())

	dstManifestEdits := plan.TextEdits["crates/dstcrate/Cargo.toml"]
	require.NotEmpty(t, dstManifestEdits)
	assert.Contains(t, dstManifestEdits[0].NewText, "foo")

	importerEdits := plan.TextEdits["crates/other/src/lib.rs"]
	require.NotEmpty(t, importerEdits)
	assert.Contains(t, importerEdits[0].NewText, "dstcrate::src::srccrate")

	moveFound := false
	for _, op := range plan.FileOps {
		if op.Kind == types.FileOpMove && op.From == "crates/srccrate/src/lib.rs" {
			moveFound = true
			assert.Equal(t, "crates/dstcrate/src/srccrate/src/lib.rs", op.To)
		}
	}
	assert.True(t, moveFound)
}

// hyphenatedCargoWorkspaceFixture mirrors spec.md §8 scenario 4's worked
// example literally: crate directories named with hyphens (the idiomatic
// Cargo convention), whose manifests declare the same hyphenated `name`, and
// a consumer that already references the source crate through Cargo's
// mandatory hyphen-to-underscore module path (`use src_crate::f;`).
func hyphenatedCargoWorkspaceFixture() MapFS {
	return MapFS{
		"crates/src-crate/Cargo.toml": "[package]\nname = \"src-crate\"\nversion = \"0.1.0\"\n\n[dependencies]\nserde = \"1.0\"\n",
		"crates/src-crate/src/lib.rs": "pub fn f() {}\n",
		"crates/dst-crate/Cargo.toml": "[package]\nname = \"dst-crate\"\nversion = \"0.1.0\"\n",
		"crates/dst-crate/src/lib.rs": "pub fn run() {}\n",
		"crates/app/src/main.rs":      "use src_crate::f;\n",
	}
}

func TestTryConsolidationNormalizesHyphenatedCrateNames(t *testing.T) {
	deps := newTestDeps(hyphenatedCargoWorkspaceFixture())
	plan, err, ok := tryConsolidation(context.Background(), deps, types.DefaultScope(), "crates/src-crate", "crates/dst-crate/src/src-crate")
	require.True(t, ok)
	require.NoError(t, err)
	require.NotNil(t, plan)

	importerEdits := plan.TextEdits["crates/app/src/main.rs"]
	require.NotEmpty(t, importerEdits)
	assert.Contains(t, importerEdits[0].NewText, "dst_crate::src::src_crate::f")
}

func TestTryConsolidationFallsThroughWithoutOwningManifest(t *testing.T) {
	deps := newTestDeps(MapFS{"plainpkg/file.py": "x = 1\n"})
	plan, err, ok := tryConsolidation(context.Background(), deps, types.DefaultScope(), "plainpkg", "otherpkg/nested")
	assert.False(t, ok)
	assert.Nil(t, plan)
	assert.NoError(t, err)
}
