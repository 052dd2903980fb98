package lspmux

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func TestExtOf(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"go file", "pkg/foo/bar.go", ".go"},
		{"nested dotfile-looking dir", "a.b/bar.rs", ".rs"},
		{"no extension", "Makefile", ""},
		{"dotfile", ".gitignore", ".gitignore"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extOf(tt.path))
		})
	}
}

func TestUriToPathRoundTrip(t *testing.T) {
	path := "/workspace/pkg/foo.go"
	uri := pathToURI(path)
	assert.Equal(t, "file:///workspace/pkg/foo.go", uri)
	assert.Equal(t, path, uriToPath(uri))
}

func TestDecodeLocationsSingle(t *testing.T) {
	raw := json.RawMessage(`{"uri":"file:///a.go","range":{"start":{"line":1,"character":2},"end":{"line":1,"character":5}}}`)
	locs, err := decodeLocations(raw)
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, "/a.go", locs[0].Path)
	assert.Equal(t, types.Position{Line: 1, Character: 2}, locs[0].Range.Start)
}

func TestDecodeLocationsArray(t *testing.T) {
	raw := json.RawMessage(`[{"uri":"file:///a.go","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}},{"uri":"file:///b.go","range":{"start":{"line":2,"character":0},"end":{"line":2,"character":3}}}]`)
	locs, err := decodeLocations(raw)
	require.NoError(t, err)
	require.Len(t, locs, 2)
	assert.Equal(t, "/b.go", locs[1].Path)
}

func TestDecodeLocationsEmpty(t *testing.T) {
	locs, err := decodeLocations(nil)
	require.NoError(t, err)
	assert.Nil(t, locs)
}

func TestDecodeWorkspaceEdit(t *testing.T) {
	raw := json.RawMessage(`{"changes":{"file:///a.go":[{"range":{"start":{"line":0,"character":0},"end":{"line":0,"character":3}},"newText":"foo"}]}}`)
	we, err := decodeWorkspaceEdit(raw)
	require.NoError(t, err)
	require.Contains(t, we.Changes, "/a.go")
	assert.Equal(t, "foo", we.Changes["/a.go"][0].NewText)
	assert.False(t, we.IsEmpty())
}

func TestWorkspaceEditIsEmpty(t *testing.T) {
	assert.True(t, types.WorkspaceEdit{}.IsEmpty())
	assert.True(t, types.WorkspaceEdit{Changes: map[string][]types.TextEdit{"a": {}}}.IsEmpty())
}

func TestLspSymbolKind(t *testing.T) {
	assert.Equal(t, types.SymbolFunction, lspSymbolKind(12))
	assert.Equal(t, types.SymbolMethod, lspSymbolKind(6))
	assert.Equal(t, types.SymbolType, lspSymbolKind(5))
	assert.Equal(t, types.SymbolUnknown, lspSymbolKind(999))
}

func TestDecodeCallHierarchyCalls(t *testing.T) {
	raw := json.RawMessage(`[{"from":{"name":"caller","kind":12,"uri":"file:///a.go","range":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}},"selectionRange":{"start":{"line":0,"character":0},"end":{"line":0,"character":1}}},"fromRanges":[]}]`)
	items, err := decodeCallHierarchyCalls(raw, "from")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "caller", items[0].Name)
	assert.Equal(t, types.SymbolFunction, items[0].Kind)
}

func TestClientInterfaceSatisfiedByMultiplexer(t *testing.T) {
	var _ Client = NewMultiplexer(nil, nil)
}
