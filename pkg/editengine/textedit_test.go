package editengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeref/forgeref/pkg/types"
)

func rng(startLine, startChar, endLine, endChar int) types.Range {
	return types.Range{
		Start: types.Position{Line: startLine, Character: startChar},
		End:   types.Position{Line: endLine, Character: endChar},
	}
}

func TestApplyTextEditsSingleLineReplace(t *testing.T) {
	content := "hello world\n"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 6, 0, 11), NewText: "there"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there\n", out)
}

func TestApplyTextEditsMultiLineReplace(t *testing.T) {
	content := "line one\nline two\nline three\n"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 5, 1, 4), NewText: "ONE"},
	})
	require.NoError(t, err)
	assert.Equal(t, "line ONE two\nline three\n", out)
}

func TestApplyTextEditsDeletion(t *testing.T) {
	content := "keep\ndrop\nkeep2\n"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(1, 0, 2, 0), NewText: ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "keep\nkeep2\n", out)
}

func TestApplyTextEditsMultipleNonOverlappingAppliedInOrder(t *testing.T) {
	content := "aaa bbb ccc\n"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 0, 0, 3), NewText: "XXX"},
		{Path: "a.txt", Range: rng(0, 8, 0, 11), NewText: "ZZZ"},
	})
	require.NoError(t, err)
	assert.Equal(t, "XXX bbb ZZZ\n", out)
}

func TestApplyTextEditsUTF16CharacterOffsets(t *testing.T) {
	// "héllo\n" — é is one rune but still one UTF-16 code unit (BMP), so
	// character offsets line up with rune indices here; the surrogate-pair
	// case is exercised separately below with an astral character.
	content := "héllo\n"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 1, 0, 2), NewText: "e"},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello\n", out)
}

func TestApplyTextEditsUTF16SurrogatePair(t *testing.T) {
	// U+1F600 (😀) encodes as a UTF-16 surrogate pair (2 code units), so
	// the emoji itself spans character offsets [1,3) on this line.
	content := "a😀b\n"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 1, 0, 3), NewText: "X"},
	})
	require.NoError(t, err)
	assert.Equal(t, "aXb\n", out)
}

func TestApplyTextEditsPreservesCRLF(t *testing.T) {
	content := "one\r\ntwo\r\n"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 0, 0, 3), NewText: "ONE"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ONE\r\ntwo\r\n", out)
}

func TestApplyTextEditsNoTrailingNewlinePreserved(t *testing.T) {
	content := "no newline at end"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 0, 0, 2), NewText: "NO"},
	})
	require.NoError(t, err)
	assert.Equal(t, "NO newline at end", out)
}

func TestApplyTextEditsLineOutOfBoundsErrors(t *testing.T) {
	content := "only one line\n"
	_, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(5, 0, 5, 1), NewText: "x"},
	})
	require.Error(t, err)
}

func TestApplyTextEditsCharacterOutOfBoundsErrors(t *testing.T) {
	content := "short\n"
	_, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 0, 0, 999), NewText: "x"},
	})
	require.Error(t, err)
}

func TestApplyTextEditsEmptyEditsIsNoop(t *testing.T) {
	content := "unchanged\ncontent\n"
	out, err := ApplyTextEdits(content, nil)
	require.NoError(t, err)
	assert.Equal(t, content, out)
}

func TestApplyTextEditsInsertionAtEmptyRange(t *testing.T) {
	content := "ac\n"
	out, err := ApplyTextEdits(content, []types.TextEdit{
		{Path: "a.txt", Range: rng(0, 1, 0, 1), NewText: "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "abc\n", out)
}
