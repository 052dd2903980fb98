package checksum

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOfIsDeterministicAndSensitiveToContent(t *testing.T) {
	a := Of([]byte("hello"))
	b := Of([]byte("hello"))
	c := Of([]byte("hellp"))
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64) // hex-encoded SHA-256
}

func TestOfStringMatchesOf(t *testing.T) {
	assert.Equal(t, Of([]byte("content")), OfString("content"))
}

func TestOfFileReadsAndHashes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	got, err := OfFile(path)
	require.NoError(t, err)
	assert.Equal(t, OfString("payload"), got)
}

func TestOfFileMissingFileErrors(t *testing.T) {
	_, err := OfFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestVerifyMatchesCurrentContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0o644))

	ok, err := Verify(path, OfString("v1"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyDetectsStaleChecksum(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0o644))

	ok, err := Verify(path, OfString("v1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyAbsentHashTrueWhenFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.txt")
	ok, err := Verify(path, AbsentHash)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyAbsentHashFalseWhenFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("surprise"), 0o644))

	ok, err := Verify(path, AbsentHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVersionRegistryGetDefaultsToZero(t *testing.T) {
	r := NewVersionRegistry()
	assert.Equal(t, 0, r.Get("a.txt"))
}

func TestVersionRegistryBumpIncrementsMonotonically(t *testing.T) {
	r := NewVersionRegistry()
	assert.Equal(t, 1, r.Bump("a.txt"))
	assert.Equal(t, 2, r.Bump("a.txt"))
	assert.Equal(t, 2, r.Get("a.txt"))
}

func TestVersionRegistryForgetRemovesPath(t *testing.T) {
	r := NewVersionRegistry()
	r.Bump("a.txt")
	r.Forget("a.txt")
	assert.Equal(t, 0, r.Get("a.txt"))
}

func TestVersionRegistryRenamePreservesVersion(t *testing.T) {
	r := NewVersionRegistry()
	r.Bump("old.txt")
	r.Bump("old.txt")
	r.Rename("old.txt", "new.txt")
	assert.Equal(t, 0, r.Get("old.txt"))
	assert.Equal(t, 2, r.Get("new.txt"))
}

func TestVersionRegistryIsolatedBetweenInstances(t *testing.T) {
	r1 := NewVersionRegistry()
	r2 := NewVersionRegistry()
	r1.Bump("a.txt")
	assert.Equal(t, 0, r2.Get("a.txt"))
}
