package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runCLI invokes rootCmd with args, resetting workspaceRoot and the
// command's output buffers so tests don't leak state into one another —
// rootCmd and workspaceRoot are package-level (cobra's own convention,
// mirrored from the teacher's cmd/root.go), so every test must reset them.
func runCLI(t *testing.T, args ...string) (stdout, stderr string, exitCode int) {
	t.Helper()
	workspaceRoot = "."
	var outBuf, errBuf bytes.Buffer
	rootCmd.SetOut(&outBuf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetArgs(args)
	exitCode = Execute()
	return outBuf.String(), errBuf.String(), exitCode
}

func TestSetupWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()
	stdout, _, code := runCLI(t, "setup", "--workspace", dir)
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "wrote")

	data, err := os.ReadFile(filepath.Join(dir, ".forgeref", "config.json"))
	require.NoError(t, err)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(data, &cfg))
	assert.Equal(t, "standard", cfg["defaultScope"])
}

func TestSetupIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	_, _, code := runCLI(t, "setup", "--workspace", dir)
	require.Equal(t, exitSuccess, code)

	stdout, _, code := runCLI(t, "setup", "--workspace", dir)
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "already exists")
}

func TestDoctorReportsGitAndNoServersWarning(t *testing.T) {
	dir := t.TempDir()
	stdout, _, code := runCLI(t, "doctor", "--workspace", dir)
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "no language servers configured")
}

func TestToolsListsCatalogue(t *testing.T) {
	stdout, _, code := runCLI(t, "tools")
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "rename")
	assert.Contains(t, stdout, "workspace")
}

func TestDocsPrintsExitCodeLegend(t *testing.T) {
	stdout, _, code := runCLI(t, "docs")
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "Exit codes:")
	assert.Contains(t, stdout, "dryRun")
}

func TestToolRejectsInvalidJSONArguments(t *testing.T) {
	dir := t.TempDir()
	_, _, code := runCLI(t, "tool", "rename", "{not json", "--workspace", dir)
	assert.Equal(t, exitInvalidArgs, code)
}

func TestToolRejectsUnknownToolName(t *testing.T) {
	dir := t.TempDir()
	_, _, code := runCLI(t, "tool", "not-a-real-tool", "{}", "--workspace", dir)
	assert.NotEqual(t, exitSuccess, code)
}

func TestToolRenameDryRunPreviewsWithoutWriting(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("VALUE = 1\n"), 0o644))

	stdout, _, code := runCLI(t, "tool", "rename",
		`{"targetKind":"file","path":"a.py","newName":"b.py","options":{"dryRun":true}}`,
		"--workspace", dir)
	require.Equal(t, exitSuccess, code)
	assert.Contains(t, stdout, "planKind")

	// A dry run must never touch the filesystem.
	assert.FileExists(t, filepath.Join(dir, "a.py"))
	assert.NoFileExists(t, filepath.Join(dir, "b.py"))
}
