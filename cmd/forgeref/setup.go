package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/forgeref/forgeref/internal/config"
)

// setupCmd initializes a workspace's persisted configuration, grounded on
// the teacher's `ledit init` (writes a project-local config.json rather
// than prompting interactively, per spec.md §6.3).
var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write a default .forgeref/config.json in the workspace",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := absWorkspace()
		if err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		path := config.ConfigPath(root)
		if _, err := os.Stat(path); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s already exists; leaving it unchanged\n", path)
			return nil
		}
		cfg := config.Default()
		cfg.WorkspaceRoot = root
		if err := config.Save(cfg); err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Join(root, ".forgeref", "config.json"))
		return nil
	},
}
