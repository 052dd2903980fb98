package main

import (
	"fmt"
	"os/exec"

	"github.com/spf13/cobra"
)

// doctorCmd sanity-checks a workspace the way the teacher's `ledit`
// validates its own environment before running: configuration loads,
// each configured language server's command resolves on PATH, and git is
// available (several planners shell out to it for consolidation moves).
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the workspace configuration and language server availability",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, cfg, err := loadWorkspace()
		if err != nil {
			return newCLIError(exitInvalidArgs, fmt.Errorf("loading configuration: %w", err))
		}
		out := cmd.OutOrStdout()
		sc := newStatusColor(out)

		if _, err := exec.LookPath("git"); err != nil {
			sc.warnf(out, "warn: git not found on PATH; directory moves across manifests may be limited\n")
		} else {
			sc.okf(out, "ok: git available\n")
		}

		if len(cfg.Servers) == 0 {
			sc.warnf(out, "warn: no language servers configured; LSP-backed answers (references, rename-by-symbol) are unavailable\n")
			return nil
		}

		var unavailable []string
		for _, s := range cfg.Servers {
			if _, err := exec.LookPath(s.Command); err != nil {
				unavailable = append(unavailable, s.Command)
				sc.failf(out, "fail: language server command %q not found (extensions %v)\n", s.Command, s.Extensions)
				continue
			}
			sc.okf(out, "ok: language server command %q found (extensions %v)\n", s.Command, s.Extensions)
		}
		if len(unavailable) > 0 {
			return newCLIError(exitLSPUnavailable, fmt.Errorf("%d configured language server command(s) not on PATH: %v", len(unavailable), unavailable))
		}
		return nil
	},
}
