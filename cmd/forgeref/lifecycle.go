package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/forgeref/forgeref/internal/config"
	"github.com/forgeref/forgeref/internal/obslog"
	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/editengine"
)

// runState is the persisted record of a `start`ed background process,
// grounded on the teacher's orchestration state file
// (cmd/process_state.go's `.ledit/orchestration_state.json`) but for
// process lifecycle rather than an orchestration plan. No transport lives
// behind this process (spec.md §1 non-goal); what `start` keeps warm is
// the LSP multiplexer's language-server subprocesses, so later `tool`
// invocations do not pay LSP cold-start latency.
type runState struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
}

func runStatePath(root string) string {
	return filepath.Join(root, ".forgeref", "run.json")
}

const serveHiddenFlag = "__serve"

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a background process that keeps configured language servers warm",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, cfg, err := loadWorkspace()
		if err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		if st, err := readRunState(root); err == nil && processAlive(st.PID) {
			fmt.Fprintf(cmd.OutOrStdout(), "already running (pid %d)\n", st.PID)
			return nil
		}
		if len(cfg.Servers) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no language servers configured; nothing to keep warm, but recording as started")
		}

		self, err := os.Executable()
		if err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		child := exec.Command(self, serveHiddenFlag, "--workspace", root)
		if err := child.Start(); err != nil {
			return newCLIError(exitInvalidArgs, fmt.Errorf("starting background process: %w", err))
		}
		st := runState{PID: child.Process.Pid, StartedAt: time.Now()}
		if err := writeRunState(root, st); err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "started (pid %d)\n", st.PID)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background process started by `start`",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := absWorkspace()
		if err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		st, err := readRunState(root)
		if err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "not running")
			return nil
		}
		if process, err := os.FindProcess(st.PID); err == nil {
			_ = process.Signal(syscall.SIGTERM)
		}
		_ = os.Remove(runStatePath(root))
		fmt.Fprintf(cmd.OutOrStdout(), "stopped (pid %d)\n", st.PID)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the background process is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := absWorkspace()
		if err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		out := cmd.OutOrStdout()
		sc := newStatusColor(out)
		st, err := readRunState(root)
		if err != nil || !processAlive(st.PID) {
			sc.warnf(out, "not running\n")
			return nil
		}
		sc.okf(out, "running (pid %d, started %s)\n", st.PID, st.StartedAt.Format(time.RFC3339))
		return nil
	},
}

func readRunState(root string) (runState, error) {
	data, err := os.ReadFile(runStatePath(root))
	if err != nil {
		return runState{}, err
	}
	var st runState
	if err := json.Unmarshal(data, &st); err != nil {
		return runState{}, err
	}
	return st, nil
}

func writeRunState(root string, st runState) error {
	if err := os.MkdirAll(filepath.Dir(runStatePath(root)), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(runStatePath(root), data, 0o644)
}

func processAlive(pid int) bool {
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = process.Signal(syscall.Signal(0))
	return err == nil || !errors.Is(err, os.ErrProcessDone)
}

// serveCmd is the hidden subcommand `start` re-execs itself into: it
// builds the LSP multiplexer so the language server subprocesses start
// and stay warm, then blocks until terminated. It is never invoked
// directly by a user.
var serveCmd = &cobra.Command{
	Use:    serveHiddenFlag,
	Hidden: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := absWorkspace()
		if err != nil {
			return err
		}
		cfg, err := config.Load(root)
		if err != nil {
			return err
		}
		logger := obslog.NewLogger(obslog.Options{Dir: filepath.Join(root, ".forgeref")})
		defer logger.Close()

		lspClient, closeLSP, err := buildLSPClient(root, cfg, logger)
		if err != nil {
			return err
		}
		defer closeLSP()

		ctx, cancelWatch := context.WithCancel(context.Background())
		defer cancelWatch()
		versions := checksum.NewVersionRegistry()
		watcher, err := editengine.NewWatcher(root, versions, func(path string) {
			if lspClient == nil {
				return
			}
			data, readErr := os.ReadFile(filepath.Join(root, path))
			if readErr != nil {
				return
			}
			_ = lspClient.DidChange(path, string(data))
		})
		if err != nil {
			logger.Warnf("workspace watcher unavailable: %v", err)
		} else {
			if err := watcher.Start(ctx); err != nil {
				logger.Warnf("workspace watcher failed to start: %v", err)
			}
			defer watcher.Close()
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM, syscall.SIGINT)
		<-sig
		return nil
	},
}
