package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	_ "github.com/forgeref/forgeref/pkg/plugins/builtin"

	"github.com/forgeref/forgeref/internal/config"
	"github.com/forgeref/forgeref/internal/obslog"
	"github.com/forgeref/forgeref/pkg/checksum"
	"github.com/forgeref/forgeref/pkg/dispatcher"
	"github.com/forgeref/forgeref/pkg/editengine"
	"github.com/forgeref/forgeref/pkg/lspmux"
	"github.com/forgeref/forgeref/pkg/planner"
	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/scope"
	"github.com/forgeref/forgeref/pkg/types"
)

// Exit codes of spec.md §6.2.
const (
	exitSuccess          = 0
	exitInvalidArgs      = 2
	exitLSPUnavailable   = 3
	exitRollback         = 4
	exitValidationFailed = 5
)

var workspaceRoot string

var rootCmd = &cobra.Command{
	Use:   "forgeref",
	Short: "IDE-quality code-intelligence and refactoring core",
	Long: `forgeref wraps rename/move/delete/extract/inline/reorder/transform and
workspace-level refactoring tools behind a thin CLI. Every command here
maps directly onto a pkg/dispatcher call; the CLI adds no business logic
of its own (spec.md §6.2).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&workspaceRoot, "workspace", ".", "workspace root directory")
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(toolCmd)
	rootCmd.AddCommand(docsCmd)
}

// Execute runs the CLI and returns the process exit code, instead of
// calling os.Exit itself, so main stays a one-liner and tests can call
// Execute without terminating the test binary.
func Execute() int {
	cmd, err := rootCmd.ExecuteC()
	if err == nil {
		return exitSuccess
	}
	if ce, ok := err.(*cliError); ok {
		fmt.Fprintln(os.Stderr, ce.Error())
		return ce.code
	}
	fmt.Fprintln(cmd.ErrOrStderr(), err)
	return exitInvalidArgs
}

// cliError pairs an error message with the exit code it must produce,
// since cobra itself only ever signals failure, not which of spec.md
// §6.2's five exit codes applies.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }
func (e *cliError) Unwrap() error { return e.err }

func newCLIError(code int, err error) *cliError { return &cliError{code: code, err: err} }

// loadWorkspace resolves workspaceRoot to an absolute path and loads its
// layered configuration (internal/config, spec.md §6.3).
func loadWorkspace() (string, *config.Config, error) {
	abs, err := absWorkspace()
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(abs)
	if err != nil {
		return "", nil, err
	}
	return abs, cfg, nil
}

func absWorkspace() (string, error) {
	return filepath.Abs(workspaceRoot)
}

// newQuietLogger builds a Logger that writes only to the rotating file —
// used by `tool`, whose stdout is the JSON response and must not be
// interleaved with colored warning/error lines.
func newQuietLogger(root string) *obslog.Logger {
	return obslog.NewLogger(obslog.Options{Dir: filepath.Join(root, ".forgeref"), Quiet: true})
}

// buildLSPClient builds an LSP multiplexer from cfg.Servers, or returns a
// nil Client (and a no-op closer) when the workspace configures none —
// refactor tools still work without one, just with PluginUnsupported/
// LspUnavailable warnings instead of LSP-backed answers.
func buildLSPClient(root string, cfg *config.Config, logger *obslog.Logger) (lspmux.Client, func(), error) {
	if len(cfg.Servers) == 0 {
		return nil, func() {}, nil
	}
	configs := make([]lspmux.ServerConfig, len(cfg.Servers))
	for i, s := range cfg.Servers {
		rootDir := s.RootDir
		if rootDir == "" {
			rootDir = root
		}
		configs[i] = lspmux.ServerConfig{
			Extensions:      s.Extensions,
			Command:         s.Command,
			Args:            s.Args,
			Env:             s.Env,
			WorkspaceDir:    rootDir,
			RestartInterval: s.RestartInterval,
		}
	}
	mux := lspmux.NewMultiplexer(configs, logger)
	closer := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mux.StopAll(ctx)
	}
	return mux, closer, nil
}

// buildDispatcher assembles a real, OS-backed Dispatcher for root: the
// full built-in plugin registry, a scope.Engine reading root's gitignore
// rules, the OS filesystem, and — when cfg names at least one language
// server — an LSP multiplexer. No transport wraps this Dispatcher; `tool`
// calls it in-process, exactly as any other embedding transport would
// (SPEC_FULL.md §5 "no transport lives here").
func buildDispatcher(root string, cfg *config.Config, logger *obslog.Logger) (*dispatcher.Dispatcher, func(), error) {
	registry := plugins.NewRegistry()
	scopeEngine := scope.NewEngine(root)
	fs := planner.NewOSFileSystem(root)

	lspClient, closeLSP, err := buildLSPClient(root, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	deps := planner.Deps{
		Registry: registry,
		LSP:      lspClient,
		Scope:    scopeEngine,
		FS:       fs,
	}
	engine := editengine.NewEngine(root, checksum.NewVersionRegistry())
	defaultScope := types.Scope{Kind: types.ScopeKind(cfg.DefaultScope)}
	if defaultScope.Kind == "" {
		defaultScope = types.DefaultScope()
	}
	d := dispatcher.New(deps, engine, defaultScope, cfg.Security.ScanSecrets)
	return d, closeLSP, nil
}
