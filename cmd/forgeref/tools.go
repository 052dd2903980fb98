package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgeref/forgeref/pkg/dispatcher"
)

// toolDescription is one row of `tools`' static listing (spec.md §6.1's
// tool catalogue). The dispatcher itself has no notion of "list my
// tools" — this table exists only for the CLI/docs surface.
type toolDescription struct {
	Name    string
	Summary string
}

var toolCatalogue = []toolDescription{
	{"rename", "Rename a symbol, file, or directory and update references within scope."},
	{"move", "Move a file or directory (alias: relocate), rewriting imports that reference it."},
	{"delete", "Delete a file or directory and its dangling references (alias: prune)."},
	{"extract", "Extract a range into a new function, method, or module."},
	{"inline", "Inline a function/variable at its call sites."},
	{"reorder", "Reorder parameters, struct fields, or enum variants."},
	{"transform", "Apply a deterministic syntactic transform (e.g. sync<->async, getter/setter)."},
	{"workspace", "Manifest-level actions: create_package, extract_dependencies, find_replace, update_members, verify_project."},
}

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the tools the dispatcher accepts",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, t := range toolCatalogue {
			fmt.Fprintf(out, "%-10s %s\n", t.Name, t.Summary)
		}
		return nil
	},
}

var toolCmd = &cobra.Command{
	Use:   "tool <name> <json-arguments>",
	Short: "Invoke one tool call against the workspace and print its JSON response",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		name, rawArgs := args[0], args[1]

		var arguments map[string]any
		if err := json.Unmarshal([]byte(rawArgs), &arguments); err != nil {
			return newCLIError(exitInvalidArgs, fmt.Errorf("parsing json arguments: %w", err))
		}

		root, cfg, err := loadWorkspace()
		if err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		logger := newQuietLogger(root)
		defer logger.Close()

		d, closeLSP, err := buildDispatcher(root, cfg, logger)
		if err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		defer closeLSP()

		resp, callErr := d.Call(cmd.Context(), dispatcher.Request{Name: name, Arguments: arguments})
		if callErr != nil {
			return newCLIError(exitCodeForError(callErr), callErr)
		}

		encoded, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return newCLIError(exitInvalidArgs, err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(encoded))

		if code := exitCodeForResponse(resp); code != exitSuccess {
			return newCLIError(code, fmt.Errorf("execution did not fully succeed; see response above"))
		}
		return nil
	},
}

// exitCodeForError maps an error the dispatcher returned onto spec.md
// §6.2's exit codes. The dispatcher's own RPCCode mapping (internal/
// obserr) is JSON-RPC-shaped, not CLI-shaped, so this is a second,
// narrower projection the CLI owns for itself.
func exitCodeForError(err error) int {
	rerr, ok := err.(*dispatcher.RPCError)
	if !ok {
		return exitInvalidArgs
	}
	switch rerr.Code {
	case -32602:
		return exitInvalidArgs
	case -32001:
		return exitLSPUnavailable
	}
	if cat, _ := rerr.Data["category"].(string); cat == "rollback_failure" {
		return exitRollback
	}
	if cat, _ := rerr.Data["category"].(string); cat == "validation_failed" {
		return exitValidationFailed
	}
	return exitInvalidArgs
}

// exitCodeForResponse maps a successfully-returned (err == nil) Response
// onto spec.md §6.2's exit codes: a preview is always success, and an
// execution's own outcome fields decide the rest.
func exitCodeForResponse(resp *dispatcher.Response) int {
	if resp == nil || resp.Execution == nil {
		return exitSuccess
	}
	result := resp.Execution
	if result.Success {
		return exitSuccess
	}
	if result.RollbackApplied && !result.PartialRollback {
		if result.Validation != nil && (result.Validation.ExitCode != 0 || result.Validation.TimedOut) {
			return exitValidationFailed
		}
		return exitRollback
	}
	return exitInvalidArgs
}
