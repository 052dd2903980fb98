package lspmux

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forgeref/forgeref/internal/obserr"
	"github.com/forgeref/forgeref/internal/obslog"
	"github.com/forgeref/forgeref/pkg/types"
)

// Multiplexer owns the pool of language server child processes, one per
// configured language, addressed by file extension (spec.md §4.2). It is
// constructed explicitly and passed in, never a package-global singleton
// (spec.md §9 "Global state"), so tests get an independent pool.
type Multiplexer struct {
	byExt   map[string]*server
	servers []*server
	logger  *obslog.Logger
}

// NewMultiplexer builds a pool from configs; no subprocess is started until
// the first request that needs it (lazy start per spec.md §4.2).
func NewMultiplexer(configs []ServerConfig, logger *obslog.Logger) *Multiplexer {
	m := &Multiplexer{byExt: make(map[string]*server), logger: logger}
	for _, cfg := range configs {
		s := newServer(cfg, logger)
		m.servers = append(m.servers, s)
		for _, ext := range cfg.Extensions {
			m.byExt[ext] = s
		}
	}
	return m
}

func (m *Multiplexer) serverFor(path string) (*server, error) {
	ext := extOf(path)
	s, ok := m.byExt[ext]
	if !ok {
		return nil, obserr.New(obserr.CategoryLSP, "no language server configured for "+ext)
	}
	return s, nil
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '.' {
			return path[i:]
		}
		if path[i] == '/' {
			break
		}
	}
	return ""
}

// deadlineCtx derives a context with the given timeout, falling back to the
// owning server's configured default when timeout is zero.
func deadlineCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// request is the shared "ensure ready, then call" path every capability
// method goes through. An LSP-layer error here is always recoverable by
// the planner as a warning (spec.md §4.2 Failure model); it is this
// function's caller's job to downgrade, never this function's.
func (m *Multiplexer) request(ctx context.Context, path string, timeout time.Duration, method string, params any) (json.RawMessage, error) {
	s, err := m.serverFor(path)
	if err != nil {
		return nil, err
	}
	cctx, cancel := deadlineCtx(ctx, timeout)
	defer cancel()
	if err := s.ensureReady(cctx); err != nil {
		return nil, err
	}
	return s.call(cctx, method, params)
}

// Open notifies the owning server that path is now open with the given
// contents, starting it if necessary.
func (m *Multiplexer) Open(ctx context.Context, path, text string) error {
	s, err := m.serverFor(path)
	if err != nil {
		return err
	}
	if err := s.ensureReady(ctx); err != nil {
		return err
	}
	return s.open(path, text)
}

// Close notifies the owning server that path is no longer open.
func (m *Multiplexer) Close(path string) error {
	s, err := m.serverFor(path)
	if err != nil {
		return err
	}
	return s.close(path)
}

// DidChange notifies the owning server of path's new contents, called by
// the Edit Engine after every write so every open-document server's view
// stays consistent (spec.md §4.3 "re-notifies all open-document servers
// after each apply").
func (m *Multiplexer) DidChange(path, newText string) error {
	s, err := m.serverFor(path)
	if err != nil {
		return err
	}
	return s.didChange(path, newText)
}

func posParams(path string, pos types.Position) map[string]any {
	return map[string]any{
		"textDocument": map[string]any{"uri": pathToURI(path)},
		"position":     map[string]any{"line": pos.Line, "character": pos.Character},
	}
}

func decodeLocations(raw json.RawMessage) ([]types.Location, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var single struct {
		URI   string `json:"uri"`
		Range struct {
			Start struct{ Line, Character int } `json:"start"`
			End   struct{ Line, Character int } `json:"end"`
		} `json:"range"`
	}
	if err := json.Unmarshal(raw, &single); err == nil && single.URI != "" {
		return []types.Location{lspLocation(single.URI, single.Range.Start.Line, single.Range.Start.Character, single.Range.End.Line, single.Range.End.Character)}, nil
	}
	var list []struct {
		URI   string `json:"uri"`
		Range struct {
			Start struct{ Line, Character int } `json:"start"`
			End   struct{ Line, Character int } `json:"end"`
		} `json:"range"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, obserr.Wrap(obserr.CategoryLSP, "decode location response", err)
	}
	out := make([]types.Location, 0, len(list))
	for _, l := range list {
		out = append(out, lspLocation(l.URI, l.Range.Start.Line, l.Range.Start.Character, l.Range.End.Line, l.Range.End.Character))
	}
	return out, nil
}

func lspLocation(uri string, startLine, startChar, endLine, endChar int) types.Location {
	return types.Location{
		Path: uriToPath(uri),
		Range: types.Range{
			Start: types.Position{Line: startLine, Character: startChar},
			End:   types.Position{Line: endLine, Character: endChar},
		},
	}
}

func uriToPath(uri string) string {
	const prefix = "file://"
	if len(uri) >= len(prefix) && uri[:len(prefix)] == prefix {
		return uri[len(prefix):]
	}
	return uri
}

// Definition resolves textDocument/definition.
func (m *Multiplexer) Definition(ctx context.Context, path string, pos types.Position) ([]types.Location, error) {
	raw, err := m.request(ctx, path, 5*time.Second, "textDocument/definition", posParams(path, pos))
	if err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// TypeDefinition resolves textDocument/typeDefinition.
func (m *Multiplexer) TypeDefinition(ctx context.Context, path string, pos types.Position) ([]types.Location, error) {
	raw, err := m.request(ctx, path, 5*time.Second, "textDocument/typeDefinition", posParams(path, pos))
	if err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// Implementations resolves textDocument/implementation.
func (m *Multiplexer) Implementations(ctx context.Context, path string, pos types.Position) ([]types.Location, error) {
	raw, err := m.request(ctx, path, 5*time.Second, "textDocument/implementation", posParams(path, pos))
	if err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// References resolves textDocument/references. Cross-file searches get the
// longer, 30s default per spec.md §4.2's deadline table.
func (m *Multiplexer) References(ctx context.Context, path string, pos types.Position, includeDeclaration bool) ([]types.Location, error) {
	params := posParams(path, pos)
	params["context"] = map[string]any{"includeDeclaration": includeDeclaration}
	raw, err := m.request(ctx, path, 30*time.Second, "textDocument/references", params)
	if err != nil {
		return nil, err
	}
	return decodeLocations(raw)
}

// SymbolInfo resolves textDocument/hover and returns its plain-text
// contents, this mux's stand-in for spec.md §4.2's symbol_info.
func (m *Multiplexer) SymbolInfo(ctx context.Context, path string, pos types.Position) (string, error) {
	raw, err := m.request(ctx, path, 5*time.Second, "textDocument/hover", posParams(path, pos))
	if err != nil {
		return "", err
	}
	if len(raw) == 0 {
		return "", nil
	}
	var hover struct {
		Contents json.RawMessage `json:"contents"`
	}
	if err := json.Unmarshal(raw, &hover); err != nil {
		return "", obserr.Wrap(obserr.CategoryLSP, "decode hover response", err)
	}
	var asString string
	if json.Unmarshal(hover.Contents, &asString) == nil {
		return asString, nil
	}
	var asMarkup struct {
		Value string `json:"value"`
	}
	if json.Unmarshal(hover.Contents, &asMarkup) == nil {
		return asMarkup.Value, nil
	}
	return string(hover.Contents), nil
}

// Diagnostics returns the most recently published diagnostics for path.
// Real LSP servers push these via textDocument/publishDiagnostics
// notifications rather than a pull request; a production mux would cache
// the last notification per path. This method issues the pull-model
// equivalent (textDocument/diagnostic, LSP 3.17+) for servers that support
// it, which keeps the capability-narrowed surface request/response shaped
// like every other method here instead of introducing a second,
// notification-driven code path.
func (m *Multiplexer) Diagnostics(ctx context.Context, path string) ([]types.Diagnostic, error) {
	raw, err := m.request(ctx, path, 10*time.Second, "textDocument/diagnostic", map[string]any{
		"textDocument": map[string]any{"uri": pathToURI(path)},
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		Items []struct {
			Range struct {
				Start struct{ Line, Character int } `json:"start"`
				End   struct{ Line, Character int } `json:"end"`
			} `json:"range"`
			Severity int    `json:"severity"`
			Code     any    `json:"code"`
			Source   string `json:"source"`
			Message  string `json:"message"`
		} `json:"items"`
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, obserr.Wrap(obserr.CategoryLSP, "decode diagnostics response", err)
	}
	out := make([]types.Diagnostic, 0, len(result.Items))
	for _, it := range result.Items {
		sev := types.SeverityInformation
		if it.Severity > 0 {
			sev = types.DiagnosticSeverity(it.Severity)
		}
		out = append(out, types.Diagnostic{
			Range: types.Range{
				Start: types.Position{Line: it.Range.Start.Line, Character: it.Range.Start.Character},
				End:   types.Position{Line: it.Range.End.Line, Character: it.Range.End.Character},
			},
			Severity: sev,
			Code:     toString(it.Code),
			Source:   it.Source,
			Message:  it.Message,
		})
	}
	return out, nil
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return fmt.Sprintf("%d", int64(t))
	default:
		return ""
	}
}

// WorkspaceSymbols fans a workspace/symbol query out to every Ready server
// concurrently, bounded by golang.org/x/sync/errgroup (SPEC_FULL.md's
// concurrency table: "concurrent per-server requests fanned out with
// bounded concurrency"). One server's error becomes a partial-results
// omission, not a failure of the whole query — consistent with spec.md
// §4.2's failure model that an LSP error never aborts the caller.
func (m *Multiplexer) WorkspaceSymbols(ctx context.Context, query string) ([]types.SymbolInformation, error) {
	type result struct {
		symbols []types.SymbolInformation
	}
	results := make([]result, len(m.servers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for i, s := range m.servers {
		i, s := i, s
		g.Go(func() error {
			if err := s.ensureReady(gctx); err != nil {
				return nil // downgrade: this server just contributes nothing
			}
			cctx, cancel := context.WithTimeout(gctx, 10*time.Second)
			defer cancel()
			raw, err := s.call(cctx, "workspace/symbol", map[string]any{"query": query})
			if err != nil {
				return nil
			}
			results[i].symbols = decodeSymbols(raw)
			return nil
		})
	}
	_ = g.Wait() // errors already downgraded above; nothing to propagate

	var out []types.SymbolInformation
	for _, r := range results {
		out = append(out, r.symbols...)
	}
	return out, nil
}

func decodeSymbols(raw json.RawMessage) []types.SymbolInformation {
	var list []struct {
		Name          string `json:"name"`
		Kind          int    `json:"kind"`
		ContainerName string `json:"containerName"`
		Location      struct {
			URI   string `json:"uri"`
			Range struct {
				Start struct{ Line, Character int } `json:"start"`
				End   struct{ Line, Character int } `json:"end"`
			} `json:"range"`
		} `json:"location"`
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	out := make([]types.SymbolInformation, 0, len(list))
	for _, s := range list {
		out = append(out, types.SymbolInformation{
			Name:          s.Name,
			Kind:          lspSymbolKind(s.Kind),
			ContainerName: s.ContainerName,
			Location:      lspLocation(s.Location.URI, s.Location.Range.Start.Line, s.Location.Range.Start.Character, s.Location.Range.End.Line, s.Location.Range.End.Character),
		})
	}
	return out
}

// lspSymbolKind maps a handful of LSP SymbolKind integers onto this
// module's own, much smaller SymbolKind enum; LSP has ~26 kinds and
// pkg/types only distinguishes the ones planners branch on.
func lspSymbolKind(k int) types.SymbolKind {
	switch k {
	case 6, 9: // Method, Constructor
		return types.SymbolMethod
	case 12: // Function
		return types.SymbolFunction
	case 5, 10, 11, 23: // Class, Enum, Interface, Struct
		return types.SymbolType
	case 13: // Variable
		return types.SymbolVariable
	case 14: // Constant
		return types.SymbolConstant
	case 2, 3, 4: // Module, Namespace, Package
		return types.SymbolModule
	default:
		return types.SymbolUnknown
	}
}

// PrepareRename resolves textDocument/prepareRename, validating that pos
// names a renameable symbol before RenameEdits is attempted (spec.md §4.4
// rename planner: "call prepare_rename... then rename_edits").
func (m *Multiplexer) PrepareRename(ctx context.Context, path string, pos types.Position) (*types.PrepareRenameResult, error) {
	raw, err := m.request(ctx, path, 5*time.Second, "textDocument/prepareRename", posParams(path, pos))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, obserr.New(obserr.CategoryLSP, "position is not a renameable symbol")
	}
	var result struct {
		Range struct {
			Start struct{ Line, Character int } `json:"start"`
			End   struct{ Line, Character int } `json:"end"`
		} `json:"range"`
		Placeholder string `json:"placeholder"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, obserr.Wrap(obserr.CategoryLSP, "decode prepareRename response", err)
	}
	return &types.PrepareRenameResult{
		Range: types.Range{
			Start: types.Position{Line: result.Range.Start.Line, Character: result.Range.Start.Character},
			End:   types.Position{Line: result.Range.End.Line, Character: result.Range.End.Character},
		},
		Placeholder: result.Placeholder,
	}, nil
}

// RenameEdits resolves textDocument/rename into a WorkspaceEdit the
// rename planner merges directly into its EditPlan.
func (m *Multiplexer) RenameEdits(ctx context.Context, path string, pos types.Position, newName string) (types.WorkspaceEdit, error) {
	params := posParams(path, pos)
	params["newName"] = newName
	raw, err := m.request(ctx, path, 30*time.Second, "textDocument/rename", params)
	if err != nil {
		return types.WorkspaceEdit{}, err
	}
	return decodeWorkspaceEdit(raw)
}

func decodeWorkspaceEdit(raw json.RawMessage) (types.WorkspaceEdit, error) {
	var result struct {
		Changes map[string][]struct {
			Range struct {
				Start struct{ Line, Character int } `json:"start"`
				End   struct{ Line, Character int } `json:"end"`
			} `json:"range"`
			NewText string `json:"newText"`
		} `json:"changes"`
	}
	if len(raw) == 0 {
		return types.WorkspaceEdit{}, nil
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return types.WorkspaceEdit{}, obserr.Wrap(obserr.CategoryLSP, "decode workspace edit", err)
	}
	we := types.WorkspaceEdit{Changes: make(map[string][]types.TextEdit)}
	for uri, edits := range result.Changes {
		path := uriToPath(uri)
		for _, e := range edits {
			we.Changes[path] = append(we.Changes[path], types.TextEdit{
				Path: path,
				Range: types.Range{
					Start: types.Position{Line: e.Range.Start.Line, Character: e.Range.Start.Character},
					End:   types.Position{Line: e.Range.End.Line, Character: e.Range.End.Character},
				},
				NewText: e.NewText,
			})
		}
	}
	return we, nil
}

// CodeActions resolves textDocument/codeAction, used by the transform
// planner when no plugin offers the requested kind directly.
func (m *Multiplexer) CodeActions(ctx context.Context, path string, r types.Range) ([]types.CodeAction, error) {
	params := map[string]any{
		"textDocument": map[string]any{"uri": pathToURI(path)},
		"range": map[string]any{
			"start": map[string]any{"line": r.Start.Line, "character": r.Start.Character},
			"end":   map[string]any{"line": r.End.Line, "character": r.End.Character},
		},
		"context": map[string]any{"diagnostics": []any{}},
	}
	raw, err := m.request(ctx, path, 10*time.Second, "textDocument/codeAction", params)
	if err != nil {
		return nil, err
	}
	var list []struct {
		Title string          `json:"title"`
		Kind  string          `json:"kind"`
		Edit  json.RawMessage `json:"edit"`
	}
	if len(raw) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, obserr.Wrap(obserr.CategoryLSP, "decode code actions", err)
	}
	out := make([]types.CodeAction, 0, len(list))
	for _, a := range list {
		edit, _ := decodeWorkspaceEdit(a.Edit)
		out = append(out, types.CodeAction{Title: a.Title, Kind: a.Kind, Edit: edit})
	}
	return out, nil
}

// CallHierarchyPrepare resolves textDocument/prepareCallHierarchy.
func (m *Multiplexer) CallHierarchyPrepare(ctx context.Context, path string, pos types.Position) ([]types.CallHierarchyItem, error) {
	raw, err := m.request(ctx, path, 5*time.Second, "textDocument/prepareCallHierarchy", posParams(path, pos))
	if err != nil {
		return nil, err
	}
	return decodeCallHierarchyItems(raw)
}

// CallHierarchyIncoming resolves callHierarchy/incomingCalls for item.
func (m *Multiplexer) CallHierarchyIncoming(ctx context.Context, item types.CallHierarchyItem) ([]types.CallHierarchyItem, error) {
	raw, err := m.request(ctx, item.Path, 10*time.Second, "callHierarchy/incomingCalls", map[string]any{"item": callHierarchyItemParam(item)})
	if err != nil {
		return nil, err
	}
	return decodeCallHierarchyCalls(raw, "from")
}

// CallHierarchyOutgoing resolves callHierarchy/outgoingCalls for item.
func (m *Multiplexer) CallHierarchyOutgoing(ctx context.Context, item types.CallHierarchyItem) ([]types.CallHierarchyItem, error) {
	raw, err := m.request(ctx, item.Path, 10*time.Second, "callHierarchy/outgoingCalls", map[string]any{"item": callHierarchyItemParam(item)})
	if err != nil {
		return nil, err
	}
	return decodeCallHierarchyCalls(raw, "to")
}

func callHierarchyItemParam(item types.CallHierarchyItem) map[string]any {
	return map[string]any{
		"name": item.Name,
		"kind": 12,
		"uri":  pathToURI(item.Path),
		"range": map[string]any{
			"start": map[string]any{"line": item.Range.Start.Line, "character": item.Range.Start.Character},
			"end":   map[string]any{"line": item.Range.End.Line, "character": item.Range.End.Character},
		},
		"selectionRange": map[string]any{
			"start": map[string]any{"line": item.SelectionRange.Start.Line, "character": item.SelectionRange.Start.Character},
			"end":   map[string]any{"line": item.SelectionRange.End.Line, "character": item.SelectionRange.End.Character},
		},
	}
}

type rawCallHierarchyItem struct {
	Name  string `json:"name"`
	Kind  int    `json:"kind"`
	URI   string `json:"uri"`
	Range struct {
		Start struct{ Line, Character int } `json:"start"`
		End   struct{ Line, Character int } `json:"end"`
	} `json:"range"`
	SelectionRange struct {
		Start struct{ Line, Character int } `json:"start"`
		End   struct{ Line, Character int } `json:"end"`
	} `json:"selectionRange"`
}

func (r rawCallHierarchyItem) toItem() types.CallHierarchyItem {
	return types.CallHierarchyItem{
		Name: r.Name,
		Kind: lspSymbolKind(r.Kind),
		Path: uriToPath(r.URI),
		Range: types.Range{
			Start: types.Position{Line: r.Range.Start.Line, Character: r.Range.Start.Character},
			End:   types.Position{Line: r.Range.End.Line, Character: r.Range.End.Character},
		},
		SelectionRange: types.Range{
			Start: types.Position{Line: r.SelectionRange.Start.Line, Character: r.SelectionRange.Start.Character},
			End:   types.Position{Line: r.SelectionRange.End.Line, Character: r.SelectionRange.End.Character},
		},
	}
}

func decodeCallHierarchyItems(raw json.RawMessage) ([]types.CallHierarchyItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []rawCallHierarchyItem
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, obserr.Wrap(obserr.CategoryLSP, "decode call hierarchy items", err)
	}
	out := make([]types.CallHierarchyItem, 0, len(list))
	for _, r := range list {
		out = append(out, r.toItem())
	}
	return out, nil
}

func decodeCallHierarchyCalls(raw json.RawMessage, sideKey string) ([]types.CallHierarchyItem, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var list []map[string]json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, obserr.Wrap(obserr.CategoryLSP, "decode call hierarchy calls", err)
	}
	out := make([]types.CallHierarchyItem, 0, len(list))
	for _, entry := range list {
		side, ok := entry[sideKey]
		if !ok {
			continue
		}
		var item rawCallHierarchyItem
		if err := json.Unmarshal(side, &item); err != nil {
			continue
		}
		out = append(out, item.toItem())
	}
	return out, nil
}

// StopAll drains and kills every running server, called on process
// shutdown. Per spec.md §4.2, "the mux never blocks shutdown for
// outstanding requests" — stop itself still waits (bounded, 5s per
// server) for a graceful exit, but does not wait on any in-flight
// capability-method call.
func (m *Multiplexer) StopAll(ctx context.Context) error {
	var firstErr error
	for _, s := range m.servers {
		if s.state() == types.ServerUninitialized || s.state() == types.ServerDown {
			continue
		}
		if err := s.stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Client is the capability-narrowed surface the refactoring planner
// depends on, satisfied by *Multiplexer. Planners take a Client, not a
// *Multiplexer, so tests can inject a fake that returns canned edits
// without launching a real language server (spec.md §9 "Global state":
// dependency-injection style rather than a process-scoped singleton).
type Client interface {
	Open(ctx context.Context, path, text string) error
	Close(path string) error
	DidChange(path, newText string) error

	Definition(ctx context.Context, path string, pos types.Position) ([]types.Location, error)
	TypeDefinition(ctx context.Context, path string, pos types.Position) ([]types.Location, error)
	Implementations(ctx context.Context, path string, pos types.Position) ([]types.Location, error)
	References(ctx context.Context, path string, pos types.Position, includeDeclaration bool) ([]types.Location, error)
	SymbolInfo(ctx context.Context, path string, pos types.Position) (string, error)
	Diagnostics(ctx context.Context, path string) ([]types.Diagnostic, error)
	WorkspaceSymbols(ctx context.Context, query string) ([]types.SymbolInformation, error)
	PrepareRename(ctx context.Context, path string, pos types.Position) (*types.PrepareRenameResult, error)
	RenameEdits(ctx context.Context, path string, pos types.Position, newName string) (types.WorkspaceEdit, error)
	CodeActions(ctx context.Context, path string, r types.Range) ([]types.CodeAction, error)
	CallHierarchyPrepare(ctx context.Context, path string, pos types.Position) ([]types.CallHierarchyItem, error)
	CallHierarchyIncoming(ctx context.Context, item types.CallHierarchyItem) ([]types.CallHierarchyItem, error)
	CallHierarchyOutgoing(ctx context.Context, item types.CallHierarchyItem) ([]types.CallHierarchyItem, error)

	StopAll(ctx context.Context) error
}

var _ Client = (*Multiplexer)(nil)
