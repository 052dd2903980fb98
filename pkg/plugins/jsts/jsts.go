// Package jsts is the built-in plugin for .js/.jsx/.ts/.tsx source,
// grounded on jinterlante1206-AleutianLocal's
// services/code_buddy/ast/typescript_parser.go. It also handles
// package.json as a WorkspaceManager, the npm/yarn workspaces analogue of
// go.mod/Cargo.toml.
package jsts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

func init() {
	plugins.Register(New)
}

type Plugin struct{}

func New() plugins.Plugin { return &Plugin{} }

func (p *Plugin) Metadata() types.PluginMetadata {
	return types.PluginMetadata{
		Extensions:       []string{".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs"},
		ManifestFilename: "package.json",
		LanguageName:     "typescript",
		LSPHint:          "typescript-language-server",
	}
}

func (p *Plugin) Capabilities() types.Capabilities {
	return types.Capabilities(0).
		With(types.CapParse).
		With(types.CapImportParse).
		With(types.CapImportMutate).
		With(types.CapImportRewriteForRename).
		With(types.CapWorkspace)
}

// Parse always uses the plain typescript grammar: the Plugin interface's
// Parse takes no path, and the typescript grammar accepts ordinary
// JavaScript as a syntactic subset, so one grammar covers .js/.jsx/.ts
// files. Full .tsx generic-vs-JSX disambiguation is out of scope.
func (p *Plugin) Parse(source string) (types.ParseResult, error) {
	content := []byte(source)
	parser := sitter.NewParser()
	parser.SetLanguage(typescript.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return types.ParseResult{}, fmt.Errorf("jsts plugin: tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var result types.ParseResult
	result.Partial = root == nil || root.HasError()
	if root == nil {
		return result, nil
	}

	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		walkDecl(child, content, &result)
	}
	return result, nil
}

func walkDecl(n *sitter.Node, content []byte, result *types.ParseResult) {
	switch n.Type() {
	case "import_statement":
		if imp, ok := importFromStatement(n, content); ok {
			result.Imports = append(result.Imports, imp)
		}
	case "export_statement":
		for i := 0; i < int(n.ChildCount()); i++ {
			walkDecl(n.Child(i), content, result)
		}
	case "function_declaration":
		if sym, ok := namedDecl(n, content, types.SymbolFunction); ok {
			result.Symbols = append(result.Symbols, sym)
		}
	case "class_declaration":
		if sym, ok := namedDecl(n, content, types.SymbolType); ok {
			result.Symbols = append(result.Symbols, sym)
		}
	case "interface_declaration":
		if sym, ok := namedDecl(n, content, types.SymbolType); ok {
			result.Symbols = append(result.Symbols, sym)
		}
	case "lexical_declaration", "variable_declaration":
		result.Symbols = append(result.Symbols, lexicalSymbols(n, content)...)
	}
}

func nodeRange(n *sitter.Node) types.Range {
	return types.Range{
		Start: types.Position{Line: int(n.StartPoint().Row), Character: int(n.StartPoint().Column)},
		End:   types.Position{Line: int(n.EndPoint().Row), Character: int(n.EndPoint().Column)},
	}
}

func namedDecl(n *sitter.Node, content []byte, kind types.SymbolKind) (types.Symbol, bool) {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == "identifier" || c.Type() == "type_identifier" {
			return types.Symbol{
				Name:      string(content[c.StartByte():c.EndByte()]),
				Kind:      kind,
				Range:     nodeRange(n),
				NameRange: nodeRange(c),
			}, true
		}
	}
	return types.Symbol{}, false
}

func lexicalSymbols(n *sitter.Node, content []byte) []types.Symbol {
	var out []types.Symbol
	for i := 0; i < int(n.ChildCount()); i++ {
		declr := n.Child(i)
		if declr.Type() != "variable_declarator" {
			continue
		}
		for j := 0; j < int(declr.ChildCount()); j++ {
			if id := declr.Child(j); id.Type() == "identifier" {
				out = append(out, types.Symbol{
					Name:      string(content[id.StartByte():id.EndByte()]),
					Kind:      types.SymbolVariable,
					Range:     nodeRange(declr),
					NameRange: nodeRange(id),
				})
				break
			}
		}
	}
	return out
}

func importFromStatement(n *sitter.Node, content []byte) (types.Import, bool) {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == "string" {
			path := strings.Trim(string(content[c.StartByte():c.EndByte()]), "\"'")
			category := types.ImportExternal
			if strings.HasPrefix(path, ".") {
				category = types.ImportRelative
			}
			return types.Import{Module: path, Range: nodeRange(n), Category: category}, true
		}
	}
	return types.Import{}, false
}

func (p *Plugin) ParseImports(source string) ([]types.Import, error) {
	result, err := p.Parse(source)
	if err != nil {
		return nil, err
	}
	return result.Imports, nil
}

func (p *Plugin) ContainsImport(source, module string) bool {
	imports, err := p.ParseImports(source)
	if err != nil {
		return false
	}
	for _, imp := range imports {
		if imp.Module == module {
			return true
		}
	}
	return false
}

func (p *Plugin) AddImport(source, module string) ([]types.TextEdit, error) {
	if p.ContainsImport(source, module) {
		return nil, nil
	}
	pos := types.Position{Line: 0, Character: 0}
	return []types.TextEdit{{
		Range:   types.Range{Start: pos, End: pos},
		NewText: fmt.Sprintf("import %q;\n", module),
	}}, nil
}

func (p *Plugin) RemoveImport(source, module string) ([]types.TextEdit, error) {
	imports, err := p.ParseImports(source)
	if err != nil {
		return nil, err
	}
	var edits []types.TextEdit
	for _, imp := range imports {
		if imp.Module != module {
			continue
		}
		edits = append(edits, types.TextEdit{
			Range: types.Range{
				Start: types.Position{Line: imp.Range.Start.Line, Character: 0},
				End:   types.Position{Line: imp.Range.End.Line + 1, Character: 0},
			},
			NewText: "",
		})
	}
	return edits, nil
}

func (p *Plugin) RemoveNamedFromImport(source, module, name string) ([]types.TextEdit, error) {
	return nil, nil
}

func (p *Plugin) RewriteImportsForSymbolRename(source, oldName, newName string) ([]types.TextEdit, error) {
	return nil, nil
}

func (p *Plugin) RewriteImportsForModuleRename(path, source, oldModule, newModule string) ([]types.TextEdit, error) {
	imports, err := p.ParseImports(source)
	if err != nil {
		return nil, err
	}
	var edits []types.TextEdit
	for _, imp := range imports {
		if imp.Module != oldModule {
			continue
		}
		edits = append(edits, types.TextEdit{Range: imp.Range, NewText: fmt.Sprintf("import %q;", newModule)})
	}
	return edits, nil
}

// packageJSON is the subset of package.json this plugin round-trips.
type packageJSON struct {
	Name         string            `json:"name"`
	Version      string            `json:"version,omitempty"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Workspaces   []string          `json:"workspaces,omitempty"`
}

func (p *Plugin) IsManifest(filename string) bool { return filename == "package.json" }

func (p *Plugin) ParseManifest(path, source string) (types.WorkspaceManifest, error) {
	var pj packageJSON
	if err := json.Unmarshal([]byte(source), &pj); err != nil {
		return types.WorkspaceManifest{}, fmt.Errorf("jsts plugin: parse %s: %w", path, err)
	}
	manifest := types.WorkspaceManifest{
		FilePath: path, Name: pj.Name, Version: pj.Version,
		Dependencies: map[string]types.ManifestDependency{}, Members: pj.Workspaces,
	}
	for name, version := range pj.Dependencies {
		manifest.Dependencies[name] = types.ManifestDependency{Name: name, Version: version}
	}
	return manifest, nil
}

func (p *Plugin) AddMember(manifestSource, member string) (string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(manifestSource), &raw); err != nil {
		return "", fmt.Errorf("jsts plugin: parse manifest: %w", err)
	}
	var workspaces []string
	if w, ok := raw["workspaces"]; ok {
		_ = json.Unmarshal(w, &workspaces)
	}
	for _, m := range workspaces {
		if m == member {
			return manifestSource, nil
		}
	}
	workspaces = append(workspaces, member)
	return setJSONField(manifestSource, "workspaces", workspaces)
}

func (p *Plugin) RemoveMember(manifestSource, member string) (string, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(manifestSource), &raw); err != nil {
		return "", fmt.Errorf("jsts plugin: parse manifest: %w", err)
	}
	var workspaces []string
	if w, ok := raw["workspaces"]; ok {
		_ = json.Unmarshal(w, &workspaces)
	}
	var kept []string
	for _, m := range workspaces {
		if m != member {
			kept = append(kept, m)
		}
	}
	return setJSONField(manifestSource, "workspaces", kept)
}

func setJSONField(source, key string, value any) (string, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(source), &doc); err != nil {
		return "", fmt.Errorf("jsts plugin: parse manifest: %w", err)
	}
	doc[key] = value
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("jsts plugin: encode manifest: %w", err)
	}
	return string(out) + "\n", nil
}

// MergeDependencies merges src's dependencies into dst's, keeping dst's
// version on conflict and reporting every conflicting package name.
func (p *Plugin) MergeDependencies(dstSource, srcSource string) (string, []string, error) {
	dst, err := p.ParseManifest("", dstSource)
	if err != nil {
		return "", nil, err
	}
	src, err := p.ParseManifest("", srcSource)
	if err != nil {
		return "", nil, err
	}

	var conflicts []string
	merged := map[string]string{}
	for name, dep := range dst.Dependencies {
		merged[name] = dep.Version
	}
	for name, dep := range src.Dependencies {
		if existing, ok := merged[name]; ok {
			if existing != dep.Version {
				conflicts = append(conflicts, name)
			}
			continue
		}
		merged[name] = dep.Version
	}
	out, err := setJSONField(dstSource, "dependencies", merged)
	return out, conflicts, err
}

var (
	_ plugins.Plugin                 = (*Plugin)(nil)
	_ plugins.ImportParser           = (*Plugin)(nil)
	_ plugins.ImportMutator          = (*Plugin)(nil)
	_ plugins.ImportRewriteForRename = (*Plugin)(nil)
	_ plugins.WorkspaceManager       = (*Plugin)(nil)
)
