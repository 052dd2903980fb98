// Package golang is the built-in plugin for Go source and go.mod/go.work
// manifests, grounded on the tree-sitter AST technique of
// jinterlante1206-AleutianLocal's services/code_buddy/ast package. Unlike
// that teacher's Parser (which targets a project-wide symbol index), this
// plugin's Parse feeds the rename/move/extract planners directly, so every
// Symbol carries a NameRange narrow enough to splice in a replacement
// identifier without disturbing the rest of the declaration.
package golang

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"

	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

func init() {
	plugins.Register(New)
}

// Plugin implements plugins.Plugin, plugins.ImportParser, plugins.ImportMutator
// and plugins.ModuleNamer for Go source files.
type Plugin struct{}

// New constructs the Go plugin. Stateless: every Parse call allocates its
// own tree-sitter parser, matching the teacher's per-call-instance thread
// safety pattern.
func New() plugins.Plugin { return &Plugin{} }

func (p *Plugin) Metadata() types.PluginMetadata {
	return types.PluginMetadata{
		Extensions:       []string{".go"},
		ManifestFilename: "go.mod",
		LanguageName:     "go",
		LSPHint:          "gopls",
	}
}

func (p *Plugin) Capabilities() types.Capabilities {
	return types.Capabilities(0).
		With(types.CapParse).
		With(types.CapImportParse).
		With(types.CapImportMutate).
		With(types.CapImportRewriteForRename).
		With(types.CapImportRewriteForMove).
		With(types.CapWorkspace)
}

// Parse walks the tree-sitter AST for top-level declarations. It never
// returns a syntax error itself: a source file with parse errors yields
// Partial: true and whatever symbols tree-sitter's error recovery still
// exposed, matching the teacher's error-tolerant parser contract.
func (p *Plugin) Parse(source string) (types.ParseResult, error) {
	content := []byte(source)
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return types.ParseResult{}, fmt.Errorf("golang plugin: tree-sitter parse: %w", err)
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
		switch child.Type() {
		case "import_declaration":
			result.Imports = append(result.Imports, extractImports(child, content)...)
		case "function_declaration":
			if sym, ok := extractFunc(child, content); ok {
				result.Symbols = append(result.Symbols, sym)
			}
		case "method_declaration":
			if sym, ok := extractMethod(child, content); ok {
				result.Symbols = append(result.Symbols, sym)
			}
		case "type_declaration":
			result.Symbols = append(result.Symbols, extractTypes(child, content)...)
		case "var_declaration":
			result.Symbols = append(result.Symbols, extractVarConst(child, content, types.SymbolVariable)...)
		case "const_declaration":
			result.Symbols = append(result.Symbols, extractVarConst(child, content, types.SymbolConstant)...)
		}
	}
	return result, nil
}

func nodeRange(n *sitter.Node) types.Range {
	return types.Range{
		Start: types.Position{Line: int(n.StartPoint().Row), Character: int(n.StartPoint().Column)},
		End:   types.Position{Line: int(n.EndPoint().Row), Character: int(n.EndPoint().Column)},
	}
}

func extractImports(decl *sitter.Node, content []byte) []types.Import {
	var imports []types.Import
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.Type() == "import_spec" {
			imports = append(imports, importFromSpec(n, content))
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(decl)
	return imports
}

func importFromSpec(spec *sitter.Node, content []byte) types.Import {
	var path string
	for i := 0; i < int(spec.ChildCount()); i++ {
		c := spec.Child(i)
		if c.Type() == "interpreted_string_literal" {
			path = strings.Trim(string(content[c.StartByte():c.EndByte()]), "\"")
		}
	}
	category := types.ImportExternal
	switch {
	case !strings.Contains(path, "."):
		category = types.ImportStdlib
	case strings.HasPrefix(path, "."):
		category = types.ImportRelative
	}
	return types.Import{Module: path, Range: nodeRange(spec), Category: category}
}

func isExported(name string) bool {
	return name != "" && strings.ToUpper(name[:1]) == name[:1]
}

func identNode(decl *sitter.Node, identType string) *sitter.Node {
	for i := 0; i < int(decl.ChildCount()); i++ {
		if c := decl.Child(i); c.Type() == identType {
			return c
		}
	}
	return nil
}

func extractFunc(decl *sitter.Node, content []byte) (types.Symbol, bool) {
	id := identNode(decl, "identifier")
	if id == nil {
		return types.Symbol{}, false
	}
	name := string(content[id.StartByte():id.EndByte()])
	return types.Symbol{
		Name:      name,
		Kind:      types.SymbolFunction,
		Range:     nodeRange(decl),
		NameRange: nodeRange(id),
	}, true
}

func extractMethod(decl *sitter.Node, content []byte) (types.Symbol, bool) {
	id := identNode(decl, "field_identifier")
	if id == nil {
		return types.Symbol{}, false
	}
	name := string(content[id.StartByte():id.EndByte()])
	return types.Symbol{
		Name:      name,
		Kind:      types.SymbolMethod,
		Range:     nodeRange(decl),
		NameRange: nodeRange(id),
	}, true
}

func extractTypes(decl *sitter.Node, content []byte) []types.Symbol {
	var out []types.Symbol
	for i := 0; i < int(decl.ChildCount()); i++ {
		spec := decl.Child(i)
		if spec.Type() != "type_spec" {
			continue
		}
		id := identNode(spec, "type_identifier")
		if id == nil {
			continue
		}
		out = append(out, types.Symbol{
			Name:      string(content[id.StartByte():id.EndByte()]),
			Kind:      types.SymbolType,
			Range:     nodeRange(spec),
			NameRange: nodeRange(id),
		})
	}
	return out
}

func extractVarConst(decl *sitter.Node, content []byte, kind types.SymbolKind) []types.Symbol {
	var out []types.Symbol
	var specs []*sitter.Node
	for i := 0; i < int(decl.ChildCount()); i++ {
		c := decl.Child(i)
		switch c.Type() {
		case "var_spec", "const_spec":
			specs = append(specs, c)
		case "var_spec_list", "const_spec_list":
			for j := 0; j < int(c.ChildCount()); j++ {
				if s := c.Child(j); s.Type() == "var_spec" || s.Type() == "const_spec" {
					specs = append(specs, s)
				}
			}
		}
	}
	for _, spec := range specs {
		for i := 0; i < int(spec.ChildCount()); i++ {
			id := spec.Child(i)
			if id.Type() != "identifier" {
				continue
			}
			out = append(out, types.Symbol{
				Name:      string(content[id.StartByte():id.EndByte()]),
				Kind:      kind,
				Range:     nodeRange(spec),
				NameRange: nodeRange(id),
			})
		}
	}
	return out
}

// ParseImports is the cheap path for callers that only need import
// statements, skipping the full symbol walk.
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

var importGroupRe = regexp.MustCompile(`(?s)^(\s*)import\s*\(\s*\n`)

// AddImport inserts module into the first import block, or adds one if the
// file has none. It is text-based rather than AST-based: tree-sitter tells
// us where to splice, but generating new syntax nodes is out of scope for a
// parser library, matching how the teacher's planners treat tree-sitter as
// read-only.
func (p *Plugin) AddImport(source, module string) ([]types.TextEdit, error) {
	if p.ContainsImport(source, module) {
		return nil, nil
	}
	loc := importGroupRe.FindStringIndex(source)
	quoted := strconv.Quote(module)
	if loc == nil {
		// No grouped import block: insert one after the package clause.
		idx := strings.Index(source, "\n")
		if idx < 0 {
			idx = len(source)
		}
		pos := offsetToPosition(source, idx+1)
		return []types.TextEdit{{
			Range:   types.Range{Start: pos, End: pos},
			NewText: fmt.Sprintf("\nimport %s\n", quoted),
		}}, nil
	}
	insertAt := loc[1]
	pos := offsetToPosition(source, insertAt)
	return []types.TextEdit{{
		Range:   types.Range{Start: pos, End: pos},
		NewText: fmt.Sprintf("\t%s\n", quoted),
	}}, nil
}

// RemoveImport deletes every import spec referencing module.
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
			Range:   lineSpan(source, imp.Range),
			NewText: "",
		})
	}
	return edits, nil
}

// RemoveNamedFromImport is not meaningful for Go (imports are module-level,
// not named-member imports), so it is a no-op that returns no edits rather
// than an error — callers treat an empty edit slice as "nothing to do".
func (p *Plugin) RemoveNamedFromImport(source, module, name string) ([]types.TextEdit, error) {
	return nil, nil
}

// lineSpan widens r to cover its full source lines including the trailing
// newline, so deleting it doesn't leave a blank line behind.
func lineSpan(source string, r types.Range) types.Range {
	return types.Range{
		Start: types.Position{Line: r.Start.Line, Character: 0},
		End:   types.Position{Line: r.End.Line + 1, Character: 0},
	}
}

func offsetToPosition(source string, offset int) types.Position {
	line, col := 0, 0
	for i := 0; i < offset && i < len(source); i++ {
		if source[i] == '\n' {
			line++
			col = 0
		} else {
			col++
		}
	}
	return types.Position{Line: line, Character: col}
}

// RewriteImportsForSymbolRename is a no-op for Go: a package-local symbol
// rename never touches import statements, which reference packages, not
// symbols.
func (p *Plugin) RewriteImportsForSymbolRename(source, oldName, newName string) ([]types.TextEdit, error) {
	return nil, nil
}

// RewriteImportsForModuleRename rewrites a consuming file's import path from
// oldModule to newModule.
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
		edits = append(edits, types.TextEdit{
			Range:   imp.Range,
			NewText: strconv.Quote(newModule),
		})
	}
	return edits, nil
}

// RewriteOwnImportsForMove is identical to a module rename from the moved
// file's own point of view: its own import path (if self-referential via a
// workspace-relative import) becomes the new one.
func (p *Plugin) RewriteOwnImportsForMove(path, source, oldPath, newPath string) ([]types.TextEdit, error) {
	return p.RewriteImportsForModuleRename(path, source, oldPath, newPath)
}

func (p *Plugin) RewriteConsumerImportsForMove(consumerPath, source, oldModule, newModule string) ([]types.TextEdit, error) {
	return p.RewriteImportsForModuleRename(consumerPath, source, oldModule, newModule)
}

// ModuleName derives a package's import path suffix from a file's directory,
// used by the move planner when it has no go.mod in scope to resolve the
// full module path; callers prefix it with the workspace's module path.
func (p *Plugin) ModuleName(path string) string {
	dir := path
	if idx := strings.LastIndex(path, "/"); idx >= 0 {
		dir = path[:idx]
	} else {
		dir = "."
	}
	return dir
}

var (
	_ plugins.Plugin                 = (*Plugin)(nil)
	_ plugins.ImportParser           = (*Plugin)(nil)
	_ plugins.ImportMutator          = (*Plugin)(nil)
	_ plugins.ImportRewriteForRename = (*Plugin)(nil)
	_ plugins.ImportRewriteForMove   = (*Plugin)(nil)
	_ plugins.ModuleNamer            = (*Plugin)(nil)
)
