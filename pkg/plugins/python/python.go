// Package python is the built-in plugin for .py source, grounded on the
// tree-sitter technique of jinterlante1206-AleutianLocal's
// services/code_buddy/ast/python_parser.go. setup.py/pyproject.toml
// workspace-manager support is intentionally not implemented: Python has no
// single canonical manifest format analogous to go.mod/Cargo.toml, so this
// plugin advertises only source-level capabilities.
package python

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

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
		Extensions:   []string{".py"},
		LanguageName: "python",
		LSPHint:      "pyright",
	}
}

func (p *Plugin) Capabilities() types.Capabilities {
	return types.Capabilities(0).
		With(types.CapParse).
		With(types.CapImportParse).
		With(types.CapImportMutate).
		With(types.CapImportRewriteForRename)
}

func (p *Plugin) Parse(source string) (types.ParseResult, error) {
	content := []byte(source)
	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return types.ParseResult{}, fmt.Errorf("python plugin: tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	var result types.ParseResult
	result.Partial = root == nil || root.HasError()
	if root == nil {
		return result, nil
	}

	var walkTop func(n *sitter.Node)
	walkTop = func(n *sitter.Node) {
		for i := 0; i < int(n.ChildCount()); i++ {
			child := n.Child(i)
			switch child.Type() {
			case "import_statement", "import_from_statement":
				result.Imports = append(result.Imports, importsFromNode(child, content)...)
			case "function_definition":
				if sym, ok := defSymbol(child, content, types.SymbolFunction); ok {
					result.Symbols = append(result.Symbols, sym)
				}
			case "class_definition":
				if sym, ok := defSymbol(child, content, types.SymbolType); ok {
					result.Symbols = append(result.Symbols, sym)
				}
			case "decorated_definition":
				walkTop(child)
			}
		}
	}
	walkTop(root)
	return result, nil
}

func nodeRange(n *sitter.Node) types.Range {
	return types.Range{
		Start: types.Position{Line: int(n.StartPoint().Row), Character: int(n.StartPoint().Column)},
		End:   types.Position{Line: int(n.EndPoint().Row), Character: int(n.EndPoint().Column)},
	}
}

func defSymbol(n *sitter.Node, content []byte, kind types.SymbolKind) (types.Symbol, bool) {
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == "identifier" {
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

func importsFromNode(n *sitter.Node, content []byte) []types.Import {
	var out []types.Import
	var modulePath string
	if n.Type() == "import_from_statement" {
		for i := 0; i < int(n.ChildCount()); i++ {
			c := n.Child(i)
			if c.Type() == "dotted_name" || c.Type() == "relative_import" {
				modulePath = string(content[c.StartByte():c.EndByte()])
				break
			}
		}
	}
	category := types.ImportExternal
	switch {
	case strings.HasPrefix(modulePath, "."):
		category = types.ImportRelative
	case modulePath == "":
		// plain `import x.y` form: take the first dotted_name child.
		for i := 0; i < int(n.ChildCount()); i++ {
			if c := n.Child(i); c.Type() == "dotted_name" {
				modulePath = string(content[c.StartByte():c.EndByte()])
				break
			}
		}
	}
	if modulePath == "" {
		return out
	}
	out = append(out, types.Import{Module: modulePath, Range: nodeRange(n), Category: category})
	return out
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
		NewText: fmt.Sprintf("import %s\n", module),
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
		edits = append(edits, types.TextEdit{Range: imp.Range, NewText: newModule})
	}
	return edits, nil
}

var (
	_ plugins.Plugin                 = (*Plugin)(nil)
	_ plugins.ImportParser           = (*Plugin)(nil)
	_ plugins.ImportMutator          = (*Plugin)(nil)
	_ plugins.ImportRewriteForRename = (*Plugin)(nil)
)
