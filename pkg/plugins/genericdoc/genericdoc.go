// Package genericdoc is the built-in plugin for markdown, YAML, JSON and
// plain-text documentation files. It never claims a real grammar; its
// purpose is to let the scope engine find markdown links and config-style
// string values in Scope.Everything without every such file falling back
// to the registry's last-resort fallback plugin (which emits a warning on
// every use). genericdoc never warns: documentation files having no code
// symbols is expected, not a degraded parse.
package genericdoc

import (
	"regexp"

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
		Extensions:   []string{".md", ".markdown", ".yml", ".yaml", ".json", ".txt"},
		LanguageName: "doc",
	}
}

func (p *Plugin) Capabilities() types.Capabilities {
	return types.Capabilities(0).With(types.CapParse).With(types.CapImportParse)
}

var mdLinkRe = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

// Parse treats every markdown link target as an "import": the scope
// engine's Scope.Everything level rewrites these alongside code imports
// when a rename/move touches a linked file (spec.md §4.4.1 scope table).
func (p *Plugin) Parse(source string) (types.ParseResult, error) {
	var result types.ParseResult
	result.Partial = true
	for _, m := range mdLinkRe.FindAllStringSubmatchIndex(source, -1) {
		target := source[m[2]:m[3]]
		result.Imports = append(result.Imports, types.Import{
			Module:   target,
			Range:    offsetRange(source, m[2], m[3]),
			Category: types.ImportRelative,
		})
	}
	return result, nil
}

func offsetRange(source string, start, end int) types.Range {
	return types.Range{Start: offsetPos(source, start), End: offsetPos(source, end)}
}

func offsetPos(source string, offset int) types.Position {
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

func (p *Plugin) ParseImports(source string) ([]types.Import, error) {
	result, err := p.Parse(source)
	if err != nil {
		return nil, err
	}
	return result.Imports, nil
}

func (p *Plugin) ContainsImport(source, module string) bool {
	for _, imp := range mustImports(p, source) {
		if imp.Module == module {
			return true
		}
	}
	return false
}

func mustImports(p *Plugin, source string) []types.Import {
	imports, _ := p.ParseImports(source)
	return imports
}

var _ plugins.Plugin = (*Plugin)(nil)
var _ plugins.ImportParser = (*Plugin)(nil)
