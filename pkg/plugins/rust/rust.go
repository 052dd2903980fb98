// Package rust is the built-in plugin for .rs source and Cargo.toml
// manifests. It has no tree-sitter grammar wired in (the pack's tree-sitter
// usage is Go/JS/Python/CSS/Dockerfile-oriented); symbol/import extraction
// is regex-level and always reports Partial, matching the regex-fallback
// contract spec.md §4.1 describes for any plugin without a full grammar.
// Cargo.toml handling is the real payload: pelletier/go-toml/v2 round-trips
// the manifest's dependency table and workspace member array for the
// directory-consolidation scenario (spec.md §8 scenario 4).
package rust

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

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
		Extensions:       []string{".rs"},
		ManifestFilename: "Cargo.toml",
		LanguageName:     "rust",
		LSPHint:          "rust-analyzer",
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

var (
	fnRe     = regexp.MustCompile(`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?fn\s+([A-Za-z_][A-Za-z0-9_]*)`)
	structRe = regexp.MustCompile(`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?struct\s+([A-Za-z_][A-Za-z0-9_]*)`)
	enumRe   = regexp.MustCompile(`(?m)^\s*(?:pub(?:\([^)]*\))?\s+)?enum\s+([A-Za-z_][A-Za-z0-9_]*)`)
	useRe    = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+([A-Za-z0-9_:{}, ]+?)\s*;`)
)

// Parse extracts fn/struct/enum declarations and `use` statements. Always
// Partial since there is no grammar backing this, only line patterns.
func (p *Plugin) Parse(source string) (types.ParseResult, error) {
	var result types.ParseResult
	result.Partial = true

	for _, m := range fnRe.FindAllStringSubmatchIndex(source, -1) {
		result.Symbols = append(result.Symbols, symbolAt(source, m, types.SymbolFunction))
	}
	for _, m := range structRe.FindAllStringSubmatchIndex(source, -1) {
		result.Symbols = append(result.Symbols, symbolAt(source, m, types.SymbolType))
	}
	for _, m := range enumRe.FindAllStringSubmatchIndex(source, -1) {
		result.Symbols = append(result.Symbols, symbolAt(source, m, types.SymbolType))
	}
	result.Imports = append(result.Imports, p.parseImports(source)...)
	return result, nil
}

func symbolAt(source string, m []int, kind types.SymbolKind) types.Symbol {
	name := source[m[2]:m[3]]
	pos := offsetPos(source, m[2])
	end := offsetPos(source, m[3])
	return types.Symbol{
		Name:      name,
		Kind:      kind,
		Range:     types.Range{Start: pos, End: end},
		NameRange: types.Range{Start: pos, End: end},
	}
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

func (p *Plugin) parseImports(source string) []types.Import {
	var imports []types.Import
	for _, m := range useRe.FindAllStringSubmatchIndex(source, -1) {
		path := source[m[2]:m[3]]
		category := types.ImportExternal
		if strings.HasPrefix(path, "crate::") || strings.HasPrefix(path, "self::") || strings.HasPrefix(path, "super::") {
			category = types.ImportRelative
		} else if strings.HasPrefix(path, "std::") || strings.HasPrefix(path, "core::") || strings.HasPrefix(path, "alloc::") {
			category = types.ImportStdlib
		}
		imports = append(imports, types.Import{
			Module:   path,
			Range:    types.Range{Start: offsetPos(source, m[0]), End: offsetPos(source, m[1])},
			Category: category,
		})
	}
	return imports
}

func (p *Plugin) ParseImports(source string) ([]types.Import, error) {
	return p.parseImports(source), nil
}

func (p *Plugin) ContainsImport(source, module string) bool {
	for _, imp := range p.parseImports(source) {
		if imp.Module == module || strings.HasPrefix(imp.Module, module+"::") {
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
		NewText: fmt.Sprintf("use %s;\n", module),
	}}, nil
}

func (p *Plugin) RemoveImport(source, module string) ([]types.TextEdit, error) {
	var edits []types.TextEdit
	for _, imp := range p.parseImports(source) {
		if imp.Module != module {
			continue
		}
		edits = append(edits, types.TextEdit{
			Range:   types.Range{Start: types.Position{Line: imp.Range.Start.Line, Character: 0}, End: types.Position{Line: imp.Range.End.Line + 1, Character: 0}},
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
	var edits []types.TextEdit
	for _, imp := range p.parseImports(source) {
		var rewritten string
		switch {
		case imp.Module == oldModule:
			rewritten = newModule
		case strings.HasPrefix(imp.Module, oldModule+"::"):
			// Preserve the item path past the crate/module boundary, e.g.
			// `use src_crate::f;` with oldModule "src_crate" becomes
			// `use dst_crate::module::f;`, not a bare crate replacement.
			rewritten = newModule + strings.TrimPrefix(imp.Module, oldModule)
		default:
			continue
		}
		edits = append(edits, types.TextEdit{Range: imp.Range, NewText: fmt.Sprintf("use %s;", rewritten)})
	}
	return edits, nil
}

// cargoManifest mirrors the subset of Cargo.toml this plugin round-trips:
// package identity, the dependency table, and workspace membership.
type cargoManifest struct {
	Package struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
	Dependencies map[string]cargoDep `toml:"dependencies"`
	Workspace    *struct {
		Members []string `toml:"members"`
	} `toml:"workspace,omitempty"`
}

// cargoDep accepts both the short `"1.0"` form and the table form
// (`{ version = "1.0", features = [...] }`) Cargo.toml allows, matching
// go-toml/v2's documented pattern for heterogeneous TOML values.
type cargoDep struct {
	Version  string   `toml:"version"`
	Features []string `toml:"features,omitempty"`
	Optional bool     `toml:"optional,omitempty"`
	Path     string   `toml:"path,omitempty"`
}

func (d *cargoDep) UnmarshalTOML(data any) error {
	switch v := data.(type) {
	case string:
		d.Version = v
	case map[string]any:
		if s, ok := v["version"].(string); ok {
			d.Version = s
		}
		if s, ok := v["path"].(string); ok {
			d.Path = s
		}
		if b, ok := v["optional"].(bool); ok {
			d.Optional = b
		}
		if fs, ok := v["features"].([]any); ok {
			for _, f := range fs {
				if s, ok := f.(string); ok {
					d.Features = append(d.Features, s)
				}
			}
		}
	}
	return nil
}

func (p *Plugin) IsManifest(filename string) bool { return filename == "Cargo.toml" }

// PackageModuleName applies Cargo's mandatory hyphen-to-underscore
// translation between a crate's manifest name and its module path: a
// crate named "src-crate" is referenced in code as `src_crate::...`.
func (p *Plugin) PackageModuleName(name string) string {
	return strings.ReplaceAll(name, "-", "_")
}

func (p *Plugin) ParseManifest(path, source string) (types.WorkspaceManifest, error) {
	var cm cargoManifest
	if err := toml.Unmarshal([]byte(source), &cm); err != nil {
		return types.WorkspaceManifest{}, fmt.Errorf("rust plugin: parse %s: %w", path, err)
	}
	manifest := types.WorkspaceManifest{
		FilePath:     path,
		Name:         cm.Package.Name,
		Version:      cm.Package.Version,
		Dependencies: map[string]types.ManifestDependency{},
	}
	for name, dep := range cm.Dependencies {
		manifest.Dependencies[name] = types.ManifestDependency{
			Name: name, Version: dep.Version, Features: dep.Features,
			Optional: dep.Optional, Path: dep.Path,
		}
	}
	if cm.Workspace != nil {
		manifest.Members = cm.Workspace.Members
	}
	return manifest, nil
}

func (p *Plugin) AddMember(manifestSource, member string) (string, error) {
	var cm cargoManifest
	if err := toml.Unmarshal([]byte(manifestSource), &cm); err != nil {
		return "", fmt.Errorf("rust plugin: parse manifest: %w", err)
	}
	if cm.Workspace == nil {
		cm.Workspace = &struct {
			Members []string `toml:"members"`
		}{}
	}
	for _, m := range cm.Workspace.Members {
		if m == member {
			return manifestSource, nil
		}
	}
	cm.Workspace.Members = append(cm.Workspace.Members, member)
	sort.Strings(cm.Workspace.Members)
	return reencodeMembers(manifestSource, cm.Workspace.Members)
}

func (p *Plugin) RemoveMember(manifestSource, member string) (string, error) {
	var cm cargoManifest
	if err := toml.Unmarshal([]byte(manifestSource), &cm); err != nil {
		return "", fmt.Errorf("rust plugin: parse manifest: %w", err)
	}
	if cm.Workspace == nil {
		return manifestSource, nil
	}
	var kept []string
	for _, m := range cm.Workspace.Members {
		if m != member {
			kept = append(kept, m)
		}
	}
	return reencodeMembers(manifestSource, kept)
}

// reencodeMembers replaces only the workspace.members array in the original
// text, preserving everything else byte-for-byte — a full toml.Marshal
// round-trip would reformat the whole file and destroy unrelated comments,
// which the consolidation scenario's diff preview must not do.
func reencodeMembers(source string, members []string) (string, error) {
	encoded, err := toml.Marshal(members)
	if err != nil {
		return "", fmt.Errorf("rust plugin: encode members: %w", err)
	}
	replacement := "members = " + strings.TrimSpace(string(encoded))

	re := regexp.MustCompile(`(?s)members\s*=\s*\[[^\]]*\]`)
	if re.MatchString(source) {
		return re.ReplaceAllString(source, replacement), nil
	}
	if idx := strings.Index(source, "[workspace]"); idx >= 0 {
		insertAt := idx + len("[workspace]")
		return source[:insertAt] + "\n" + replacement + source[insertAt:], nil
	}
	return source + "\n[workspace]\n" + replacement + "\n", nil
}

// MergeDependencies merges src's [dependencies] table into dst's, keeping
// dst's version on conflict and reporting every conflicting crate name.
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
	var names []string
	for name := range src.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	merged := dstSource
	for _, name := range names {
		dep := src.Dependencies[name]
		if existing, ok := dst.Dependencies[name]; ok {
			if existing.Version != dep.Version {
				conflicts = append(conflicts, name)
			}
			continue
		}
		merged, err = appendDependency(merged, name, dep)
		if err != nil {
			return "", nil, err
		}
	}
	return merged, conflicts, nil
}

func appendDependency(source, name string, dep types.ManifestDependency) (string, error) {
	line := fmt.Sprintf("%s = %q\n", name, dep.Version)
	if len(dep.Features) > 0 {
		line = fmt.Sprintf("%s = { version = %q, features = %s }\n", name, dep.Version, featureList(dep.Features))
	}
	if idx := strings.Index(source, "[dependencies]"); idx >= 0 {
		insertAt := idx + len("[dependencies]")
		return source[:insertAt] + "\n" + strings.TrimRight(line, "\n") + source[insertAt:], nil
	}
	return source + "\n[dependencies]\n" + line, nil
}

func featureList(features []string) string {
	quoted := make([]string, len(features))
	for i, f := range features {
		quoted[i] = fmt.Sprintf("%q", f)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

var (
	_ plugins.Plugin                 = (*Plugin)(nil)
	_ plugins.ImportParser           = (*Plugin)(nil)
	_ plugins.ImportMutator          = (*Plugin)(nil)
	_ plugins.ImportRewriteForRename = (*Plugin)(nil)
	_ plugins.WorkspaceManager       = (*Plugin)(nil)
	_ plugins.PackageModuleNamer     = (*Plugin)(nil)
)
