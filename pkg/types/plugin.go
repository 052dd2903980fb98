package types

// Capability is one bit of a plugin's capability bitset (spec.md §3, §9 —
// "capability bitsets... and a single capability enum/bitset so callers can
// query support without attempting a dispatch").
type Capability uint8

const (
	CapParse Capability = 1 << iota
	CapImportParse
	CapImportRewriteForRename
	CapImportRewriteForMove
	CapImportMutate
	CapWorkspace
)

// Capabilities is the bitset a plugin advertises.
type Capabilities uint8

// Has reports whether c includes every bit in want.
func (c Capabilities) Has(want Capability) bool {
	return Capabilities(want)&c == Capabilities(want)
}

// With returns c with cap added.
func (c Capabilities) With(cap Capability) Capabilities {
	return c | Capabilities(cap)
}

// ImportCategory classifies a parsed import statement.
type ImportCategory string

const (
	ImportExternal ImportCategory = "external"
	ImportWorkspace ImportCategory = "workspace"
	ImportRelative ImportCategory = "relative"
	ImportStdlib   ImportCategory = "stdlib"
)

// SymbolKind enumerates the named-symbol kinds a plugin parser extracts.
type SymbolKind string

const (
	SymbolFunction  SymbolKind = "function"
	SymbolMethod    SymbolKind = "method"
	SymbolType      SymbolKind = "type"
	SymbolVariable  SymbolKind = "variable"
	SymbolConstant  SymbolKind = "constant"
	SymbolModule    SymbolKind = "module"
	// SymbolUnknown is used by the regex-only fallback plugin, which can
	// locate a declaration without being sure what kind it is.
	SymbolUnknown SymbolKind = "unknown"
)

// Symbol is a named, positioned declaration found by a plugin parser.
type Symbol struct {
	Name  string     `json:"name"`
	Kind  SymbolKind `json:"kind"`
	Range Range      `json:"range"`
	// NameRange is the (usually narrower) range of just the identifier
	// token, used by the rename planner to splice in a new name without
	// disturbing the rest of the declaration.
	NameRange Range `json:"nameRange"`
}

// Import is a single import/use/require statement found by a plugin parser.
type Import struct {
	Module   string         `json:"module"`
	Range    Range          `json:"range"`
	Category ImportCategory `json:"category"`
}

// ParseResult is what a plugin's Parse returns: every named symbol and
// every import statement in a source file.
type ParseResult struct {
	Symbols []Symbol `json:"symbols"`
	Imports []Import `json:"imports"`
	// Partial is set when the plugin fell back from an external AST tool
	// to a regex-level parse (spec.md §4.1 contract policy); callers
	// should attach a "partial_parse" plan warning when it is true.
	Partial bool `json:"partial"`
}

// PluginMetadata describes a language plugin's static identity.
type PluginMetadata struct {
	Extensions       []string `json:"extensions"`
	ManifestFilename string   `json:"manifestFilename,omitempty"`
	LanguageName     string   `json:"languageName"`
	LSPHint          string   `json:"lspHint,omitempty"`
}

// ManifestDependency is one entry of a WorkspaceManifest's dependency map.
type ManifestDependency struct {
	Name      string   `json:"name"`
	Version   string   `json:"version,omitempty"`
	Features  []string `json:"features,omitempty"`
	Optional  bool     `json:"optional,omitempty"`
	Path      string   `json:"path,omitempty"`
	Workspace bool     `json:"workspace,omitempty"`
}

// WorkspaceManifest is a language-specific package description: name,
// version, dependencies, workspace member list, and its own file path.
type WorkspaceManifest struct {
	FilePath     string                        `json:"filePath"`
	Name         string                        `json:"name"`
	Version      string                        `json:"version,omitempty"`
	Dependencies map[string]ManifestDependency `json:"dependencies,omitempty"`
	Members      []string                      `json:"members,omitempty"`
}
