// Package plugins implements the language plugin contract and the
// compile-time plugin registry of spec.md §4.1. A plugin is a pure,
// deterministic transformation over file contents — it performs no I/O of
// its own; the planner feeds it bytes and paths and consumes TextEdits.
package plugins

import "github.com/forgeref/forgeref/pkg/types"

// Plugin is the core contract every language plugin satisfies.
type Plugin interface {
	Metadata() types.PluginMetadata
	// Parse extracts symbols and imports from source. It is pure and
	// deterministic: for languages with an external AST tool the plugin
	// tries that first, then falls back to a regex-level parse and sets
	// ParseResult.Partial (spec.md §4.1 contract policy).
	Parse(source string) (types.ParseResult, error)
	Capabilities() types.Capabilities
}

// ImportParser is the optional trait for plugins that can answer
// import-specific questions more cheaply than a full Parse.
type ImportParser interface {
	ParseImports(source string) ([]types.Import, error)
	ContainsImport(source, module string) bool
}

// ImportRewriteForRename rewrites a file's own import statements, or
// another file's references to a module, after a symbol or module rename.
type ImportRewriteForRename interface {
	// RewriteImportsForSymbolRename produces edits that keep references to
	// a renamed symbol valid within a single already-open file.
	RewriteImportsForSymbolRename(source, oldName, newName string) ([]types.TextEdit, error)
	// RewriteImportsForModuleRename produces edits in a consuming file
	// that update references to oldModule to reference newModule.
	RewriteImportsForModuleRename(path, source, oldModule, newModule string) ([]types.TextEdit, error)
}

// ImportRewriteForMove rewrites relative import paths after a file move,
// both in the moved file itself (its own relative imports) and in any
// consuming file (references to the moved file).
type ImportRewriteForMove interface {
	RewriteOwnImportsForMove(path, source, oldPath, newPath string) ([]types.TextEdit, error)
	RewriteConsumerImportsForMove(consumerPath, source, oldModule, newModule string) ([]types.TextEdit, error)
}

// ImportMutator adds, removes, or removes-a-name-from an import statement.
type ImportMutator interface {
	AddImport(source, module string) ([]types.TextEdit, error)
	RemoveImport(source, module string) ([]types.TextEdit, error)
	RemoveNamedFromImport(source, module, name string) ([]types.TextEdit, error)
}

// WorkspaceManager detects workspace manifests and mutates membership and
// dependency sections.
type WorkspaceManager interface {
	IsManifest(filename string) bool
	ParseManifest(path, source string) (types.WorkspaceManifest, error)
	// AddMember/RemoveMember operate on the manifest's workspace member
	// list and return the manifest's full new contents.
	AddMember(manifestSource, member string) (string, error)
	RemoveMember(manifestSource, member string) (string, error)
	// MergeDependencies merges src's dependency section into dst's,
	// preferring dst's version on conflict and reporting every conflicting
	// name so the caller can attach a plan warning (spec.md §4.4.1
	// consolidation conflict policy).
	MergeDependencies(dstSource, srcSource string) (merged string, conflicts []string, err error)
}

// ModuleNamer derives a language's module/import name from a file path,
// used by the rename/move planners to compute (oldModule, newModule) pairs.
type ModuleNamer interface {
	ModuleName(path string) string
}

// PackageModuleNamer converts a workspace manifest's package name into the
// identifier code actually uses to reference it, when the two differ.
// Rust's Cargo mandates hyphen-to-underscore translation between a
// crate's manifest `name` (e.g. "src-crate") and its module path (`use
// src_crate::...`); plugins without such a mapping need not implement
// this interface, and callers fall back to the manifest name verbatim.
type PackageModuleNamer interface {
	PackageModuleName(name string) string
}

// Transformer is the optional trait backing the Transform planner
// (spec.md §4.4.7): a plugin-provided, kind-specific syntactic rewrite.
type Transformer interface {
	// SupportsTransform reports whether this plugin can perform the named
	// transform kind (e.g. "if_to_match", "add_async").
	SupportsTransform(kind string) bool
	Transform(source string, r types.Range, kind string, opts map[string]string) ([]types.TextEdit, error)
}
