package plugins

import (
	"path/filepath"
	"strings"
)

// Registry is the compile-time discovered set of language plugins,
// looked up by file extension or manifest filename at runtime. It is
// immutable after construction and safe for concurrent reads from many
// planners (spec.md §5 "Shared resources").
type Registry struct {
	byExtension map[string]Plugin
	byManifest  map[string]Plugin
	all         []Plugin
	fallback    Plugin
}

// factory is the signature every built-in plugin package exposes as its
// constructor, registered into the static table below.
type factory = func() Plugin

// builtins is the static registration table of spec.md §9 ("Dynamic plugin
// discovery... the analogous device is a static registration table"). It is
// populated by each language subpackage's init-free constructor call here
// rather than an inventory-macro/runtime-loader mechanism, which the spec
// explicitly rules out.
var builtins []factory

// Register adds a plugin factory to the static table. Called from each
// language subpackage's package-level var block (e.g.
// `var _ = plugins.Register(golang.New)`), which is the Go analogue of the
// teacher corpus's compile-time inventory pattern without reflection.
func Register(f factory) bool {
	builtins = append(builtins, f)
	return true
}

// NewRegistry builds a Registry from every plugin registered via Register,
// plus the always-present regex-fallback plugin for unrecognized
// extensions.
func NewRegistry() *Registry {
	r := &Registry{
		byExtension: make(map[string]Plugin),
		byManifest:  make(map[string]Plugin),
		fallback:    newFallbackPlugin(),
	}
	for _, f := range builtins {
		p := f()
		r.all = append(r.all, p)
		md := p.Metadata()
		for _, ext := range md.Extensions {
			r.byExtension[normalizeExt(ext)] = p
		}
		if md.ManifestFilename != "" {
			r.byManifest[md.ManifestFilename] = p
		}
	}
	return r
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// ForPath returns the plugin responsible for path, by manifest filename
// first, then extension, falling back to the regex-only fallback plugin.
// The registry fails closed (spec.md §4.1): an unknown extension always
// yields a usable plugin, never nil.
func (r *Registry) ForPath(path string) Plugin {
	base := filepath.Base(path)
	if p, ok := r.byManifest[base]; ok {
		return p
	}
	ext := normalizeExt(filepath.Ext(path))
	if p, ok := r.byExtension[ext]; ok {
		return p
	}
	return r.fallback
}

// ForExtension looks up a plugin by extension alone (used by the scope
// engine, which reasons about extensions before it has a concrete path).
func (r *Registry) ForExtension(ext string) Plugin {
	if p, ok := r.byExtension[normalizeExt(ext)]; ok {
		return p
	}
	return r.fallback
}

// All returns every registered plugin (not including the fallback).
func (r *Registry) All() []Plugin { return append([]Plugin(nil), r.all...) }

// IsFallback reports whether p is the registry's last-resort plugin —
// planners use this to decide whether to emit a "no plugin support"
// warning (spec.md §4.1).
func (r *Registry) IsFallback(p Plugin) bool { return p == r.fallback }

// WorkspaceManagers returns every registered plugin that implements
// WorkspaceManager, used by the directory-rename/consolidation planner to
// find manifest owners for a given directory.
func (r *Registry) WorkspaceManagers() []WorkspaceManager {
	var out []WorkspaceManager
	for _, p := range r.all {
		if wm, ok := p.(WorkspaceManager); ok {
			out = append(out, wm)
		}
	}
	return out
}
