package planner

import (
	"sort"

	_ "github.com/forgeref/forgeref/pkg/plugins/golang"
	_ "github.com/forgeref/forgeref/pkg/plugins/python"
	_ "github.com/forgeref/forgeref/pkg/plugins/rust"

	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

// fakeScope is a ScopeEngine over a fixed file list, used so planner tests
// don't need a real workspace on disk. Reaches defers entirely to
// types.Scope.Allows — only Files() is fixed.
type fakeScope struct {
	files []string
}

func (f fakeScope) Files() ([]string, error) {
	out := append([]string(nil), f.files...)
	sort.Strings(out)
	return out, nil
}

func (f fakeScope) Reaches(s types.Scope, relPath string, category types.Category) bool {
	return s.Allows(category)
}

// newTestDeps builds Deps with a real plugin registry (exercising the
// actual golang/python/rust plugins), no LSP (every planner call in these
// tests takes the plugin/regex fallback path deliberately, since that is
// the path this pack's planners must get right without a language
// server), an in-memory filesystem, and a fixed-file-list scope.
func newTestDeps(fs MapFS) Deps {
	files := make([]string, 0, len(fs))
	for p := range fs {
		files = append(files, p)
	}
	return Deps{
		Registry: plugins.NewRegistry(),
		LSP:      nil,
		Scope:    fakeScope{files: files},
		FS:       fs,
	}
}
