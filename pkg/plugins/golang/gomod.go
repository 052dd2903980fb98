package golang

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/forgeref/forgeref/pkg/plugins"
	"github.com/forgeref/forgeref/pkg/types"
)

// go.mod/go.work handling lives on the same Plugin as source parsing: one
// plugin, several optional traits, per the interface-segregation design of
// spec.md §9.

var moduleLineRe = regexp.MustCompile(`(?m)^module\s+(\S+)`)
var requireLineRe = regexp.MustCompile(`(?m)^\t?([^\s]+)\s+(v\S+)`)
var requireBlockRe = regexp.MustCompile(`(?s)require\s*\(\s*\n(.*?)\n\)`)
var useLineRe = regexp.MustCompile(`(?m)^\tuse\s+(\S+)`)

func (p *Plugin) IsManifest(filename string) bool {
	return filename == "go.mod" || filename == "go.work"
}

// ParseManifest extracts the module name and require-block dependencies
// from a go.mod, or the use-block members from a go.work.
func (p *Plugin) ParseManifest(path, source string) (types.WorkspaceManifest, error) {
	manifest := types.WorkspaceManifest{FilePath: path, Dependencies: map[string]types.ManifestDependency{}}
	if mm := moduleLineRe.FindStringSubmatch(source); mm != nil {
		manifest.Name = mm[1]
	}
	if block := requireBlockRe.FindStringSubmatch(source); block != nil {
		for _, line := range strings.Split(block[1], "\n") {
			if mm := requireLineRe.FindStringSubmatch(line); mm != nil {
				manifest.Dependencies[mm[1]] = types.ManifestDependency{Name: mm[1], Version: mm[2]}
			}
		}
	}
	for _, mm := range useLineRe.FindAllStringSubmatch(source, -1) {
		manifest.Members = append(manifest.Members, mm[1])
	}
	return manifest, nil
}

// AddMember adds a `use` directive to a go.work file's use block, creating
// the block if absent.
func (p *Plugin) AddMember(manifestSource, member string) (string, error) {
	line := fmt.Sprintf("\tuse %s\n", member)
	if idx := strings.Index(manifestSource, "use ("); idx >= 0 {
		closeIdx := strings.Index(manifestSource[idx:], ")")
		if closeIdx < 0 {
			return "", fmt.Errorf("golang plugin: unterminated use block")
		}
		insertAt := idx + closeIdx
		return manifestSource[:insertAt] + line + manifestSource[insertAt:], nil
	}
	return manifestSource + fmt.Sprintf("\nuse (\n%s)\n", line), nil
}

// RemoveMember deletes a member's use directive, matching either the
// grouped-block form or a standalone `use <member>` line.
func (p *Plugin) RemoveMember(manifestSource, member string) (string, error) {
	grouped := regexp.MustCompile(`(?m)^\tuse ` + regexp.QuoteMeta(member) + `\s*\n`)
	out := grouped.ReplaceAllString(manifestSource, "")
	standalone := regexp.MustCompile(`(?m)^use ` + regexp.QuoteMeta(member) + `\s*\n`)
	out = standalone.ReplaceAllString(out, "")
	return out, nil
}

// MergeDependencies merges src's require block into dst's, keeping dst's
// version on any name collision and reporting every collision so the
// consolidation planner can attach a plan warning (spec.md §4.4.1).
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
	var toAdd []types.ManifestDependency
	for name, dep := range src.Dependencies {
		if existing, ok := dst.Dependencies[name]; ok {
			if existing.Version != dep.Version {
				conflicts = append(conflicts, name)
			}
			continue
		}
		toAdd = append(toAdd, dep)
	}
	if len(toAdd) == 0 {
		return dstSource, conflicts, nil
	}

	var lines strings.Builder
	for _, dep := range toAdd {
		fmt.Fprintf(&lines, "\t%s %s\n", dep.Name, dep.Version)
	}
	if block := requireBlockRe.FindStringSubmatchIndex(dstSource); block != nil {
		insertAt := block[3] // end of captured group 1, before the closing "\n)"
		merged := dstSource[:insertAt] + "\n" + strings.TrimRight(lines.String(), "\n") + dstSource[insertAt:]
		return merged, conflicts, nil
	}
	return dstSource + "\nrequire (\n" + lines.String() + ")\n", conflicts, nil
}

var _ plugins.WorkspaceManager = (*Plugin)(nil)
