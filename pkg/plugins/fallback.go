package plugins

import (
	"regexp"

	"github.com/forgeref/forgeref/pkg/types"
)

// fallbackPlugin is the registry's last resort for an unrecognized
// extension (spec.md §4.1: "an unknown extension yields a plugin that
// advertises only Parse, best-effort regex, and explicitly warns when
// used"). It has no manifest filename and advertises only CapParse.
type fallbackPlugin struct {
	symbolRe *regexp.Regexp
}

func newFallbackPlugin() *fallbackPlugin {
	return &fallbackPlugin{
		// loose enough to catch common declaration keywords across
		// C-family, Python and shell-ish text without claiming real
		// language understanding.
		symbolRe: regexp.MustCompile(`(?m)^\s*(?:func|function|def|class|fn|type|interface|struct)\s+([A-Za-z_][A-Za-z0-9_]*)`),
	}
}

func (f *fallbackPlugin) Metadata() types.PluginMetadata {
	return types.PluginMetadata{LanguageName: "text"}
}

func (f *fallbackPlugin) Capabilities() types.Capabilities {
	return types.Capabilities(0).With(types.CapParse)
}

// Parse performs a best-effort line-oriented scan for declaration-looking
// symbols and always reports Partial: true, since this plugin has no
// grammar to ground a full parse in.
func (f *fallbackPlugin) Parse(source string) (types.ParseResult, error) {
	var result types.ParseResult
	result.Partial = true

	for _, line := range splitLines(source) {
		if m := f.symbolRe.FindStringSubmatchIndex(line); m != nil {
			result.Symbols = append(result.Symbols, types.Symbol{
				Name: line[m[2]:m[3]],
				Kind: types.SymbolUnknown,
			})
		}
	}
	return result, nil
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}
