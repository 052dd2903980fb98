// Package builtin blank-imports every built-in language plugin so that
// importing this package alone is enough to populate plugins.NewRegistry
// with the full built-in set. cmd/forgeref and every integration test that
// needs a complete registry import this package instead of enumerating
// each language plugin by hand.
package builtin

import (
	_ "github.com/forgeref/forgeref/pkg/plugins/genericdoc"
	_ "github.com/forgeref/forgeref/pkg/plugins/golang"
	_ "github.com/forgeref/forgeref/pkg/plugins/jsts"
	_ "github.com/forgeref/forgeref/pkg/plugins/python"
	_ "github.com/forgeref/forgeref/pkg/plugins/rust"
)
