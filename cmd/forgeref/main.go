// Command forgeref is the thin CLI of spec.md §6.2: a pass-through over
// the same tool dispatcher an embedding transport would call. It adds no
// business logic of its own — every exit code and every response shape
// comes straight from pkg/dispatcher and pkg/editengine.
package main

import "os"

func main() {
	os.Exit(Execute())
}
