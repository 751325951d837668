// The main package for the deepscout executable.
package main

import (
	"github.com/deepscout/deepscout/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
