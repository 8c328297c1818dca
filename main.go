// The main package for the bookcrawler executable.
package main

import (
	"github.com/snikitin/bookcrawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
