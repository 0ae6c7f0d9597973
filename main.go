// The main package for the careers-ingest executable.
package main

import (
	"github.com/JakeFAU/careers-ingest/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
