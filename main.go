// ./main.go
package main

import (
	"github.com/goelayush89/robin-ai-sub000/cmd"
)

// main is the entry point for the Robin CLI.
func main() {
	// Execute the root command defined in the cmd package. It handles all
	// command-line parsing, configuration, and execution.
	cmd.Execute()
}
