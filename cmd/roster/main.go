package main

import (
	"os"

	"roster/cmd/roster/commands"
)

// main only executes the command tree. Wiring lives in commands; behavior
// lives in internal/identity.
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
