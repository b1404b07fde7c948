// Package main provides the entry point for the demolens CLI tool.
package main

import (
	"fmt"
	"os"

	"demolens/cmd/demolens/commands"
)

func main() {
	if err := commands.NewRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
