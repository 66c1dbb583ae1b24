// Package main provides the entry point for the orquestra CLI.
package main

import (
	"fmt"
	"os"

	"github.com/orquestra-ai/orquestra/cmd/orquestra/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
