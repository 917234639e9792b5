// Command pantryai is the entry point for the PantryAI inventory assistant.
// It provides a CLI interface (via Cobra) and an HTTP server exposing the
// inventory RAG API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/pantryai-go/cmd/pantryai/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
