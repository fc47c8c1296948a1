package main

import (
	"os"

	"github.com/calebmorris/stockpilot/cmd/stockpilot/commands"
)

// main is the entry point for the stockpilot CLI:
// go run ./cmd/stockpilot [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
