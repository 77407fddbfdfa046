package main

import (
	"os"

	"github.com/meridianpe/meridian/backend/cmd/meridian/commands"
)

// main is the entry point for the Meridian CLI: go run ./cmd/meridian [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
