// Package main provides the entry point for the chromadex CLI.
package main

import (
	"os"

	"github.com/chromadex/chromadex/cmd/chromadex/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
