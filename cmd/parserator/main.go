// Package main is the entry point for the parserator CLI.
package main

import (
	"os"

	"github.com/Domusgpt/parserator-sub000/cmd/parserator/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
