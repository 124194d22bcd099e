package main

import (
	"os"

	"github.com/conduit-lang/restdecl/internal/cli/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
