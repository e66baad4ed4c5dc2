package main

import (
	"os"

	"github.com/conduit-lang/metagraph/internal/cli/commands"
	"github.com/conduit-lang/metagraph/internal/demo/sales"
)

func main() {
	app := &commands.App{
		Catalog:          sales.Catalog(),
		SystemInterfaces: sales.SystemInterfaces,
		DefaultClasses:   sales.DefaultClasses,
	}
	if err := commands.Execute(app); err != nil {
		os.Exit(1)
	}
}
