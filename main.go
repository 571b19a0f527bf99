// Command davi-transit reads contactless transit cards through a PC/SC or
// libnfc reader and decodes their balance and trip history.
package main

import (
	"os"

	"github.com/nedpals/davi-transit/cli"
	"github.com/nedpals/davi-transit/nfc/hardware"
)

func main() {
	if err := cli.Execute(cli.Deps{NewManager: hardware.NewManager}); err != nil {
		os.Exit(1)
	}
}
