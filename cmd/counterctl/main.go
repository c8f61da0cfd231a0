// Command counterctl administers document counters: it issues and inspects
// numbers, seeds definitions and migrates the schema.
package main

import (
	"os"

	"erpcounter/cmd/counterctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
